package tasksync

import "github.com/GriffinCanCode/clouddesk/internal/shared/types"

// merge reconciles the displayed list with a fresh one. The fresh list is
// authoritative for membership and content: ids it lacks are dropped, known
// ids keep their displayed position and take the fresh values, unseen ids
// are appended in fresh order. Duplicate ids in fresh keep the last entry.
func merge(displayed, fresh []types.CanonicalTask) []types.CanonicalTask {
	latest := make(map[types.TaskID]types.CanonicalTask, len(fresh))
	var order []types.TaskID
	for _, t := range fresh {
		if _, seen := latest[t.ID]; !seen {
			order = append(order, t.ID)
		}
		latest[t.ID] = t
	}

	out := make([]types.CanonicalTask, 0, len(latest))
	placed := make(map[types.TaskID]bool, len(latest))
	for _, t := range displayed {
		if next, ok := latest[t.ID]; ok && !placed[t.ID] {
			out = append(out, next)
			placed[t.ID] = true
		}
	}
	for _, id := range order {
		if !placed[id] {
			out = append(out, latest[id])
			placed[id] = true
		}
	}
	return out
}

// refocus picks the focused id after the list changed. A focused task that
// is still present and active keeps focus. One that completed or left the
// active set hands focus to the next active task after its old position.
func refocus(previous []types.CanonicalTask, tasks []types.CanonicalTask, focused types.TaskID) types.TaskID {
	if focused != "" {
		if i := indexOf(tasks, focused); i >= 0 && tasks[i].Status.Active() {
			return focused
		}
	}

	start := 0
	if focused != "" {
		if i := indexOf(tasks, focused); i >= 0 {
			start = i + 1
		} else if j := indexOf(previous, focused); j >= 0 {
			// the focused task vanished; resume at the first surviving
			// task that followed it
			start = len(tasks)
			for _, t := range previous[j+1:] {
				if k := indexOf(tasks, t.ID); k >= 0 {
					start = k
					break
				}
			}
		}
	}
	return nextActive(tasks, start)
}

// nextActive returns the first active task at or after start, wrapping
func nextActive(tasks []types.CanonicalTask, start int) types.TaskID {
	n := len(tasks)
	for k := 0; k < n; k++ {
		t := tasks[(start+k)%n]
		if t.Status.Active() {
			return t.ID
		}
	}
	return ""
}

func indexOf(tasks []types.CanonicalTask, id types.TaskID) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
