package tasksync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name      string
		displayed []types.CanonicalTask
		fresh     []types.CanonicalTask
		want      []types.TaskID
	}{
		{
			name:  "empty display takes fresh order",
			fresh: []types.CanonicalTask{task("b", types.StatusPending, 0), task("a", types.StatusPending, 0)},
			want:  []types.TaskID{"b", "a"},
		},
		{
			name:      "known ids keep position, new ids append",
			displayed: []types.CanonicalTask{task("1", types.StatusPending, 0), task("2", types.StatusPending, 0)},
			fresh:     []types.CanonicalTask{task("9", types.StatusPending, 0), task("2", types.StatusCompleted, 100), task("1", types.StatusPending, 0)},
			want:      []types.TaskID{"1", "2", "9"},
		},
		{
			name:      "ids missing from fresh are dropped",
			displayed: []types.CanonicalTask{task("1", types.StatusPending, 0), task("2", types.StatusPending, 0)},
			fresh:     []types.CanonicalTask{task("2", types.StatusPending, 0)},
			want:      []types.TaskID{"2"},
		},
		{
			name:  "duplicate fresh ids collapse",
			fresh: []types.CanonicalTask{task("1", types.StatusPending, 0), task("1", types.StatusCompleted, 100)},
			want:  []types.TaskID{"1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(merge(tt.displayed, tt.fresh)))
		})
	}
}

// One updated entry and one brand-new entry: the focused task survives by
// identity and exactly one entry is added
func TestMergeDeduplicatesAgainstDisplay(t *testing.T) {
	displayed := []types.CanonicalTask{
		task("1", types.StatusPending, 0),
		task("2", types.StatusInProgress, 20),
	}
	fresh := []types.CanonicalTask{
		task("3", types.StatusPending, 0),
		task("1", types.StatusPending, 0),
		task("2", types.StatusInProgress, 60),
	}

	merged := merge(displayed, fresh)
	focused := refocus(displayed, merged, "2")

	assert.Len(t, merged, len(displayed)+1)
	assert.Equal(t, types.TaskID("2"), focused)
	assert.Equal(t, 60, merged[indexOf(merged, "2")].ProgressPercent)

	added := 0
	for _, m := range merged {
		if indexOf(displayed, m.ID) < 0 {
			added++
		}
	}
	assert.Equal(t, 1, added)
}

func TestMergeLastDuplicateWins(t *testing.T) {
	merged := merge(nil, []types.CanonicalTask{task("1", types.StatusPending, 0), task("1", types.StatusCompleted, 100)})
	assert.Equal(t, types.StatusCompleted, merged[0].Status)
}

func TestRefocus(t *testing.T) {
	previous := []types.CanonicalTask{
		task("1", types.StatusPending, 0),
		task("2", types.StatusPending, 0),
		task("3", types.StatusPending, 0),
	}

	tests := []struct {
		name    string
		tasks   []types.CanonicalTask
		focused types.TaskID
		want    types.TaskID
	}{
		{"no focus picks first active", previous, "", "1"},
		{"active focus kept", previous, "2", "2"},
		{
			"completed focus moves forward",
			[]types.CanonicalTask{task("1", types.StatusPending, 0), task("2", types.StatusCompleted, 100), task("3", types.StatusPending, 0)},
			"2", "3",
		},
		{
			"vanished focus resumes at its successor",
			[]types.CanonicalTask{task("1", types.StatusPending, 0), task("3", types.StatusPending, 0)},
			"2", "3",
		},
		{
			"wraps around",
			[]types.CanonicalTask{task("1", types.StatusPending, 0), task("2", types.StatusPending, 0), task("3", types.StatusCancelled, 0)},
			"3", "1",
		},
		{"nothing active", []types.CanonicalTask{task("1", types.StatusCompleted, 100)}, "1", ""},
		{"empty list", nil, "1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, refocus(previous, tt.tasks, tt.focused))
		})
	}
}
