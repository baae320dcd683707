package taskapi

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

// TaskUpdate is the body of a task submission
type TaskUpdate struct {
	Status   string `json:"status"`
	Progress *int   `json:"progress,omitempty"`
	Comments string `json:"comments,omitempty"`
}

// remoteTask is one task as the API returns it. Field spellings vary
// between API versions so both forms are accepted.
type remoteTask struct {
	ID           types.TaskID `json:"id"`
	TaskID       types.TaskID `json:"task_id"`
	Name         string       `json:"name"`
	Title        string       `json:"title"`
	Type         string       `json:"type"`
	TaskType     string       `json:"task_type"`
	Phase        string       `json:"phase"`
	RoleBinding  string       `json:"role_binding"`
	Description  string       `json:"description"`
	Status       flexString   `json:"status"`
	Progress     flexString   `json:"progress"`
	Priority     flexString   `json:"priority"`
	AssignedAt   flexString   `json:"assigned_at"`
	UpdatedAt    flexString   `json:"updated_at"`
	LastModified flexString   `json:"last_update"`
}

// flexString accepts a JSON string, number or bool as text
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*f = ""
	case data[0] == '"':
		var s string
		if err := sonic.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		*f = flexString(data)
	}
	return nil
}

func (t remoteTask) canonical() types.CanonicalTask {
	task := types.CanonicalTask{
		ID:           first(t.ID, t.TaskID),
		Name:         firstString(t.Name, t.Title),
		Type:         firstString(t.Type, t.TaskType),
		Phase:        t.Phase,
		RoleBinding:  t.RoleBinding,
		Description:  t.Description,
		Status:       types.ParseStatus(string(t.Status)),
		Priority:     types.ParsePriority(string(t.Priority)),
		SourceFormat: types.FormatCache,
	}
	if p, ok := percent(string(t.Progress)); ok {
		task.ProgressPercent = p
	}
	task.AssignedAt = timestamp(string(t.AssignedAt))
	task.LastUpdate = timestamp(firstString(string(t.UpdatedAt), string(t.LastModified)))
	task.Normalize()
	return task
}

func first(ids ...types.TaskID) types.TaskID {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func percent(s string) (int, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return types.ClampProgress(int(math.Round(f))), true
}

func timestamp(s string) *time.Time {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	ts, err := types.ParseTimestamp(s)
	if err != nil {
		return nil
	}
	return &ts
}

// decodeTasks accepts a bare array or an object wrapping it under
// "tasks", "data" or "items"
func decodeTasks(body []byte) ([]remoteTask, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if body[0] == '[' {
		var tasks []remoteTask
		if err := sonic.Unmarshal(body, &tasks); err != nil {
			return nil, err
		}
		return tasks, nil
	}
	var wrapped struct {
		Tasks []remoteTask `json:"tasks"`
		Data  []remoteTask `json:"data"`
		Items []remoteTask `json:"items"`
	}
	if err := sonic.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	switch {
	case wrapped.Tasks != nil:
		return wrapped.Tasks, nil
	case wrapped.Data != nil:
		return wrapped.Data, nil
	}
	return wrapped.Items, nil
}

// FetchTasks returns the authenticated user's tasks, optionally filtered by
// status. Entries without an id are dropped.
func (c *Client) FetchTasks(ctx context.Context, status string) ([]types.CanonicalTask, error) {
	return resilience.Call(ctx, c.breaker, func(ctx context.Context) ([]types.CanonicalTask, error) {
		req, err := c.authorized(ctx)
		if err != nil {
			return nil, err
		}
		if status != "" {
			req.SetQueryParam("status", status)
		}
		resp, err := req.Get(tasksPath)
		if err := c.check("fetch tasks", resp, err); err != nil {
			return nil, err
		}

		remote, err := decodeTasks(resp.Body())
		if err != nil {
			return nil, &RemoteFetchError{Op: "fetch tasks", StatusCode: resp.StatusCode(), Err: fmt.Errorf("decode response: %w", err)}
		}

		tasks := make([]types.CanonicalTask, 0, len(remote))
		for _, rt := range remote {
			task := rt.canonical()
			if task.ID == "" {
				c.logger.Debug("dropping task without id", zap.String("name", task.Name))
				continue
			}
			tasks = append(tasks, task)
		}
		c.logger.Debug("fetched tasks", zap.Int("count", len(tasks)), zap.String("status", status))
		return tasks, nil
	})
}

// UpdateTask submits a status change for one task
func (c *Client) UpdateTask(ctx context.Context, id types.TaskID, update TaskUpdate) error {
	if id == "" {
		return &RemoteFetchError{Op: "update task", Err: fmt.Errorf("task id is required")}
	}
	return c.breaker.Do(ctx, func(ctx context.Context) error {
		req, err := c.authorized(ctx)
		if err != nil {
			return err
		}
		resp, err := req.
			SetBody(update).
			SetPathParam("id", id.String()).
			Put(tasksPath + "/{id}")
		if err := c.check("update task", resp, err); err != nil {
			return err
		}
		c.logger.Info("task updated", zap.String("task_id", id.String()), zap.String("status", update.Status))
		return nil
	})
}
