package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TaskStatus is the canonical lifecycle state of a task
type TaskStatus string

const (
	StatusUnassigned TaskStatus = "Unassigned"
	StatusPending    TaskStatus = "Pending"
	StatusInProgress TaskStatus = "InProgress"
	StatusCompleted  TaskStatus = "Completed"
	StatusPaused     TaskStatus = "Paused"
	StatusCancelled  TaskStatus = "Cancelled"
	StatusUnknown    TaskStatus = "Unknown"
)

var knownStatuses = map[TaskStatus]bool{
	StatusUnassigned: true,
	StatusPending:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusPaused:     true,
	StatusCancelled:  true,
}

// Known reports whether the status belongs to the canonical enumeration.
// Raw producer values are kept verbatim and report false.
func (s TaskStatus) Known() bool {
	return knownStatuses[s]
}

// Active reports whether the task is eligible for display rotation
func (s TaskStatus) Active() bool {
	switch s {
	case StatusUnassigned, StatusPending, StatusInProgress:
		return true
	}
	return false
}

// Priority is the canonical urgency of a task
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityNormal Priority = "Normal"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

// Known reports whether the priority belongs to the canonical enumeration
func (p Priority) Known() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// TaskID identifies a task within a sync batch. Producers send either
// integers or strings; both are stored as their decimal/text form.
type TaskID string

// UnmarshalJSON accepts a JSON number or string
func (id *TaskID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TaskID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("task id must be a number or string: %w", err)
	}
	*id = TaskID(n.String())
	return nil
}

// Int returns the numeric form of the id when it has one
func (id TaskID) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

func (id TaskID) String() string { return string(id) }

// CanonicalTask is one unit of work assigned to a user
type CanonicalTask struct {
	ID              TaskID         `json:"id"`
	Name            string         `json:"name"`
	Type            string         `json:"type"`
	Phase           string         `json:"phase"`
	RoleBinding     string         `json:"roleBinding"`
	Description     string         `json:"description,omitempty"`
	Status          TaskStatus     `json:"status"`
	StatusFlagged   bool           `json:"statusFlagged,omitempty"`
	ProgressPercent int            `json:"progressPercent"`
	Priority        Priority       `json:"priority"`
	PriorityFlagged bool           `json:"priorityFlagged,omitempty"`
	AssignedAt      *time.Time     `json:"assignedAt,omitempty"`
	LastUpdate      *time.Time     `json:"lastUpdate,omitempty"`
	SourceFormat    ProducerFormat `json:"sourceFormat"`
}

// Normalize enforces the task invariants in place
func (t *CanonicalTask) Normalize() {
	t.ProgressPercent = ClampProgress(t.ProgressPercent)
	if strings.TrimSpace(string(t.Status)) == "" {
		t.Status = StatusUnknown
	}
	t.StatusFlagged = !t.Status.Known() && t.Status != StatusUnknown
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
	t.PriorityFlagged = !t.Priority.Known()
}

// ClampProgress bounds a percentage to [0,100]
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// ParseStatus maps producer spellings onto the canonical enumeration.
// Unrecognized values are returned verbatim.
func ParseStatus(raw string) TaskStatus {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return StatusUnknown
	}
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(trimmed))
	switch key {
	case "unassigned", "0":
		return StatusUnassigned
	case "pending", "assigned", "todo", "1":
		return StatusPending
	case "inprogress", "running", "active", "started", "2":
		return StatusInProgress
	case "completed", "complete", "done", "finished", "3":
		return StatusCompleted
	case "paused", "suspended", "onhold", "4":
		return StatusPaused
	case "cancelled", "canceled", "aborted", "5":
		return StatusCancelled
	}
	return TaskStatus(trimmed)
}

// ParsePriority maps producer spellings onto the canonical enumeration.
// Unrecognized values are returned verbatim.
func ParsePriority(raw string) Priority {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "":
		return PriorityNormal
	case "low", "1":
		return PriorityLow
	case "normal", "medium", "2":
		return PriorityNormal
	case "high", "3":
		return PriorityHigh
	case "urgent", "critical", "4":
		return PriorityUrgent
	}
	return Priority(trimmed)
}
