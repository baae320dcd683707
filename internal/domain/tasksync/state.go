package tasksync

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

// State is a refresh cycle phase
type State string

const (
	StateIdle           State = "Idle"
	StateAuthenticating State = "Authenticating"
	StateFetching       State = "Fetching"
	StateSuccess        State = "Success"
	StateFallback       State = "Fallback"
)

// ErrNoCredentials means neither the current user nor the cached document
// carries API credentials
var ErrNoCredentials = errors.New("no credentials available for the task API")

// Focus errors
var (
	ErrUnknownTask  = errors.New("task is not displayed")
	ErrInactiveTask = errors.New("task is not active")
)

// Snapshot is what the desktop session displays
type Snapshot struct {
	User        *types.CanonicalUser  `json:"user,omitempty"`
	Tasks       []types.CanonicalTask `json:"tasks"`
	FocusedID   types.TaskID          `json:"focusedId,omitempty"`
	FocusIndex  int                   `json:"focusIndex"`
	Phase       State                 `json:"phase"`
	LastOutcome State                 `json:"lastOutcome,omitempty"`
	Stale       bool                  `json:"stale"`
	NoTasks     bool                  `json:"noTasks"`
	LastError   string                `json:"lastError,omitempty"`
	LastRefresh time.Time             `json:"lastRefresh,omitempty"`
	Cycles      uint64                `json:"cycles"`
}

// Focused returns the focused task, if any
func (s Snapshot) Focused() (types.CanonicalTask, bool) {
	if s.FocusIndex < 0 || s.FocusIndex >= len(s.Tasks) {
		return types.CanonicalTask{}, false
	}
	return s.Tasks[s.FocusIndex], true
}
