package supervisor

import (
	"os/exec"
	"sync"
	"time"

	"github.com/GriffinCanCode/clouddesk/internal/shared/id"
)

// ProcessState is the lifecycle of a spawned process
type ProcessState string

const (
	StateStarting ProcessState = "Starting"
	StateRunning  ProcessState = "Running"
	StateExited   ProcessState = "Exited"
	StateKilled   ProcessState = "Killed"
)

// Terminal reports whether the process is gone
func (s ProcessState) Terminal() bool {
	return s == StateExited || s == StateKilled
}

// ProcessHandle tracks one spawned process
type ProcessHandle struct {
	ID        id.ProcessID
	Name      string
	PID       int
	Command   string
	Args      []string
	StartedAt time.Time

	cmd  *exec.Cmd
	done chan struct{}
	term sync.Mutex // serializes Terminate

	mu        sync.RWMutex
	state     ProcessState
	exitCode  int
	exitedAt  time.Time
	signalled bool
	forceKill bool
}

// HandleInfo is a serializable view of a handle
type HandleInfo struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	PID       int          `json:"pid"`
	Command   string       `json:"command"`
	State     ProcessState `json:"state"`
	StartedAt time.Time    `json:"startedAt"`
	ExitCode  *int         `json:"exitCode,omitempty"`
}

// State returns the current lifecycle state
func (h *ProcessHandle) State() ProcessState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// ExitCode returns the exit code once the process is gone. Processes ended
// by a signal report -1.
func (h *ProcessHandle) ExitCode() (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.exitCode, h.state.Terminal()
}

// Done is closed when the process has been reaped
func (h *ProcessHandle) Done() <-chan struct{} {
	return h.done
}

// Info returns a snapshot suitable for status endpoints
func (h *ProcessHandle) Info() HandleInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	info := HandleInfo{
		ID:        h.ID.String(),
		Name:      h.Name,
		PID:       h.PID,
		Command:   h.Command,
		State:     h.state,
		StartedAt: h.StartedAt,
	}
	if h.state.Terminal() {
		code := h.exitCode
		info.ExitCode = &code
	}
	return info
}

func (h *ProcessHandle) markSignalled(force bool) {
	h.mu.Lock()
	h.signalled = true
	if force {
		h.forceKill = true
	}
	h.mu.Unlock()
}

// finish records the reaped state and reports how the process ended. Only a
// forced kill after the grace period leaves the handle Killed; a process that
// honours the graceful signal has Exited.
func (h *ProcessHandle) finish(code int) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exitCode = code
	h.exitedAt = time.Now()
	switch {
	case h.forceKill:
		h.state = StateKilled
		return "forced"
	case h.signalled:
		h.state = StateExited
		return "graceful"
	}
	h.state = StateExited
	return "exited"
}
