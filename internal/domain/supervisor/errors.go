package supervisor

import (
	"fmt"
	"strings"
	"time"
)

// SpawnError reports a target that could not be located or started
type SpawnError struct {
	Command    string
	Candidates []string
	Err        error
}

func (e *SpawnError) Error() string {
	if len(e.Candidates) > 0 {
		return fmt.Sprintf("spawn %s: %v (tried %s)", e.Command, e.Err, strings.Join(e.Candidates, ", "))
	}
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TerminationTimeoutError records a process that ignored the graceful
// signal for its whole grace period and had to be killed
type TerminationTimeoutError struct {
	PID   int
	Grace time.Duration
}

func (e *TerminationTimeoutError) Error() string {
	return fmt.Sprintf("process %d did not exit within %s, killed", e.PID, e.Grace)
}
