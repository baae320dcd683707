package handoff

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/clouddesk/internal/domain/supervisor"
)

// Role identifies a spawn target
type Role string

const (
	RoleBrowser    Role = "browser"
	RoleDesktop    Role = "desktop"
	RoleTransition Role = "transition"
)

// Targets lists executable names per role in the order they are tried
type Targets struct {
	Browser    []string
	Desktop    []string
	Transition []string

	BrowserArgs    []string
	DesktopArgs    []string
	TransitionArgs func(to Session) []string
}

func (t Targets) names(role Role) []string {
	switch role {
	case RoleBrowser:
		return t.Browser
	case RoleDesktop:
		return t.Desktop
	case RoleTransition:
		return t.Transition
	}
	return nil
}

func (t Targets) args(role Role, to Session) []string {
	switch role {
	case RoleBrowser:
		return t.BrowserArgs
	case RoleDesktop:
		return t.DesktopArgs
	case RoleTransition:
		if t.TransitionArgs != nil {
			return t.TransitionArgs(to)
		}
		if to == TransitioningToDesktop {
			return []string{"--to", "desktop"}
		}
		return []string{"--to", "browser"}
	}
	return nil
}

// resolvable reports whether any name for role can be located, returning
// the combined SpawnError otherwise
func (c *Controller) resolvable(role Role) error {
	names := c.targets.names(role)
	if len(names) == 0 {
		return &supervisor.SpawnError{Command: string(role), Err: fmt.Errorf("no executable configured")}
	}
	var tried []string
	var last error
	for _, name := range names {
		_, candidates, err := c.sup.Resolve(name)
		if err == nil {
			return nil
		}
		tried = append(tried, candidates...)
		last = err
	}
	return &supervisor.SpawnError{Command: names[0], Candidates: tried, Err: last}
}

// spawn tries each name for role in order and returns the first process
// that starts
func (c *Controller) spawn(role Role, to Session) (*supervisor.ProcessHandle, error) {
	names := c.targets.names(role)
	if len(names) == 0 {
		return nil, &supervisor.SpawnError{Command: string(role), Err: fmt.Errorf("no executable configured")}
	}

	var errs []error
	var tried []string
	for _, name := range names {
		h, err := c.sup.Spawn(name, c.targets.args(role, to)...)
		if err == nil {
			return h, nil
		}
		var spawnErr *supervisor.SpawnError
		if errors.As(err, &spawnErr) {
			tried = append(tried, spawnErr.Candidates...)
		}
		errs = append(errs, err)
	}
	return nil, &supervisor.SpawnError{Command: names[0], Candidates: tried, Err: errors.Join(errs...)}
}
