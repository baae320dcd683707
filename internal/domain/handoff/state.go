package handoff

import (
	"errors"

	"github.com/GriffinCanCode/clouddesk/internal/domain/supervisor"
	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

// Session names who owns the screen
type Session string

const (
	BrowserActive          Session = "BrowserActive"
	TransitioningToDesktop Session = "TransitioningToDesktop"
	DesktopActive          Session = "DesktopActive"
	TransitioningToBrowser Session = "TransitioningToBrowser"
	Exiting                Session = "Exiting"
)

// Transitioning reports whether a handoff is under way
func (s Session) Transitioning() bool {
	return s == TransitioningToDesktop || s == TransitioningToBrowser
}

var (
	// ErrBusy means a handoff is already in progress. The trigger was
	// queued and will be retried once the controller is idle.
	ErrBusy = errors.New("handoff in progress")

	// ErrInvalidTransition means the trigger does not apply to the current
	// session
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrExiting means the controller is shutting down
	ErrExiting = errors.New("session is exiting")
)

// State is a point-in-time view of the controller
type State struct {
	Session             Session                 `json:"session"`
	ShouldTerminatePeer bool                    `json:"shouldTerminatePeer"`
	BrowserLaunched     bool                    `json:"browserLaunched"`
	Handles             []supervisor.HandleInfo `json:"handles"`
	Transitions         uint64                  `json:"transitions"`
	HandoffID           string                  `json:"handoffId,omitempty"`
	Pending             bool                    `json:"pending"`
	User                *types.CanonicalUser    `json:"user,omitempty"`
	SelectedRole        *types.SelectedRole     `json:"selectedRole,omitempty"`
	LastError           string                  `json:"lastError,omitempty"`
}
