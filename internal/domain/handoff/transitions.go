package handoff

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/clouddesk/internal/domain/supervisor"
	"github.com/GriffinCanCode/clouddesk/internal/shared/id"
	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

func alive(h *supervisor.ProcessHandle) bool {
	return h != nil && !h.State().Terminal()
}

// toDesktopLocked starts BrowserActive → TransitioningToDesktop. The
// desktop target is resolved up front so a missing executable leaves the
// browser untouched.
func (c *Controller) toDesktopLocked(ctx context.Context, doc *types.MailboxDocument) error {
	c.mu.RLock()
	session := c.session
	desktopUp := alive(c.desktop)
	c.mu.RUnlock()

	switch {
	case session == Exiting:
		return ErrExiting
	case session.Transitioning():
		c.queue(trigger{name: "document", run: func(ctx context.Context) error {
			return c.HandleDocument(ctx, doc)
		}})
		return ErrBusy
	case session != BrowserActive:
		return fmt.Errorf("%w: hand off to desktop from %s", ErrInvalidTransition, session)
	}

	if !desktopUp {
		if err := c.resolvable(RoleDesktop); err != nil {
			c.fail(err)
			return err
		}
	}

	hid := id.NewHandoffID()
	c.mu.Lock()
	c.handoffID = hid
	c.beginSpanLocked(ctx, hid, "handoff.to_desktop")
	c.lastDocID = doc.DocumentID
	if doc.User != nil {
		c.user = doc.User
	}
	c.selectedRole = doc.SelectedRole
	c.lastErr = nil
	browser := c.browser
	c.browser = nil
	c.browserLaunched = false
	c.ready = make(chan struct{})
	c.setSessionLocked(TransitioningToDesktop)
	c.mu.Unlock()
	c.publish()

	c.terminate(RoleBrowser, browser)
	c.runTransitionLocked(TransitioningToDesktop, hid, c.launchDesktopLocked)
	return nil
}

// toBrowserLocked starts DesktopActive → TransitioningToBrowser
func (c *Controller) toBrowserLocked(ctx context.Context, terminatePeer bool) error {
	c.mu.RLock()
	launched := c.browserLaunched
	c.mu.RUnlock()
	if !launched {
		if err := c.resolvable(RoleBrowser); err != nil {
			c.fail(err)
			return err
		}
	}

	hid := id.NewHandoffID()
	c.mu.Lock()
	c.handoffID = hid
	c.beginSpanLocked(ctx, hid, "handoff.to_browser")
	c.shouldTerminatePeer = terminatePeer
	c.lastErr = nil
	c.setSessionLocked(TransitioningToBrowser)
	c.mu.Unlock()
	c.publish()

	c.runTransitionLocked(TransitioningToBrowser, hid, c.completeBrowserLocked)
	return nil
}

// runTransitionLocked shows the transition display and calls next when it
// finishes. The display is cosmetic: if it cannot start, next runs at once.
func (c *Controller) runTransitionLocked(to Session, hid id.HandoffID, next func(id.HandoffID)) {
	h, err := c.spawn(RoleTransition, to)
	if err != nil {
		c.logger.Warn("Transition display unavailable, continuing without it", zap.Error(err))
		next(hid)
		return
	}

	c.mu.Lock()
	c.transition = h
	c.mu.Unlock()
	c.publish()

	c.watch(RoleTransition, h, func(code int) {
		c.step.Lock()
		defer c.step.Unlock()

		c.mu.Lock()
		if c.transition == h {
			c.transition = nil
			delete(c.watches, RoleTransition)
		}
		c.mu.Unlock()
		c.logger.Debug("Transition display finished", zap.Int("exit_code", code))
		next(hid)
	})
}

// launchDesktopLocked spawns the desktop session, or reuses one left
// running in the background, and waits for it to become ready
func (c *Controller) launchDesktopLocked(hid id.HandoffID) {
	if !c.current(TransitioningToDesktop, hid) {
		return
	}

	c.mu.RLock()
	existing := c.desktop
	ready := c.ready
	c.mu.RUnlock()
	if alive(existing) {
		c.logger.Info("Resuming background desktop session", zap.Int("pid", existing.PID))
		c.activateDesktopLocked()
		return
	}

	h, err := c.spawn(RoleDesktop, TransitioningToDesktop)
	if err != nil {
		c.abortToBrowserLocked(hid, err)
		return
	}

	c.mu.Lock()
	c.desktop = h
	c.mu.Unlock()
	c.watch(RoleDesktop, h, c.onDesktopExit(h))
	c.publish()

	go c.awaitReady(hid, h, ready)
}

func (c *Controller) awaitReady(hid id.HandoffID, h *supervisor.ProcessHandle, ready <-chan struct{}) {
	timer := time.NewTimer(c.readyTimeout)
	defer timer.Stop()
	select {
	case <-ready:
	case <-timer.C:
	case <-h.Done():
	}

	c.step.Lock()
	defer c.step.Unlock()
	if !c.current(TransitioningToDesktop, hid) {
		return
	}
	c.mu.RLock()
	same := c.desktop == h
	c.mu.RUnlock()
	if !same || !alive(h) {
		return
	}
	c.activateDesktopLocked()
}

func (c *Controller) activateDesktopLocked() {
	c.mu.Lock()
	c.setSessionLocked(DesktopActive)
	c.endSpanLocked(nil)
	c.mu.Unlock()
	c.publish()
	c.replay()
}

// abortToBrowserLocked abandons a forward handoff and restores the browser
func (c *Controller) abortToBrowserLocked(hid id.HandoffID, cause error) {
	c.logger.Error("Handoff to desktop aborted", zap.String("handoff_id", hid.String()), zap.Error(cause))

	c.mu.RLock()
	launched := c.browserLaunched
	c.mu.RUnlock()
	if !launched {
		if err := c.launchBrowserLocked(); err != nil {
			c.logger.Error("Browser relaunch failed", zap.Error(err))
		}
	}

	c.mu.Lock()
	c.lastErr = cause
	c.setSessionLocked(BrowserActive)
	c.endSpanLocked(cause)
	c.mu.Unlock()
	c.publish()
	c.replay()
}

// completeBrowserLocked finishes TransitioningToBrowser → BrowserActive and
// consumes shouldTerminatePeer
func (c *Controller) completeBrowserLocked(hid id.HandoffID) {
	if !c.current(TransitioningToBrowser, hid) {
		return
	}

	c.mu.RLock()
	launched := c.browserLaunched
	c.mu.RUnlock()
	if !launched {
		if err := c.launchBrowserLocked(); err != nil {
			c.mu.Lock()
			c.lastErr = err
			c.shouldTerminatePeer = false
			if alive(c.desktop) {
				c.setSessionLocked(DesktopActive)
			} else {
				c.setSessionLocked(BrowserActive)
			}
			c.endSpanLocked(err)
			c.mu.Unlock()
			c.logger.Error("Return to browser failed", zap.Error(err))
			c.publish()
			c.replay()
			return
		}
	}

	c.mu.Lock()
	var peer *supervisor.ProcessHandle
	if c.shouldTerminatePeer {
		peer = c.desktop
		c.desktop = nil
	}
	c.shouldTerminatePeer = false
	c.setSessionLocked(BrowserActive)
	c.endSpanLocked(nil)
	c.mu.Unlock()

	c.terminate(RoleDesktop, peer)
	c.publish()
	c.replay()
}

func (c *Controller) launchBrowserLocked() error {
	h, err := c.spawn(RoleBrowser, BrowserActive)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.browser = h
	c.browserLaunched = true
	c.mu.Unlock()
	c.watch(RoleBrowser, h, c.onBrowserExit(h))
	return nil
}

func (c *Controller) onBrowserExit(h *supervisor.ProcessHandle) func(int) {
	return func(code int) {
		c.step.Lock()
		defer c.step.Unlock()

		c.mu.Lock()
		if c.browser != h {
			c.mu.Unlock()
			return
		}
		c.browser = nil
		c.browserLaunched = false
		delete(c.watches, RoleBrowser)
		c.mu.Unlock()

		c.logger.Warn("Browser session exited", zap.Int("exit_code", code))
		c.publish()
	}
}

// onDesktopExit handles a desktop session that ended on its own
func (c *Controller) onDesktopExit(h *supervisor.ProcessHandle) func(int) {
	return func(code int) {
		c.step.Lock()
		defer c.step.Unlock()

		c.mu.Lock()
		if c.desktop != h {
			c.mu.Unlock()
			return
		}
		c.desktop = nil
		delete(c.watches, RoleDesktop)
		session, hid := c.session, c.handoffID
		c.mu.Unlock()

		c.logger.Info("Desktop session exited", zap.Int("exit_code", code), zap.String("session", string(session)))
		switch session {
		case TransitioningToDesktop:
			c.abortToBrowserLocked(hid, fmt.Errorf("desktop session exited with code %d before it was ready", code))
		case DesktopActive:
			if err := c.toBrowserLocked(context.Background(), false); err != nil {
				c.fail(err)
			}
		default:
			c.publish()
		}
	}
}
