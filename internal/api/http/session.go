package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/clouddesk/internal/domain/handoff"
)

// ExitDesktopRequest is the /session/exit-desktop body. An empty body keeps
// the desktop running in the background.
type ExitDesktopRequest struct {
	TerminatePeer bool `json:"terminatePeer"`
}

// SessionState returns the handoff controller snapshot
func (h *Handlers) SessionState(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.State())
}

// ExitDesktop hands the screen back to the browser session
func (h *Handlers) ExitDesktop(c *gin.Context) {
	var req ExitDesktopRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.session.ExitDesktop(c.Request.Context(), req.TerminatePeer)
	switch {
	case errors.Is(err, handoff.ErrBusy):
		c.JSON(http.StatusAccepted, gin.H{"status": "queued", "state": h.session.State()})
	case err != nil:
		h.respondError(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "success", "state": h.session.State()})
	}
}

// DesktopReady is called by the desktop session once it is up
func (h *Handlers) DesktopReady(c *gin.Context) {
	h.session.ConfirmDesktop()
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Quit tears down every child process and purges the mailbox
func (h *Handlers) Quit(c *gin.Context) {
	if err := h.session.Quit(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "exiting"})

	if h.onQuit != nil {
		c.Writer.Flush()
		go h.onQuit()
	}
}
