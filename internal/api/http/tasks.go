package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

// TaskUpdateRequest is the PUT /tasks/:id body
type TaskUpdateRequest struct {
	Status   string `json:"status"`
	Progress *int   `json:"progress"`
	Comments string `json:"comments"`
}

// ListTasks returns the synchronizer snapshot
func (h *Handlers) ListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, h.tasks.Snapshot())
}

// RefreshTasks runs one refresh cycle and returns the resulting snapshot.
// A Fallback outcome is still a 200; the snapshot says what was shown.
func (h *Handlers) RefreshTasks(c *gin.Context) {
	h.tasks.Refresh(c.Request.Context())
	c.JSON(http.StatusOK, h.tasks.Snapshot())
}

// AdvanceTasks moves focus to the next active task
func (h *Handlers) AdvanceTasks(c *gin.Context) {
	c.JSON(http.StatusOK, h.tasks.Advance())
}

// FocusTask pins the display to one task
func (h *Handlers) FocusTask(c *gin.Context) {
	id := types.TaskID(strings.TrimSpace(c.Param("id")))
	if err := h.tasks.Focus(id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.tasks.Snapshot())
}

// UpdateTask submits a status/progress/comment update to the task API
func (h *Handlers) UpdateTask(c *gin.Context) {
	id := types.TaskID(strings.TrimSpace(c.Param("id")))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task id is required"})
		return
	}

	var req TaskUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Status == "" && req.Progress == nil && req.Comments == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	var status types.TaskStatus
	if req.Status != "" {
		status = types.ParseStatus(req.Status)
		if !status.Known() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + req.Status})
			return
		}
	}

	if err := h.tasks.Submit(c.Request.Context(), id, status, req.Progress, req.Comments); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.tasks.Snapshot())
}
