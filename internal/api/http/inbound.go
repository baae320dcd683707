package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

// Status is the liveness probe polled by producers before they upload
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "clouddesk",
	})
}

// Health reports the state of each wired component
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status": "healthy",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}
	if h.session != nil {
		st := h.session.State()
		body["session"] = gin.H{
			"state":           st.Session,
			"browserLaunched": st.BrowserLaunched,
			"transitions":     st.Transitions,
			"processes":       len(st.Handles),
		}
	}
	if h.tasks != nil {
		snap := h.tasks.Snapshot()
		body["sync"] = gin.H{
			"phase":       snap.Phase,
			"lastOutcome": snap.LastOutcome,
			"stale":       snap.Stale,
			"tasks":       len(snap.Tasks),
		}
	}
	c.JSON(http.StatusOK, body)
}

// Upload accepts a producer document and stores it as the active mailbox
// file. The mailbox watcher picks it up from there.
func (h *Handlers) Upload(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if detected := mimetype.Detect(body); !isJSON(detected) {
		h.logger.Info("Upload rejected", zap.String("detected", detected.String()), zap.Int("bytes", len(body)))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "body is not a JSON document",
			"detected": detected.String(),
		})
		return
	}

	if err := h.inbox.AcceptInbound(body); err != nil {
		h.logger.Info("Upload rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("Mailbox document received", zap.Int("bytes", len(body)))
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func isJSON(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("application/json") {
			return true
		}
	}
	return false
}

// TasksResponse is the /get-tasks body
type TasksResponse struct {
	User      *types.CanonicalUser  `json:"user"`
	Tasks     []types.CanonicalTask `json:"tasks"`
	FocusedID types.TaskID          `json:"focusedId,omitempty"`
	Source    string                `json:"source"`
	Format    types.ProducerFormat  `json:"format,omitempty"`
	Stale     bool                  `json:"stale"`
	NoTasks   bool                  `json:"noTasks"`
	UpdatedAt *time.Time            `json:"updatedAt,omitempty"`
}

// GetTasks returns the task list currently on display: the synchronizer's
// view when this process runs one, the mailbox document otherwise
func (h *Handlers) GetTasks(c *gin.Context) {
	if h.tasks != nil {
		snap := h.tasks.Snapshot()
		resp := TasksResponse{
			User:      snap.User,
			Tasks:     snap.Tasks,
			FocusedID: snap.FocusedID,
			Source:    "synchronizer",
			Stale:     snap.Stale,
			NoTasks:   snap.NoTasks,
		}
		if !snap.LastRefresh.IsZero() {
			resp.UpdatedAt = &snap.LastRefresh
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	doc, err := h.inbox.Read()
	if err != nil {
		h.respondError(c, err)
		return
	}
	if doc == nil {
		c.JSON(http.StatusOK, TasksResponse{Tasks: []types.CanonicalTask{}, Source: "none", NoTasks: true})
		return
	}
	if !doc.Normalized {
		doc, _, err = h.normalizer.NormalizeDocument(doc)
		if err != nil {
			h.respondError(c, err)
			return
		}
	}

	tasks := doc.Tasks
	if tasks == nil {
		tasks = []types.CanonicalTask{}
	}
	resp := TasksResponse{
		User:    doc.User,
		Tasks:   tasks,
		Source:  string(doc.Source),
		Format:  doc.ProducerFormat,
		NoTasks: len(tasks) == 0,
	}
	if !doc.WrittenAt.IsZero() {
		resp.UpdatedAt = &doc.WrittenAt
	}
	c.JSON(http.StatusOK, resp)
}
