package http

import (
	"github.com/gin-gonic/gin"
)

// Register mounts the routes backed by the configured components
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/status", h.Status)
	r.GET("/health", h.Health)

	if h.inbox != nil {
		r.POST("/upload", h.Upload)
	}
	if h.inbox != nil || h.tasks != nil {
		r.GET("/get-tasks", h.GetTasks)
	}

	if h.session != nil {
		session := r.Group("/session")
		session.GET("", h.SessionState)
		session.POST("/exit-desktop", h.ExitDesktop)
		session.POST("/desktop-ready", h.DesktopReady)
		session.POST("/quit", h.Quit)
	}

	if h.tasks != nil {
		tasks := r.Group("/tasks")
		tasks.GET("", h.ListTasks)
		tasks.POST("/refresh", h.RefreshTasks)
		tasks.POST("/advance", h.AdvanceTasks)
		tasks.POST("/:id/focus", h.FocusTask)
		tasks.PUT("/:id", h.UpdateTask)
	}
}
