package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/clouddesk/internal/domain/handoff"
	"github.com/GriffinCanCode/clouddesk/internal/domain/mailbox"
	"github.com/GriffinCanCode/clouddesk/internal/domain/normalize"
	"github.com/GriffinCanCode/clouddesk/internal/domain/supervisor"
	"github.com/GriffinCanCode/clouddesk/internal/domain/tasksync"
	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/clouddesk/internal/providers/taskapi"
)

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	var (
		readErr    *mailbox.ReadError
		validation *normalize.ValidationError
		unknown    *normalize.UnrecognizedSchemaError
		malformed  *normalize.MalformedError
		spawnErr   *supervisor.SpawnError
		authErr    *taskapi.AuthenticationError
		fetchErr   *taskapi.RemoteFetchError
	)
	switch {
	case errors.Is(err, handoff.ErrBusy):
		return http.StatusAccepted
	case errors.Is(err, handoff.ErrInvalidTransition), errors.Is(err, handoff.ErrExiting):
		return http.StatusConflict
	case errors.Is(err, tasksync.ErrUnknownTask):
		return http.StatusNotFound
	case errors.Is(err, tasksync.ErrInactiveTask):
		return http.StatusConflict
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.As(err, &readErr), errors.As(err, &malformed):
		return http.StatusBadRequest
	case errors.As(err, &validation), errors.As(err, &unknown):
		return http.StatusUnprocessableEntity
	case errors.As(err, &spawnErr):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handlers) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
