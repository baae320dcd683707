package server

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/clouddesk/internal/api/http"
	"github.com/GriffinCanCode/clouddesk/internal/api/ws"
	"github.com/GriffinCanCode/clouddesk/internal/domain/handoff"
	"github.com/GriffinCanCode/clouddesk/internal/domain/normalize"
	"github.com/GriffinCanCode/clouddesk/internal/domain/supervisor"
	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/config"
)

// AutoOpenTasksFlag is passed to the desktop session on every forward handoff
const AutoOpenTasksFlag = "--auto-open-tasks"

// Launcher is the server of the launcher process
type Launcher struct {
	*Server
	supervisor *supervisor.Supervisor
	controller *handoff.Controller
}

// NewLauncher wires the supervisor, mailbox, normalizer and handoff
// controller behind the inbound listener
func NewLauncher(cfg *config.Config) (*Launcher, error) {
	s, err := base("launcher", cfg.Server.Addr(), cfg)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Initializing launcher",
		zap.String("addr", cfg.Server.Addr()),
		zap.Strings("desktop_targets", cfg.Executables.Desktop),
	)

	sup := supervisor.New(supervisor.Config{
		SearchRoots:  cfg.Supervisor.SearchRoots,
		PollInterval: cfg.Supervisor.PollInterval.Std(),
		GracePeriod:  cfg.Supervisor.GracePeriod.Std(),
		Env:          childEnv(cfg),
		Logger:       s.logger.Logger,
		Metrics:      s.metrics,
	})

	normalizer := normalize.New(s.logger.Logger, s.metrics)

	controller, err := handoff.New(handoff.Config{
		Supervisor: sup,
		Mailbox:    s.store,
		Normalizer: normalizer,
		Targets: handoff.Targets{
			Browser:     cfg.Executables.Browser,
			Desktop:     cfg.Executables.Desktop,
			Transition:  cfg.Executables.Transition,
			DesktopArgs: []string{AutoOpenTasksFlag},
		},
		GracePeriod:  cfg.Supervisor.GracePeriod.Std(),
		ReadyTimeout: cfg.Supervisor.ReadyTimeout.Std(),
		Logger:       s.logger.Logger,
		Metrics:      s.metrics,
		Tracer:       s.tracer,
	})
	if err != nil {
		s.tracer.Close()
		return nil, fmt.Errorf("failed to create handoff controller: %w", err)
	}

	l := &Launcher{Server: s, supervisor: sup, controller: controller}

	handlers := apihttp.NewHandlers(apihttp.Options{
		Inbox:      s.store,
		Session:    controller,
		Normalizer: normalizer,
		Logger:     s.logger.Logger,
		OnQuit:     s.requestQuit,
	})
	handlers.Register(s.router)

	wsHandler := ws.NewHandler(ws.Options{
		Session: controller,
		Metrics: s.metrics,
		Logger:  s.logger.Logger,
	})
	s.router.GET("/stream", wsHandler.HandleConnection)

	s.start = l.start
	s.stop = l.stop

	s.logger.Info("Launcher initialized successfully")
	return l, nil
}

// Controller exposes the handoff controller
func (l *Launcher) Controller() *handoff.Controller {
	return l.controller
}

// start launches the browser session and begins watching the mailbox
func (l *Launcher) start(ctx context.Context) error {
	if err := l.controller.Start(ctx); err != nil {
		// Producers can still reach the listener; a later handoff retries
		// the spawn on the way back
		l.logger.Error("Browser session did not start", zap.Error(err))
	}

	return l.store.Watch(ctx, func() {
		err := l.controller.OnMailboxChange(ctx)
		switch {
		case err == nil, errors.Is(err, handoff.ErrBusy), errors.Is(err, handoff.ErrExiting):
		default:
			l.logger.Warn("Mailbox change not applied", zap.Error(err))
		}
	})
}

// stop tears every child down. A quit over HTTP already did.
func (l *Launcher) stop(ctx context.Context, interrupted bool) {
	if err := l.controller.Quit(ctx); err != nil && !errors.Is(err, handoff.ErrExiting) {
		l.logger.Warn("Quit failed", zap.Error(err), zap.Bool("interrupted", interrupted))
	}
}

// childEnv points spawned sessions at this launcher and its mailbox
func childEnv(cfg *config.Config) []string {
	return []string{
		"LAUNCHER_URL=http://" + cfg.Server.Addr(),
		"MAILBOX_DIR=" + cfg.Mailbox.Dir,
		"MAILBOX_FILE=" + cfg.Mailbox.File,
	}
}
