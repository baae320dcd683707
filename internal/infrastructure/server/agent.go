package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/clouddesk/internal/api/http"
	"github.com/GriffinCanCode/clouddesk/internal/api/ws"
	"github.com/GriffinCanCode/clouddesk/internal/domain/handoff"
	"github.com/GriffinCanCode/clouddesk/internal/domain/mailbox"
	"github.com/GriffinCanCode/clouddesk/internal/domain/normalize"
	"github.com/GriffinCanCode/clouddesk/internal/domain/tasksync"
	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/config"
	"github.com/GriffinCanCode/clouddesk/internal/providers/launcher"
	"github.com/GriffinCanCode/clouddesk/internal/providers/taskapi"
)

// ExitMode selects what the agent asks of the launcher when it leaves
type ExitMode string

const (
	// ExitSilently just exits; the launcher notices the process is gone
	ExitSilently ExitMode = ""
	// ExitTerminate hands back to the browser and tears the desktop down
	ExitTerminate ExitMode = "terminate"
	// ExitKeep hands back to the browser and leaves the desktop running
	ExitKeep ExitMode = "keep"
)

// ParseExitMode validates an --exit-mode value
func ParseExitMode(s string) (ExitMode, error) {
	switch m := ExitMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ExitSilently, ExitTerminate, ExitKeep:
		return m, nil
	}
	return "", fmt.Errorf("unknown exit mode %q (want terminate or keep)", s)
}

// AgentOptions carries the desktop agent's startup flags
type AgentOptions struct {
	// AutoOpenTasks refreshes immediately instead of on the first tick
	AutoOpenTasks bool
	// Backup archives existing mailbox backups before the first refresh
	Backup bool
	// Restore reinstates the newest mailbox backup before the first refresh
	Restore bool
	ExitMode ExitMode
}

// Agent is the server of the desktop-session agent process
type Agent struct {
	*Server
	opts     AgentOptions
	sync     *tasksync.Synchronizer
	launcher *launcher.Client
}

// NewAgent wires the remote task API, the synchronizer and the launcher
// client behind the agent listener
func NewAgent(cfg *config.Config, opts AgentOptions) (*Agent, error) {
	s, err := base("desktop-agent", cfg.Agent.Addr(), cfg)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Initializing desktop agent",
		zap.String("addr", cfg.Agent.Addr()),
		zap.String("launcher", cfg.Agent.LauncherURL),
		zap.String("remote", cfg.Remote.BaseURL),
		zap.Bool("auto_open_tasks", opts.AutoOpenTasks),
		zap.String("exit_mode", string(opts.ExitMode)),
	)

	remote := taskapi.NewClient(taskapi.Config{
		BaseURL:         cfg.Remote.BaseURL,
		LoginType:       cfg.Remote.LoginType,
		Timeout:         cfg.Remote.Timeout.Std(),
		DownloadTimeout: cfg.Sync.DownloadTimeout.Std(),
		RetryCount:      cfg.Remote.RetryCount,
		RateLimit:       cfg.Remote.RateLimit,
		Logger:          s.logger.Logger,
	})

	normalizer := normalize.New(s.logger.Logger, s.metrics)

	syncer, err := tasksync.New(tasksync.Config{
		Remote:          remote,
		Store:           s.store,
		Normalizer:      normalizer,
		RefreshInterval: cfg.Sync.RefreshInterval.Std(),
		FetchTimeout:    cfg.Remote.Timeout.Std(),
		Lazy:            !opts.AutoOpenTasks,
		Logger:          s.logger.Logger,
		Metrics:         s.metrics,
	})
	if err != nil {
		s.tracer.Close()
		return nil, fmt.Errorf("failed to create task synchronizer: %w", err)
	}

	a := &Agent{
		Server: s,
		opts:   opts,
		sync:   syncer,
		launcher: launcher.NewClient(launcher.Config{
			BaseURL:    cfg.Agent.LauncherURL,
			RetryCount: 2,
			Logger:     s.logger.Logger,
		}),
	}

	handlers := apihttp.NewHandlers(apihttp.Options{
		Session:    &launcherSession{agent: a},
		Tasks:      syncer,
		Normalizer: normalizer,
		Logger:     s.logger.Logger,
		OnQuit:     s.requestQuit,
	})
	handlers.Register(s.router)

	wsHandler := ws.NewHandler(ws.Options{
		Tasks:   syncer,
		Metrics: s.metrics,
		Logger:  s.logger.Logger,
	})
	s.router.GET("/stream", wsHandler.HandleConnection)

	s.start = a.start
	s.stop = a.stop

	s.logger.Info("Desktop agent initialized successfully")
	return a, nil
}

// Synchronizer exposes the task synchronizer
func (a *Agent) Synchronizer() *tasksync.Synchronizer {
	return a.sync
}

// prepareMailbox applies --restore and --backup
func (a *Agent) prepareMailbox() {
	if a.opts.Restore {
		b, err := a.store.Restore()
		switch {
		case errors.Is(err, mailbox.ErrNoBackup):
			a.logger.Info("No mailbox backup to restore")
		case err != nil:
			a.logger.Warn("Mailbox restore failed", zap.Error(err))
		default:
			a.logger.Info("Mailbox restored", zap.String("from", b.Path))
		}
	}
	if a.opts.Backup {
		path, err := a.store.ArchiveBackups()
		if err != nil {
			a.logger.Warn("Mailbox backup archive failed", zap.Error(err))
		} else if path != "" {
			a.logger.Info("Mailbox backups archived", zap.String("archive", path))
		}
	}
}

func (a *Agent) start(ctx context.Context) error {
	a.prepareMailbox()

	go a.sync.Run(ctx)

	go func() {
		if err := a.launcher.DesktopReady(ctx); err != nil {
			// The launcher falls back to its ready timeout
			a.logger.Warn("Could not report readiness to launcher", zap.Error(err))
		}
	}()
	return nil
}

// stop asks the launcher for the screen back when an exit mode is set and
// the launcher still shows the desktop
func (a *Agent) stop(ctx context.Context, interrupted bool) {
	if a.opts.ExitMode == ExitSilently {
		return
	}
	st, err := a.launcher.Session(ctx)
	if err != nil {
		a.logger.Warn("Launcher unreachable on exit", zap.Error(err))
		return
	}
	if handoff.Session(st.Session) != handoff.DesktopActive {
		a.logger.Debug("Launcher not showing the desktop; exiting quietly",
			zap.String("session", st.Session), zap.Bool("interrupted", interrupted))
		return
	}
	if err := a.launcher.ExitDesktop(ctx, a.opts.ExitMode == ExitTerminate); err != nil && !errors.Is(err, launcher.ErrQueued) {
		a.logger.Warn("Desktop exit request failed", zap.Error(err))
	}
}

// launcherSession serves the agent's /session routes by forwarding them to
// the launcher, which owns the handoff state
type launcherSession struct {
	agent *Agent
}

func (s *launcherSession) State() handoff.State {
	st, err := s.agent.launcher.Session(context.Background())
	if err != nil {
		return handoff.State{LastError: err.Error()}
	}
	return handoff.State{
		Session:             handoff.Session(st.Session),
		ShouldTerminatePeer: st.ShouldTerminatePeer,
		Transitions:         st.Transitions,
	}
}

func (s *launcherSession) ExitDesktop(ctx context.Context, terminatePeer bool) error {
	err := s.agent.launcher.ExitDesktop(ctx, terminatePeer)
	if errors.Is(err, launcher.ErrQueued) {
		return handoff.ErrBusy
	}
	var lerr *launcher.Error
	if errors.As(err, &lerr) && lerr.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %v", handoff.ErrInvalidTransition, lerr.Err)
	}
	return err
}

func (s *launcherSession) ConfirmDesktop() {
	go func() {
		if err := s.agent.launcher.DesktopReady(context.Background()); err != nil {
			s.agent.logger.Warn("Could not report readiness to launcher", zap.Error(err))
		}
	}()
}

// Quit on the agent only ends the agent; the exit mode decides what the
// launcher is told
func (s *launcherSession) Quit(context.Context) error {
	return nil
}
