package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/clouddesk/internal/api/middleware"
	"github.com/GriffinCanCode/clouddesk/internal/domain/mailbox"
	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/config"
	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/logging"
	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/tracing"
)

// shutdownTimeout bounds draining in-flight requests on exit
const shutdownTimeout = 5 * time.Second

// Server wraps the local HTTP listener and the components one process owns
type Server struct {
	name    string
	addr    string
	config  *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	router  *gin.Engine
	store   *mailbox.Store

	// start runs after the listener is bound and before Run blocks
	start func(ctx context.Context) error
	// stop runs once when Run is leaving, before the listener drains
	stop func(ctx context.Context, interrupted bool)

	quit     chan struct{}
	quitOnce sync.Once
}

// base builds the pieces both processes share: logger, metrics, tracer,
// mailbox store and a router carrying the standard middleware chain
func base(name, addr string, cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Process:     name,
		File:        cfg.Logging.File,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger = logger.Component(name)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New(name, logger.Logger)

	store, err := mailbox.New(mailbox.Options{
		Dir:            cfg.Mailbox.Dir,
		File:           cfg.Mailbox.File,
		Debounce:       cfg.Mailbox.Debounce.Std(),
		ArchiveOnPurge: cfg.Mailbox.ArchiveOnPurge,
		Logger:         logger.Logger,
		Metrics:        metrics,
	})
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to open mailbox: %w", err)
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	router.GET("/metrics", monitoring.Handler(metrics))
	router.Any("/log/level", gin.WrapH(logger.LevelHandler()))

	logger.Info("Mailbox opened", zap.String("path", store.Path()))

	return &Server{
		name:    name,
		addr:    addr,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		router:  router,
		store:   store,
		quit:    make(chan struct{}),
	}, nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Store returns the mailbox store this process uses
func (s *Server) Store() *mailbox.Store {
	return s.store
}

// Logger returns the process logger
func (s *Server) Logger() *logging.Logger {
	return s.logger
}

// requestQuit makes Run return as if interrupted by the operator
func (s *Server) requestQuit() {
	s.quitOnce.Do(func() { close(s.quit) })
}

// Run binds the listener, starts the owned components and serves until ctx
// is cancelled, a quit is requested over HTTP or the listener fails
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an already bound listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if s.start != nil {
		if err := s.start(runCtx); err != nil {
			if s.stop != nil {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
				s.stop(stopCtx, false)
				stopCancel()
			}
			_ = srv.Close()
			return err
		}
	}

	var serveErr error
	interrupted := false
	select {
	case <-ctx.Done():
		interrupted = true
		s.logger.Info("Shutdown requested")
	case <-s.quit:
		s.logger.Info("Quit requested over HTTP")
	case serveErr = <-errCh:
		s.logger.Error("HTTP server failed", zap.Error(serveErr))
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if s.stop != nil {
		s.stop(stopCtx, interrupted)
	}
	cancel()

	if err := srv.Shutdown(stopCtx); err != nil {
		s.logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	return serveErr
}

// Close flushes the tracer and the logger
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")
	s.tracer.Close()
	return s.logger.Close()
}
