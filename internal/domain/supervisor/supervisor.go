package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/clouddesk/internal/shared/id"
	"github.com/GriffinCanCode/clouddesk/internal/shared/paths"
)

// Defaults
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultGracePeriod  = 3 * time.Second

	// reapTimeout bounds the wait after SIGKILL so exit never hangs
	reapTimeout = 2 * time.Second
)

// Config configures a Supervisor
type Config struct {
	SearchRoots  []string
	PollInterval time.Duration
	GracePeriod  time.Duration
	Env          []string
	Logger       *zap.Logger
	Metrics      *monitoring.Metrics
}

// Supervisor spawns, watches and terminates external processes
type Supervisor struct {
	dirs    []string
	poll    time.Duration
	grace   time.Duration
	env     []string
	logger  *zap.Logger
	metrics *monitoring.Metrics

	handles sync.Map // map[id.ProcessID]*ProcessHandle
}

// New creates a supervisor
func New(cfg Config) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Supervisor{
		dirs:    paths.CandidateDirs(cfg.SearchRoots...),
		poll:    cfg.PollInterval,
		grace:   cfg.GracePeriod,
		env:     cfg.Env,
		logger:  cfg.Logger.Named("supervisor"),
		metrics: cfg.Metrics,
	}
}

// GracePeriod returns the configured default grace period
func (s *Supervisor) GracePeriod() time.Duration {
	return s.grace
}

// Resolve locates name across the candidate directories
func (s *Supervisor) Resolve(name string) (string, []string, error) {
	return paths.FindExecutable(name, s.dirs)
}

// Spawn locates and starts name. It never retries; callers decide whether
// an alternate name is worth trying.
func (s *Supervisor) Spawn(name string, args ...string) (*ProcessHandle, error) {
	path, tried, err := s.Resolve(name)
	if err != nil {
		s.recordSpawn(name, false)
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("executable not found: %w", err)
		}
		return nil, &SpawnError{Command: name, Candidates: tried, Err: err}
	}

	var cmd *exec.Cmd
	if interp := paths.Interpreter(path); interp != "" {
		cmd = exec.Command(interp, append([]string{path}, args...)...)
	} else {
		cmd = exec.Command(path, args...)
	}
	cmd.Dir = filepath.Dir(path)
	cmd.Env = append(os.Environ(), s.env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	setProcAttr(cmd)

	h := &ProcessHandle{
		ID:      id.NewProcessID(),
		Name:    name,
		Command: path,
		Args:    args,
		cmd:     cmd,
		done:    make(chan struct{}),
		state:   StateStarting,
	}

	if err := cmd.Start(); err != nil {
		s.recordSpawn(name, false)
		return nil, &SpawnError{Command: name, Candidates: []string{path}, Err: err}
	}

	h.mu.Lock()
	h.PID = cmd.Process.Pid
	h.StartedAt = time.Now()
	h.state = StateRunning
	h.mu.Unlock()

	s.handles.Store(h.ID, h)
	s.recordSpawn(name, true)
	s.logger.Info("Process started",
		zap.String("process_id", h.ID.String()),
		zap.String("name", name),
		zap.String("command", path),
		zap.Strings("args", args),
		zap.Int("pid", h.PID))

	go s.reap(h)
	return h, nil
}

// reap waits for the child so it never lingers as a zombie, then publishes
// the exit through the handle
func (s *Supervisor) reap(h *ProcessHandle) {
	err := h.cmd.Wait()
	code := 0
	if h.cmd.ProcessState != nil {
		code = h.cmd.ProcessState.ExitCode()
	} else if err != nil {
		code = -1
	}

	mode := h.finish(code)
	s.handles.Delete(h.ID)
	close(h.done)

	if s.metrics != nil {
		s.metrics.RecordTermination(mode)
	}
	s.logger.Info("Process ended",
		zap.String("process_id", h.ID.String()),
		zap.String("name", h.Name),
		zap.Int("pid", h.PID),
		zap.Int("exit_code", code),
		zap.String("mode", mode))
}

func (s *Supervisor) recordSpawn(name string, ok bool) {
	if s.metrics != nil {
		s.metrics.RecordSpawn(filepath.Base(name), ok)
	}
}

// Watch polls h until it has exited, then calls onExited exactly once with
// the exit code. The returned cancel stops the poll; after cancel returns
// onExited is not called.
func (s *Supervisor) Watch(h *ProcessHandle, onExited func(code int)) (cancel func()) {
	const (
		watching int32 = iota
		cancelled
		fired
	)
	var state atomic.Int32
	stop := make(chan struct{})
	cancel = func() {
		if state.CompareAndSwap(watching, cancelled) {
			close(stop)
		}
	}

	go func() {
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		for {
			if code, exited := h.ExitCode(); exited {
				if state.CompareAndSwap(watching, fired) {
					onExited(code)
				}
				return
			}
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
	return cancel
}

// Terminate asks h to exit, waits up to grace, then kills its process
// group. Calling it on a process that is already gone is a no-op. It
// returns once the process is reaped or the post-kill wait runs out.
func (s *Supervisor) Terminate(h *ProcessHandle, grace time.Duration) error {
	if h == nil {
		return fmt.Errorf("terminate: nil process handle")
	}
	if grace <= 0 {
		grace = s.grace
	}

	h.term.Lock()
	defer h.term.Unlock()

	if h.State().Terminal() {
		return nil
	}

	logger := s.logger.With(zap.String("process_id", h.ID.String()), zap.Int("pid", h.PID))

	h.markSignalled(false)
	if err := signalTree(h, false); err != nil {
		logger.Debug("Graceful signal failed", zap.Error(err))
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-h.done:
		logger.Info("Process terminated gracefully", zap.String("name", h.Name))
		return nil
	case <-timer.C:
	}

	logger.Warn("Escalating to forced kill", zap.Error(&TerminationTimeoutError{PID: h.PID, Grace: grace}))
	h.markSignalled(true)
	if err := signalTree(h, true); err != nil {
		logger.Debug("Kill signal failed", zap.Error(err))
	}

	select {
	case <-h.done:
	case <-time.After(reapTimeout):
		logger.Error("Process not reaped after kill", zap.Duration("waited", reapTimeout))
	}
	return nil
}

// TerminateAll terminates every tracked process concurrently
func (s *Supervisor) TerminateAll(grace time.Duration) {
	var wg sync.WaitGroup
	for _, h := range s.Handles() {
		wg.Add(1)
		go func(h *ProcessHandle) {
			defer wg.Done()
			_ = s.Terminate(h, grace)
		}(h)
	}
	wg.Wait()
}

// Handles lists processes that have not been reaped yet
func (s *Supervisor) Handles() []*ProcessHandle {
	var out []*ProcessHandle
	s.handles.Range(func(_, value interface{}) bool {
		out = append(out, value.(*ProcessHandle))
		return true
	})
	return out
}
