package tasksync

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/clouddesk/internal/domain/normalize"
	"github.com/GriffinCanCode/clouddesk/internal/providers/taskapi"
	"github.com/GriffinCanCode/clouddesk/internal/shared/broadcast"
	"github.com/GriffinCanCode/clouddesk/internal/shared/id"
	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

// Remote is the task API as the synchronizer uses it
type Remote interface {
	Authenticate(ctx context.Context, creds types.Credentials) (*oauth2.Token, error)
	HasToken() bool
	FetchTasks(ctx context.Context, status string) ([]types.CanonicalTask, error)
	UpdateTask(ctx context.Context, id types.TaskID, update taskapi.TaskUpdate) error
	Download(ctx context.Context, url, dest string) (int64, error)
}

// Store is the mailbox as the synchronizer uses it
type Store interface {
	Read() (*types.MailboxDocument, error)
	WriteCache(user *types.CanonicalUser, tasks []types.CanonicalTask) error
}

// Normalizer turns a raw producer document into an envelope
type Normalizer interface {
	NormalizeDocument(doc *types.MailboxDocument) (*types.MailboxDocument, *normalize.Result, error)
}

// Config configures a Synchronizer
type Config struct {
	Remote          Remote
	Store           Store
	Normalizer      Normalizer
	User            *types.CanonicalUser
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	StatusFilter    string
	// Lazy defers the first cycle of Run to the first tick or RequestRefresh
	Lazy    bool
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Synchronizer owns the task list shown during a desktop session
type Synchronizer struct {
	remote     Remote
	store      Store
	normalizer Normalizer
	interval   time.Duration
	timeout    time.Duration
	filter     string
	lazy       bool
	logger     *zap.Logger
	metrics    *monitoring.Metrics

	cycle   sync.Mutex // serializes refresh cycles
	trigger chan struct{}

	mu          sync.RWMutex
	phase       State
	outcome     State
	user        *types.CanonicalUser
	tasks       []types.CanonicalTask
	focused     types.TaskID
	stale       bool
	noTasks     bool
	lastErr     error
	lastRefresh time.Time
	cycles      uint64

	// last snapshot persisted by WriteCache; guarded by cycle
	cachedUser  *types.CanonicalUser
	cachedTasks []types.CanonicalTask

	hub *broadcast.Hub[Snapshot]
}

// New creates a synchronizer in the Idle state
func New(cfg Config) (*Synchronizer, error) {
	if cfg.Remote == nil {
		return nil, fmt.Errorf("remote task API is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("mailbox store is required")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Synchronizer{
		remote:     cfg.Remote,
		store:      cfg.Store,
		normalizer: cfg.Normalizer,
		interval:   cfg.RefreshInterval,
		timeout:    cfg.FetchTimeout,
		filter:     cfg.StatusFilter,
		lazy:       cfg.Lazy,
		logger:     cfg.Logger.Named("tasksync"),
		metrics:    cfg.Metrics,
		trigger:    make(chan struct{}, 1),
		phase:      StateIdle,
		user:       cfg.User,
		hub:        broadcast.New[Snapshot](),
	}, nil
}

// Run refreshes once immediately (unless Lazy), then on every interval tick
// and every RequestRefresh until ctx is done
func (s *Synchronizer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if !s.lazy {
		s.Refresh(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		case <-s.trigger:
			s.Refresh(ctx)
			ticker.Reset(s.interval)
		}
	}
}

// RequestRefresh asks Run for an out-of-band cycle. Requests made while one
// is already pending are coalesced.
func (s *Synchronizer) RequestRefresh() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Refresh runs one Authenticating → Fetching → Success|Fallback cycle and
// returns its outcome. Network failures never escape as errors; they are
// reported through the Fallback outcome and Snapshot.LastError.
func (s *Synchronizer) Refresh(ctx context.Context) State {
	s.cycle.Lock()
	defer s.cycle.Unlock()

	start := time.Now()
	syncID := id.NewSyncID()
	logger := s.logger.With(zap.String("sync_id", syncID.String()))

	s.adoptUser()
	s.setPhase(StateAuthenticating)
	if err := s.authenticate(ctx); err != nil {
		logger.Warn("authentication failed, using mailbox snapshot", zap.Error(err))
		return s.fallback(logger, start, syncResult(err, "auth_failed"), err)
	}

	s.setPhase(StateFetching)
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	fresh, err := s.remote.FetchTasks(fetchCtx, s.filter)
	cancel()
	if err != nil {
		logger.Warn("task fetch failed, using mailbox snapshot", zap.Error(err))
		return s.fallback(logger, start, syncResult(err, "fetch_failed"), err)
	}

	return s.success(logger, start, fresh)
}

func syncResult(err error, fallback string) string {
	if errors.Is(err, ErrNoCredentials) {
		return "no_credentials"
	}
	return fallback
}

func (s *Synchronizer) authenticate(ctx context.Context) error {
	if s.remote.HasToken() {
		return nil
	}
	creds := s.credentials()
	if creds == nil {
		return ErrNoCredentials
	}
	authCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.remote.Authenticate(authCtx, *creds); err != nil {
		return err
	}

	// keep cache-sourced credentials on the user so the next snapshot
	// written to the mailbox still carries them
	s.mu.Lock()
	if s.user != nil && !s.user.Credentials.Valid() {
		user := *s.user
		user.Credentials = creds
		s.user = &user
	}
	s.mu.Unlock()
	return nil
}

// adoptUser takes the operator from the mailbox document when none is held,
// or when the held one lacks credentials the document carries. The cache
// written on Success then keeps both.
func (s *Synchronizer) adoptUser() {
	s.mu.RLock()
	user := s.user
	s.mu.RUnlock()
	if user != nil && user.Credentials.Valid() {
		return
	}

	doc, err := s.document()
	if err != nil || doc == nil || doc.User == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.user == nil:
		adopted := *doc.User
		s.user = &adopted
	case !s.user.Credentials.Valid() && doc.User.Credentials.Valid():
		adopted := *s.user
		adopted.Credentials = doc.User.Credentials
		s.user = &adopted
	}
}

// credentials come from the current user, or failing that from whatever
// document the mailbox holds
func (s *Synchronizer) credentials() *types.Credentials {
	s.mu.RLock()
	user := s.user
	s.mu.RUnlock()
	if user != nil && user.Credentials.Valid() {
		return user.Credentials
	}

	doc, err := s.document()
	if err != nil || doc == nil || doc.User == nil || !doc.User.Credentials.Valid() {
		return nil
	}
	return doc.User.Credentials
}

// document reads the mailbox, normalizing a raw producer file when a
// normalizer is configured
func (s *Synchronizer) document() (*types.MailboxDocument, error) {
	doc, err := s.store.Read()
	if err != nil || doc == nil {
		return nil, err
	}
	if doc.Normalized {
		return doc, nil
	}
	if s.normalizer == nil {
		return nil, fmt.Errorf("mailbox holds an unnormalized %s document", doc.Source)
	}
	envelope, _, err := s.normalizer.NormalizeDocument(doc)
	if err != nil {
		return nil, err
	}
	return envelope, nil
}

func (s *Synchronizer) success(logger *zap.Logger, start time.Time, fresh []types.CanonicalTask) State {
	s.mu.Lock()
	previous := s.tasks
	s.tasks = merge(previous, fresh)
	s.focused = refocus(previous, s.tasks, s.focused)
	s.stale = false
	s.noTasks = len(s.tasks) == 0
	s.lastErr = nil
	s.finishLocked(StateSuccess)
	user := s.user
	tasks := append([]types.CanonicalTask(nil), s.tasks...)
	s.mu.Unlock()

	if s.cacheCurrent(user, tasks) {
		logger.Debug("task cache unchanged, skipping write")
	} else if err := s.store.WriteCache(user, tasks); err != nil {
		logger.Warn("failed to persist task cache", zap.Error(err))
	} else {
		s.cachedUser, s.cachedTasks = user, tasks
	}
	s.record("success", start, len(tasks))
	logger.Info("tasks synchronized", zap.Int("count", len(tasks)), zap.Duration("elapsed", time.Since(start)))
	s.publish()
	return StateSuccess
}

// fallback replaces the displayed list with the mailbox snapshot. With no
// snapshot the list becomes empty and NoTasks is raised.
func (s *Synchronizer) fallback(logger *zap.Logger, start time.Time, result string, cause error) State {
	doc, err := s.document()
	if err != nil {
		logger.Warn("mailbox snapshot unavailable", zap.Error(err))
		doc = nil
	}

	s.mu.Lock()
	previous := s.tasks
	if doc != nil {
		s.tasks = merge(previous, doc.Tasks)
		if s.user == nil && doc.User != nil {
			s.user = doc.User
		}
		s.stale = true
		s.noTasks = len(s.tasks) == 0
	} else {
		s.tasks = nil
		s.stale = false
		s.noTasks = true
	}
	s.focused = refocus(previous, s.tasks, s.focused)
	s.lastErr = cause
	s.finishLocked(StateFallback)
	count := len(s.tasks)
	s.mu.Unlock()

	s.record(result, start, count)
	s.publish()
	return StateFallback
}

// cacheCurrent reports whether the mailbox was last written by this
// synchronizer with the same user and tasks
func (s *Synchronizer) cacheCurrent(user *types.CanonicalUser, tasks []types.CanonicalTask) bool {
	if s.cachedTasks == nil && s.cachedUser == nil {
		return false
	}
	if !reflect.DeepEqual(user, s.cachedUser) || !reflect.DeepEqual(tasks, s.cachedTasks) {
		return false
	}
	doc, err := s.store.Read()
	return err == nil && doc != nil && doc.Source == types.SourceCache
}

func (s *Synchronizer) finishLocked(outcome State) {
	s.outcome = outcome
	s.phase = StateIdle
	s.lastRefresh = time.Now()
	s.cycles++
}

func (s *Synchronizer) record(result string, start time.Time, tasks int) {
	if s.metrics != nil {
		s.metrics.RecordSync(result, time.Since(start), tasks)
	}
}

func (s *Synchronizer) setPhase(phase State) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()
	s.publish()
}

// SetUser replaces the operator, e.g. after a new mailbox document arrived
func (s *Synchronizer) SetUser(user *types.CanonicalUser) {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	s.publish()
}

// Submit sends a task update and refreshes immediately afterwards so the
// display reflects the new status
func (s *Synchronizer) Submit(ctx context.Context, taskID types.TaskID, status types.TaskStatus, progress *int, comments string) error {
	if progress != nil {
		p := types.ClampProgress(*progress)
		progress = &p
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err := s.remote.UpdateTask(submitCtx, taskID, taskapi.TaskUpdate{
		Status:   string(status),
		Progress: progress,
		Comments: comments,
	})
	cancel()
	if err != nil {
		s.logger.Warn("task submission failed", zap.String("task_id", taskID.String()), zap.Error(err))
		return err
	}

	s.Refresh(ctx)
	return nil
}

// Advance moves focus to the next active task and returns the new snapshot
func (s *Synchronizer) Advance() Snapshot {
	s.mu.Lock()
	start := 0
	if i := indexOf(s.tasks, s.focused); i >= 0 {
		start = i + 1
	}
	s.focused = nextActive(s.tasks, start)
	s.mu.Unlock()

	s.publish()
	return s.Snapshot()
}

// Focus pins the display to one task. Only active tasks can be focused.
func (s *Synchronizer) Focus(taskID types.TaskID) error {
	s.mu.Lock()
	i := indexOf(s.tasks, taskID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if !s.tasks[i].Status.Active() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrInactiveTask, taskID, s.tasks[i].Status)
	}
	s.focused = taskID
	s.mu.Unlock()

	s.publish()
	return nil
}

// Download fetches an artifact referenced by a task
func (s *Synchronizer) Download(ctx context.Context, url, dest string) (int64, error) {
	return s.remote.Download(ctx, url, dest)
}

// Snapshot returns a copy of the display state
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		User:        s.user,
		Tasks:       append([]types.CanonicalTask{}, s.tasks...),
		FocusedID:   s.focused,
		FocusIndex:  indexOf(s.tasks, s.focused),
		Phase:       s.phase,
		LastOutcome: s.outcome,
		Stale:       s.stale,
		NoTasks:     s.noTasks,
		LastRefresh: s.lastRefresh,
		Cycles:      s.cycles,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// Subscribe returns a channel receiving a snapshot after every change, and
// a function that ends the subscription. Slow readers only see the latest.
func (s *Synchronizer) Subscribe() (<-chan Snapshot, func()) {
	return s.hub.Subscribe()
}

func (s *Synchronizer) publish() {
	s.hub.Publish(s.Snapshot())
}
