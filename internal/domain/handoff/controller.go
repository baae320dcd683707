package handoff

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/clouddesk/internal/domain/normalize"
	"github.com/GriffinCanCode/clouddesk/internal/domain/supervisor"
	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/clouddesk/internal/shared/broadcast"
	"github.com/GriffinCanCode/clouddesk/internal/shared/id"
	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

// Spawner is the process supervisor as the controller uses it
type Spawner interface {
	Resolve(name string) (string, []string, error)
	Spawn(name string, args ...string) (*supervisor.ProcessHandle, error)
	Watch(h *supervisor.ProcessHandle, onExited func(code int)) func()
	Terminate(h *supervisor.ProcessHandle, grace time.Duration) error
	TerminateAll(grace time.Duration)
}

// Mailbox is the mailbox store as the controller uses it
type Mailbox interface {
	Read() (*types.MailboxDocument, error)
	Write(doc *types.MailboxDocument) error
	Purge() error
}

// Normalizer turns raw producer documents into envelopes
type Normalizer interface {
	NormalizeDocument(doc *types.MailboxDocument) (*types.MailboxDocument, *normalize.Result, error)
}

// Config configures a Controller
type Config struct {
	Supervisor   Spawner
	Mailbox      Mailbox
	Normalizer   Normalizer
	Targets      Targets
	GracePeriod  time.Duration
	ReadyTimeout time.Duration
	Logger       *zap.Logger
	Metrics      *monitoring.Metrics
	Tracer       *tracing.Tracer
}

// trigger is a deferred transition request
type trigger struct {
	name string
	run  func(ctx context.Context) error
}

// Controller decides which process owns the screen
type Controller struct {
	sup          Spawner
	mailbox      Mailbox
	normalizer   Normalizer
	targets      Targets
	grace        time.Duration
	readyTimeout time.Duration
	logger       *zap.Logger
	metrics      *monitoring.Metrics
	tracer       *tracing.Tracer
	hub          *broadcast.Hub[State]

	step sync.Mutex // serializes transition steps

	mu                  sync.RWMutex
	session             Session
	shouldTerminatePeer bool
	browserLaunched     bool
	browser             *supervisor.ProcessHandle
	transition          *supervisor.ProcessHandle
	desktop             *supervisor.ProcessHandle
	watches             map[Role]func()
	transitions         uint64
	handoffID           id.HandoffID
	span                *tracing.Span
	lastDocID           string
	user                *types.CanonicalUser
	selectedRole        *types.SelectedRole
	lastErr             error
	pending             *trigger
	ready               chan struct{}
}

// New creates a controller in BrowserActive. Call Start to launch the
// browser session.
func New(cfg Config) (*Controller, error) {
	if cfg.Supervisor == nil {
		return nil, fmt.Errorf("process supervisor is required")
	}
	if cfg.Mailbox == nil {
		return nil, fmt.Errorf("mailbox store is required")
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = normalize.New(cfg.Logger, cfg.Metrics)
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = supervisor.DefaultGracePeriod
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 3 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Controller{
		sup:          cfg.Supervisor,
		mailbox:      cfg.Mailbox,
		normalizer:   cfg.Normalizer,
		targets:      cfg.Targets,
		grace:        cfg.GracePeriod,
		readyTimeout: cfg.ReadyTimeout,
		logger:       cfg.Logger.Named("handoff"),
		metrics:      cfg.Metrics,
		tracer:       cfg.Tracer,
		hub:          broadcast.New[State](),
		session:      BrowserActive,
		watches:      make(map[Role]func()),
	}, nil
}

// Start launches the browser session unless it is already running
func (c *Controller) Start(ctx context.Context) error {
	c.step.Lock()
	defer c.step.Unlock()

	c.mu.RLock()
	session, launched := c.session, c.browserLaunched
	c.mu.RUnlock()
	if session == Exiting {
		return ErrExiting
	}
	if launched || session != BrowserActive {
		return nil
	}
	if err := c.launchBrowserLocked(); err != nil {
		c.fail(err)
		return err
	}
	c.publish()
	return nil
}

// OnMailboxChange reads the mailbox and acts on what it holds. A raw
// producer file is normalized and written back as an envelope first.
func (c *Controller) OnMailboxChange(ctx context.Context) error {
	doc, err := c.mailbox.Read()
	if err != nil {
		c.logger.Warn("Mailbox read failed", zap.Error(err))
		return err
	}
	if doc == nil {
		return nil
	}

	if !doc.Normalized {
		envelope, res, err := c.normalizer.NormalizeDocument(doc)
		if err != nil {
			c.logger.Warn("Mailbox document rejected", zap.Error(err))
			return err
		}
		if res != nil {
			for _, d := range res.Diagnostics {
				c.logger.Info("Normalization diagnostic", zap.String("diagnostic", d.String()))
			}
		}
		if err := c.mailbox.Write(envelope); err != nil {
			return fmt.Errorf("write normalized document: %w", err)
		}
		doc = envelope
	}
	return c.HandleDocument(ctx, doc)
}

// HandleDocument hands off to the desktop when doc asks for it. Documents
// that do not, and documents already acted on, are ignored.
func (c *Controller) HandleDocument(ctx context.Context, doc *types.MailboxDocument) error {
	if !doc.TriggersHandoff() {
		return nil
	}

	c.step.Lock()
	defer c.step.Unlock()

	c.mu.RLock()
	seen := doc.DocumentID != "" && doc.DocumentID == c.lastDocID
	c.mu.RUnlock()
	if seen {
		c.logger.Debug("Duplicate handoff trigger ignored", zap.String("document_id", doc.DocumentID))
		return nil
	}
	return c.toDesktopLocked(ctx, doc)
}

// ExitDesktop returns from the desktop to the browser. terminatePeer
// decides whether the desktop process is killed or kept in the background.
func (c *Controller) ExitDesktop(ctx context.Context, terminatePeer bool) error {
	c.step.Lock()
	defer c.step.Unlock()

	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()

	switch {
	case session == Exiting:
		return ErrExiting
	case session.Transitioning():
		c.queue(trigger{name: "exit-desktop", run: func(ctx context.Context) error {
			return c.ExitDesktop(ctx, terminatePeer)
		}})
		return ErrBusy
	case session != DesktopActive:
		return fmt.Errorf("%w: exit desktop from %s", ErrInvalidTransition, session)
	}
	return c.toBrowserLocked(ctx, terminatePeer)
}

// ConfirmDesktop records that the desktop session is up and has started
// synchronizing. Without it the controller assumes readiness once the
// desktop has stayed alive for the ready timeout.
func (c *Controller) ConfirmDesktop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready == nil {
		return
	}
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
}

// Quit tears down every owned process and purges the mailbox. It never
// blocks longer than one grace period plus the forced-kill wait.
func (c *Controller) Quit(ctx context.Context) error {
	c.step.Lock()
	defer c.step.Unlock()

	c.mu.Lock()
	if c.session == Exiting {
		c.mu.Unlock()
		return ErrExiting
	}
	c.setSessionLocked(Exiting)
	c.pending = nil
	cancels := make([]func(), 0, len(c.watches))
	for role, cancel := range c.watches {
		cancels = append(cancels, cancel)
		delete(c.watches, role)
	}
	c.endSpanLocked(nil)
	c.mu.Unlock()
	c.publish()

	for _, cancel := range cancels {
		cancel()
	}
	c.sup.TerminateAll(c.grace)

	c.mu.Lock()
	c.browser, c.transition, c.desktop = nil, nil, nil
	c.browserLaunched = false
	c.mu.Unlock()

	if err := c.mailbox.Purge(); err != nil {
		c.logger.Warn("Mailbox purge failed", zap.Error(err))
	}
	c.logger.Info("Session exited")
	c.publish()
	return nil
}

// State returns a snapshot of the controller
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := State{
		Session:             c.session,
		ShouldTerminatePeer: c.shouldTerminatePeer,
		BrowserLaunched:     c.browserLaunched,
		Handles:             []supervisor.HandleInfo{},
		Transitions:         c.transitions,
		HandoffID:           c.handoffID.String(),
		Pending:             c.pending != nil,
		User:                c.user,
		SelectedRole:        c.selectedRole,
	}
	for _, h := range []*supervisor.ProcessHandle{c.browser, c.transition, c.desktop} {
		if h != nil {
			st.Handles = append(st.Handles, h.Info())
		}
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Subscribe streams state snapshots after every change
func (c *Controller) Subscribe() (<-chan State, func()) {
	return c.hub.Subscribe()
}

func (c *Controller) publish() {
	c.hub.Publish(c.State())
}

// queue keeps the latest trigger that arrived mid-handoff
func (c *Controller) queue(t trigger) {
	c.mu.Lock()
	c.pending = &t
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordHandoffBusy()
	}
	c.logger.Info("Handoff busy, trigger queued", zap.String("trigger", t.name))
	c.publish()
}

// replay runs the queued trigger once the controller is idle again
func (c *Controller) replay() {
	c.mu.Lock()
	t := c.pending
	c.pending = nil
	c.mu.Unlock()
	if t == nil {
		return
	}
	go func() {
		if err := t.run(context.Background()); err != nil && !errors.Is(err, ErrBusy) {
			c.logger.Info("Queued trigger dropped", zap.String("trigger", t.name), zap.Error(err))
		}
	}()
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.logger.Error("Handoff step failed", zap.Error(err))
	c.publish()
}

func (c *Controller) setSessionLocked(to Session) {
	from := c.session
	c.session = to
	c.transitions++
	if c.metrics != nil {
		c.metrics.RecordTransition(string(from), string(to))
	}
	c.logger.Info("Session transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("handoff_id", c.handoffID.String()))
}

// current reports whether the in-flight handoff is still hid in session s
func (c *Controller) current(s Session, hid id.HandoffID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session == s && c.handoffID == hid
}

func (c *Controller) beginSpanLocked(ctx context.Context, hid id.HandoffID, name string) {
	c.endSpanLocked(nil)
	if c.tracer == nil {
		return
	}
	span, _ := c.tracer.Start(tracing.WithTraceID(ctx, hid.String()), name)
	span.SetTag("handoff_id", hid.String())
	c.span = span
}

func (c *Controller) endSpanLocked(err error) {
	if c.span == nil {
		return
	}
	if err != nil {
		c.span.SetError(err)
	}
	c.span.End()
	c.span = nil
}

func (c *Controller) watch(role Role, h *supervisor.ProcessHandle, onExit func(code int)) {
	cancel := c.sup.Watch(h, onExit)
	c.mu.Lock()
	if prev, ok := c.watches[role]; ok {
		prev()
	}
	c.watches[role] = cancel
	c.mu.Unlock()
}

func (c *Controller) unwatch(role Role) {
	c.mu.Lock()
	cancel, ok := c.watches[role]
	delete(c.watches, role)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// terminate ends h in the background; exit paths must never wait on a
// misbehaving child
func (c *Controller) terminate(role Role, h *supervisor.ProcessHandle) {
	if h == nil {
		return
	}
	c.unwatch(role)
	go func() {
		if err := c.sup.Terminate(h, c.grace); err != nil {
			c.logger.Warn("Terminate failed", zap.String("role", string(role)), zap.Error(err))
		}
	}()
}
