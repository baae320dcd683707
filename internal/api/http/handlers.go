package http

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/clouddesk/internal/domain/handoff"
	"github.com/GriffinCanCode/clouddesk/internal/domain/normalize"
	"github.com/GriffinCanCode/clouddesk/internal/domain/tasksync"
	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

// Inbox is the mailbox store as the listener uses it
type Inbox interface {
	AcceptInbound(payload []byte) error
	Read() (*types.MailboxDocument, error)
}

// Session is the handoff controller as the listener uses it
type Session interface {
	State() handoff.State
	ExitDesktop(ctx context.Context, terminatePeer bool) error
	ConfirmDesktop()
	Quit(ctx context.Context) error
}

// Tasks is the task synchronizer as the listener uses it
type Tasks interface {
	Snapshot() tasksync.Snapshot
	Refresh(ctx context.Context) tasksync.State
	Advance() tasksync.Snapshot
	Focus(id types.TaskID) error
	Submit(ctx context.Context, id types.TaskID, status types.TaskStatus, progress *int, comments string) error
}

// Normalizer renders a raw mailbox document for /get-tasks
type Normalizer interface {
	NormalizeDocument(doc *types.MailboxDocument) (*types.MailboxDocument, *normalize.Result, error)
}

// Options wires the handlers to whichever components the process owns.
// Route groups whose component is nil are not registered.
type Options struct {
	Inbox      Inbox
	Session    Session
	Tasks      Tasks
	Normalizer Normalizer
	Logger     *zap.Logger
	// OnQuit runs after a /session/quit response has been written
	OnQuit func()
	// MaxUploadBytes bounds /upload bodies
	MaxUploadBytes int64
}

// Handlers contains all HTTP handlers of the local listener
type Handlers struct {
	inbox      Inbox
	session    Session
	tasks      Tasks
	normalizer Normalizer
	logger     *zap.Logger
	onQuit     func()
	maxUpload  int64
	started    time.Time
}

// DefaultMaxUploadBytes bounds producer documents
const DefaultMaxUploadBytes = 4 << 20

// NewHandlers creates a new handler set
func NewHandlers(opts Options) *Handlers {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Normalizer == nil {
		opts.Normalizer = normalize.New(opts.Logger, nil)
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handlers{
		inbox:      opts.Inbox,
		session:    opts.Session,
		tasks:      opts.Tasks,
		normalizer: opts.Normalizer,
		logger:     opts.Logger.Named("http"),
		onQuit:     opts.OnQuit,
		maxUpload:  opts.MaxUploadBytes,
		started:    time.Now(),
	}
}
