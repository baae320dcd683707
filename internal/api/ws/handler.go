package ws

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/clouddesk/internal/domain/handoff"
	"github.com/GriffinCanCode/clouddesk/internal/domain/tasksync"
	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/monitoring"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 4 << 10
)

// SessionSource streams handoff controller state
type SessionSource interface {
	State() handoff.State
	Subscribe() (<-chan handoff.State, func())
}

// TaskSource streams synchronizer snapshots and accepts display commands
type TaskSource interface {
	Snapshot() tasksync.Snapshot
	Subscribe() (<-chan tasksync.Snapshot, func())
	RequestRefresh()
	Advance() tasksync.Snapshot
}

// Options configures a Handler. Either source may be nil.
type Options struct {
	Session      SessionSource
	Tasks        TaskSource
	Metrics      *monitoring.Metrics
	Logger       *zap.Logger
	PingInterval time.Duration
}

// Handler manages WebSocket connections
type Handler struct {
	session  SessionSource
	tasks    TaskSource
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	ping     time.Duration
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler
func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PingInterval <= 0 || opts.PingInterval >= pongWait {
		opts.PingInterval = pongWait * 9 / 10
	}
	return &Handler{
		session: opts.Session,
		tasks:   opts.Tasks,
		metrics: opts.Metrics,
		logger:  opts.Logger.Named("ws"),
		ping:    opts.PingInterval,
		upgrader: websocket.Upgrader{
			// Only local session pages connect
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleConnection upgrades the request and streams state until the client
// goes away
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	var (
		sessionUpdates <-chan handoff.State
		taskUpdates    <-chan tasksync.Snapshot
	)
	if h.session != nil {
		ch, cancel := h.session.Subscribe()
		defer cancel()
		sessionUpdates = ch
	}
	if h.tasks != nil {
		ch, cancel := h.tasks.Subscribe()
		defer cancel()
		taskUpdates = ch
	}

	replies := make(chan Message, 4)
	done := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go h.readLoop(conn, replies, done, stop)

	welcome := newMessage(TypeSystem, nil)
	welcome.Message = "connected"
	if err := h.send(conn, welcome); err != nil {
		return
	}
	if h.session != nil {
		if err := h.send(conn, newMessage(TypeSession, h.session.State())); err != nil {
			return
		}
	}
	if h.tasks != nil {
		if err := h.send(conn, newMessage(TypeTasks, h.tasks.Snapshot())); err != nil {
			return
		}
	}

	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case st, ok := <-sessionUpdates:
			if !ok {
				sessionUpdates = nil
				continue
			}
			err = h.send(conn, newMessage(TypeSession, st))
		case snap, ok := <-taskUpdates:
			if !ok {
				taskUpdates = nil
				continue
			}
			err = h.send(conn, newMessage(TypeTasks, snap))
		case msg := <-replies:
			err = h.send(conn, msg)
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			h.logger.Debug("WebSocket write failed", zap.Error(err))
			return
		}
	}
}

// readLoop is the only reader of conn. Replies are handed to the writer.
func (h *Handler) readLoop(conn *websocket.Conn, replies chan<- Message, done chan<- struct{}, stop <-chan struct{}) {
	defer close(done)

	reply := func(m Message) bool {
		select {
		case replies <- m:
			return true
		case <-stop:
			return false
		}
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Info("WebSocket read error", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			if !reply(h.errorMessage("invalid message")) {
				return
			}
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordWSMessage("in", msg.Type)
		}
		if !reply(h.handle(msg)) {
			return
		}
	}
}

func (h *Handler) handle(msg Message) Message {
	switch msg.Type {
	case TypePing:
		return newMessage(TypePong, nil)
	case TypeRefresh:
		if h.tasks == nil {
			return h.errorMessage("no task synchronizer in this process")
		}
		h.tasks.RequestRefresh()
		ack := newMessage(TypeSystem, nil)
		ack.Message = "refresh requested"
		return ack
	case TypeAdvance:
		if h.tasks == nil {
			return h.errorMessage("no task synchronizer in this process")
		}
		return newMessage(TypeTasks, h.tasks.Advance())
	}
	return h.errorMessage("unknown message type")
}

func (h *Handler) send(conn *websocket.Conn, msg Message) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.RecordWSMessage("out", msg.Type)
	}
	return nil
}

func (h *Handler) errorMessage(text string) Message {
	msg := newMessage(TypeError, nil)
	msg.Message = text
	return msg
}
