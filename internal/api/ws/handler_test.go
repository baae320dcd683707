package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/clouddesk/internal/domain/handoff"
	"github.com/GriffinCanCode/clouddesk/internal/domain/tasksync"
	"github.com/GriffinCanCode/clouddesk/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/clouddesk/internal/shared/broadcast"
	"github.com/GriffinCanCode/clouddesk/internal/shared/types"
)

type fakeSession struct {
	hub *broadcast.Hub[handoff.State]
}

func (f *fakeSession) State() handoff.State { return handoff.State{Session: handoff.BrowserActive} }

func (f *fakeSession) Subscribe() (<-chan handoff.State, func()) { return f.hub.Subscribe() }

type fakeTasks struct {
	hub       *broadcast.Hub[tasksync.Snapshot]
	refreshes atomic.Int32
}

func (f *fakeTasks) Snapshot() tasksync.Snapshot {
	return tasksync.Snapshot{Tasks: []types.CanonicalTask{{ID: "1"}, {ID: "2"}}, FocusedID: "1"}
}

func (f *fakeTasks) Subscribe() (<-chan tasksync.Snapshot, func()) { return f.hub.Subscribe() }

func (f *fakeTasks) RequestRefresh() { f.refreshes.Add(1) }

func (f *fakeTasks) Advance() tasksync.Snapshot {
	snap := f.Snapshot()
	snap.FocusedID = "2"
	return snap
}

type received struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload"`
}

func setup(t *testing.T, opts Options) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/stream", NewHandler(opts).HandleConnection)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func next(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamSendsInitialState(t *testing.T) {
	session := &fakeSession{hub: broadcast.New[handoff.State]()}
	tasks := &fakeTasks{hub: broadcast.New[tasksync.Snapshot]()}
	conn := setup(t, Options{Session: session, Tasks: tasks})

	assert.Equal(t, TypeSystem, next(t, conn).Type)

	msg := next(t, conn)
	require.Equal(t, TypeSession, msg.Type)
	var st handoff.State
	require.NoError(t, json.Unmarshal(msg.Payload, &st))
	assert.Equal(t, handoff.BrowserActive, st.Session)

	msg = next(t, conn)
	require.Equal(t, TypeTasks, msg.Type)
	var snap tasksync.Snapshot
	require.NoError(t, json.Unmarshal(msg.Payload, &snap))
	assert.Len(t, snap.Tasks, 2)
}

func TestStreamPushesUpdates(t *testing.T) {
	session := &fakeSession{hub: broadcast.New[handoff.State]()}
	metrics := monitoring.NewMetrics()
	conn := setup(t, Options{Session: session, Metrics: metrics})

	next(t, conn)
	next(t, conn)

	require.Eventually(t, func() bool { return session.hub.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	session.hub.Publish(handoff.State{Session: handoff.TransitioningToDesktop})

	msg := next(t, conn)
	require.Equal(t, TypeSession, msg.Type)
	var st handoff.State
	require.NoError(t, json.Unmarshal(msg.Payload, &st))
	assert.Equal(t, handoff.TransitioningToDesktop, st.Session)
}

func TestStreamCommands(t *testing.T) {
	tasks := &fakeTasks{hub: broadcast.New[tasksync.Snapshot]()}
	conn := setup(t, Options{Tasks: tasks})
	next(t, conn)
	next(t, conn)

	tests := []struct {
		name     string
		send     string
		wantType string
	}{
		{"ping", `{"type":"ping"}`, TypePong},
		{"refresh", `{"type":"refresh"}`, TypeSystem},
		{"advance", `{"type":"advance"}`, TypeTasks},
		{"unknown", `{"type":"dance"}`, TypeError},
		{"garbage", `not json`, TypeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.send)))
			assert.Equal(t, tt.wantType, next(t, conn).Type)
		})
	}
	assert.Equal(t, int32(1), tasks.refreshes.Load())
}

func TestStreamWithoutTasksRejectsCommands(t *testing.T) {
	session := &fakeSession{hub: broadcast.New[handoff.State]()}
	conn := setup(t, Options{Session: session})
	next(t, conn)
	next(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"advance"}`)))
	msg := next(t, conn)
	assert.Equal(t, TypeError, msg.Type)
	assert.Contains(t, msg.Message, "synchronizer")
}

func TestStreamUnsubscribesOnClose(t *testing.T) {
	session := &fakeSession{hub: broadcast.New[handoff.State]()}
	conn := setup(t, Options{Session: session})
	next(t, conn)
	next(t, conn)
	require.Eventually(t, func() bool { return session.hub.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	assert.Eventually(t, func() bool { return session.hub.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
