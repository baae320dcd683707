// Package ws serves /stream, a WebSocket feed of handoff controller state
// and task synchronizer snapshots for the local session pages.
//
// Message Types (Server → Client):
//   - system: connection and acknowledgement notices
//   - session: handoff controller state after every change
//   - tasks: synchronizer snapshot after every change
//   - pong: reply to ping
//   - error: the client message could not be handled
//
// Message Types (Client → Server):
//   - ping: keep-alive
//   - refresh: request an immediate refresh cycle
//   - advance: move focus to the next active task
//
// Slow clients only ever see the latest state of each kind.
//
//	handler := ws.NewHandler(ws.Options{Session: controller, Tasks: synchronizer})
//	router.GET("/stream", handler.HandleConnection)
package ws
