package ws

import "time"

// Message types pushed to clients
const (
	TypeSystem  = "system"
	TypeSession = "session"
	TypeTasks   = "tasks"
	TypePong    = "pong"
	TypeError   = "error"
)

// Message types accepted from clients
const (
	TypePing    = "ping"
	TypeRefresh = "refresh"
	TypeAdvance = "advance"
)

// Message is the envelope for every frame in either direction
type Message struct {
	Type      string      `json:"type"`
	Message   string      `json:"message,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func newMessage(kind string, payload interface{}) Message {
	return Message{Type: kind, Payload: payload, Timestamp: time.Now().Unix()}
}
