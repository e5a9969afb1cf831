// Package notify is the narrow contract with the real-time message channel.
// The transport itself (websocket plumbing) lives outside the core; the
// graph only emits tagged events through this interface.
package notify

import (
	logx "github.com/ragbot-core-v1/server/pkg/logger"
)

// EventType tags one incremental message event.
type EventType string

const (
	EventStart   EventType = "START"
	EventChunk   EventType = "CHUNK"
	EventEnd     EventType = "END"
	EventError   EventType = "ERROR"
	EventContext EventType = "CONTEXT"
)

// Event is one incremental message sent to the client while a turn runs.
type Event struct {
	Type         EventType `json:"type"`
	ConnectionID string    `json:"ws_connection_id,omitempty"`
	MessageID    string    `json:"custom_message_id,omitempty"`
	Content      string    `json:"content,omitempty"`
	Contexts     []string  `json:"contexts,omitempty"`
	Sources      []string  `json:"sources,omitempty"`
}

// Notifier delivers events to the client channel. Streaming through it is a
// transport optimisation; the final-answer contract is authoritative either
// way.
type Notifier interface {
	Send(ev Event)
}

// LogNotifier is the default sink when no transport is attached: events are
// only logged.
type LogNotifier struct{}

func (LogNotifier) Send(ev Event) {
	logx.Debug().
		Str("event", string(ev.Type)).
		Str("message_id", ev.MessageID).
		Int("content_len", len(ev.Content)).
		Msg("notify event")
}

var _ Notifier = LogNotifier{}
