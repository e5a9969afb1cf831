package model

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"
)

// TurnEvent is the structured event a transport submits for one user turn.
type TurnEvent struct {
	Query           string            `json:"query"`
	ChatHistory     []*schema.Message `json:"chat_history"`
	Stream          bool              `json:"stream"`
	ChatbotConfig   json.RawMessage   `json:"chatbot_config"`
	WSConnectionID  string            `json:"ws_connection_id"`
	CustomMessageID string            `json:"custom_message_id"`
}

// TurnResponse is the final-answer contract returned to the caller. The
// companion real-time channel may have streamed chunks already; this shape
// is authoritative either way.
type TurnResponse struct {
	Answer        any            `json:"answer"`
	Sources       []string       `json:"sources"`
	Contexts      []string       `json:"contexts"`
	DebugInfo     map[string]any `json:"debug_info,omitempty"`
	ExtraResponse map[string]any `json:"extra_response,omitempty"`
}
