package model

import (
	"github.com/cloudwego/eino/schema"
)

// ConversationState is the mutable per-turn record threaded through the
// orchestration graph. It is created when a turn enters the graph and
// discarded once the response is assembled; nothing in here survives across
// turns (history persistence is a collaborator concern).
//
// Fields with non-trivial update policies are mutated only through the
// methods below: chat/agent history and traces are append-only, tool calls
// are replaced wholesale by each planning step, debug info deep-merges.
type ConversationState struct {
	// Query preprocessing
	Query          string
	RewrittenQuery string
	QueryLang      string
	TranslatedText string
	IsAPIQuery     bool
	ServiceNames   []string

	// Conversation context. ChatHistory is read-only within a turn; the
	// agent loop appends only to AgentChatHistory.
	ChatHistory      []*schema.Message
	AgentChatHistory []AgentRecord

	// Intent detection
	IntentType     string
	IntentTools    []string
	IntentExamples []IntentExample
	QQMatches      []RetrievalResult

	// Retrieval output, positionally aligned: Sources[i] identifies the
	// provenance of Contexts[i].
	Contexts []string
	Sources  []string

	// Agent loop bookkeeping
	CurrentAgentOutput *schema.Message
	CurrentToolCalls   []ToolCall
	RecursionCount     int
	RecursionLimit     int
	ToolCallingOK      bool
	ToolCallingOnce    bool

	// Output
	Answer        any
	DebugInfo     map[string]any
	ExtraResponse map[string]any
	TraceInfos    []string

	// Turn plumbing
	Stream         bool
	WSConnectionID string
	MessageID      string
	Config         *ChatbotConfig
}

// NewConversationState seeds a turn state from the entry event.
func NewConversationState(ev *TurnEvent, cfg *ChatbotConfig) *ConversationState {
	history := ev.ChatHistory
	if !cfg.UseHistory {
		history = nil
	}
	return &ConversationState{
		Query:          ev.Query,
		ChatHistory:    history,
		RecursionLimit: cfg.AgentRecursionLimit,
		DebugInfo:      map[string]any{},
		ExtraResponse:  map[string]any{},
		Stream:         ev.Stream,
		WSConnectionID: ev.WSConnectionID,
		MessageID:      ev.CustomMessageID,
		Config:         cfg,
	}
}

// EffectiveQuery returns the rewritten query when the rewrite step has run,
// otherwise the raw query.
func (s *ConversationState) EffectiveQuery() string {
	if s.RewrittenQuery != "" {
		return s.RewrittenQuery
	}
	return s.Query
}

// AppendChatHistory appends turns to the conversation history.
func (s *ConversationState) AppendChatHistory(msgs ...*schema.Message) {
	s.ChatHistory = append(s.ChatHistory, msgs...)
}

// AppendAgentRecord appends an agent-turn record. Agent history is
// append-only within the loop.
func (s *ConversationState) AppendAgentRecord(recs ...AgentRecord) {
	s.AgentChatHistory = append(s.AgentChatHistory, recs...)
}

// LastAgentRecord returns the most recent agent record, or nil.
func (s *ConversationState) LastAgentRecord() *AgentRecord {
	if len(s.AgentChatHistory) == 0 {
		return nil
	}
	return &s.AgentChatHistory[len(s.AgentChatHistory)-1]
}

// AttachToolResults appends execution results to the most recent agent
// record, pairing them with the planner message that requested them.
func (s *ConversationState) AttachToolResults(results ...ToolResult) {
	if len(s.AgentChatHistory) == 0 {
		s.AgentChatHistory = append(s.AgentChatHistory, AgentRecord{})
	}
	last := &s.AgentChatHistory[len(s.AgentChatHistory)-1]
	last.ToolResults = append(last.ToolResults, results...)
}

// SetToolCalls replaces the pending tool calls. One planning step produces
// them, exactly one execution step consumes them.
func (s *ConversationState) SetToolCalls(calls []ToolCall) {
	s.CurrentToolCalls = calls
}

// AppendContexts appends retrieved snippets with their provenance, keeping
// the two sequences positionally aligned.
func (s *ConversationState) AppendContexts(contexts, sources []string) {
	s.Contexts = append(s.Contexts, contexts...)
	s.Sources = append(s.Sources, sources...)
}

// SetContexts replaces the retrieval output wholesale.
func (s *ConversationState) SetContexts(contexts, sources []string) {
	s.Contexts = contexts
	s.Sources = sources
}

// MergeDebug deep-merges diagnostic info; existing nested maps are extended
// rather than replaced. Debug info is additive only.
func (s *ConversationState) MergeDebug(info map[string]any) {
	if s.DebugInfo == nil {
		s.DebugInfo = map[string]any{}
	}
	mergeNested(s.DebugInfo, info)
}

// MergeExtraResponse deep-merges structured response extras.
func (s *ConversationState) MergeExtraResponse(extra map[string]any) {
	if s.ExtraResponse == nil {
		s.ExtraResponse = map[string]any{}
	}
	mergeNested(s.ExtraResponse, extra)
}

// AppendTrace records a trace line for the turn.
func (s *ConversationState) AppendTrace(info string) {
	s.TraceInfos = append(s.TraceInfos, info)
}

// RecursionValid reports whether another agent planning cycle is allowed.
func (s *ConversationState) RecursionValid() bool {
	return s.RecursionCount < s.RecursionLimit
}

func mergeNested(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if cur, ok := dst[k].(map[string]any); ok {
				mergeNested(cur, sub)
				continue
			}
		}
		dst[k] = v
	}
}
