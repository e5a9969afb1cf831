package model

import (
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agentStateConfig(t *testing.T) *ChatbotConfig {
	t.Helper()
	cfg, err := ParseChatbotConfig(json.RawMessage(`{
		"chatbot_mode": "agent",
		"use_history": true,
		"rag_config": {"retriever_config": {"workspace_ids": ["ws-1"]}}
	}`))
	require.NoError(t, err)
	return cfg
}

func TestNewConversationStateSeedsFromEvent(t *testing.T) {
	cfg := agentStateConfig(t)
	s := NewConversationState(&TurnEvent{
		Query:           "hello",
		ChatHistory:     []*schema.Message{schema.UserMessage("earlier")},
		WSConnectionID:  "conn-1",
		CustomMessageID: "msg-1",
	}, cfg)

	assert.Equal(t, "hello", s.Query)
	assert.Len(t, s.ChatHistory, 1)
	assert.Equal(t, cfg.AgentRecursionLimit, s.RecursionLimit)
	assert.Equal(t, "hello", s.EffectiveQuery())
}

func TestNewConversationStateDropsHistoryWhenDisabled(t *testing.T) {
	cfg := agentStateConfig(t)
	cfg.UseHistory = false
	s := NewConversationState(&TurnEvent{
		Query:       "hello",
		ChatHistory: []*schema.Message{schema.UserMessage("earlier")},
	}, cfg)
	assert.Empty(t, s.ChatHistory)
}

func TestEffectiveQueryPrefersRewrite(t *testing.T) {
	s := &ConversationState{Query: "raw", RewrittenQuery: "rewritten"}
	assert.Equal(t, "rewritten", s.EffectiveQuery())
}

func TestMergeDebugDeepMerges(t *testing.T) {
	s := &ConversationState{DebugInfo: map[string]any{}}
	s.MergeDebug(map[string]any{"stage": map[string]any{"a": 1}})
	s.MergeDebug(map[string]any{"stage": map[string]any{"b": 2}, "top": "x"})

	stage, ok := s.DebugInfo["stage"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, stage["a"])
	assert.Equal(t, 2, stage["b"])
	assert.Equal(t, "x", s.DebugInfo["top"])
}

func TestRecursionValid(t *testing.T) {
	s := &ConversationState{RecursionLimit: 3}
	for i := 0; i < 3; i++ {
		assert.True(t, s.RecursionValid(), "count %d", s.RecursionCount)
		s.RecursionCount++
	}
	assert.False(t, s.RecursionValid())
}

func TestAttachToolResultsPairsWithLastRecord(t *testing.T) {
	s := &ConversationState{}
	msg := schema.AssistantMessage("", nil)
	s.AppendAgentRecord(AgentRecord{Message: msg})
	s.AttachToolResults(ToolResult{Name: "chat", Output: map[string]any{"result": "hi"}})

	last := s.LastAgentRecord()
	require.NotNil(t, last)
	assert.Same(t, msg, last.Message)
	require.Len(t, last.ToolResults, 1)
	assert.Equal(t, "chat", last.ToolResults[0].Name)
}
