package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragbot-core-v1/server/internal/core/errx"
)

func TestParseChatbotConfigDefaults(t *testing.T) {
	raw := json.RawMessage(`{
		"chatbot_mode": "agent",
		"rag_config": {"retriever_config": {"workspace_ids": ["ws-1"]}}
	}`)
	cfg, err := ParseChatbotConfig(raw)
	require.NoError(t, err)

	assert.Equal(t, DefaultRecursionLimit, cfg.AgentRecursionLimit)
	assert.InDelta(t, DefaultQQMatchThreshold, cfg.RAG.Retriever.QQ.Threshold(), 1e-9)
	assert.InDelta(t, DefaultQDMatchThreshold, cfg.RAG.Retriever.QD.Threshold(), 1e-9)
	assert.Equal(t, DefaultRetrieverTopK, cfg.RAG.Retriever.QD.RetrieverTopK)
	assert.Equal(t, DefaultRerankerTopK, cfg.RAG.Retriever.QD.RerankerTopK)
	assert.Equal(t, DefaultContextTokenBudget, cfg.RAG.ContextTokenBudget)
	assert.Equal(t, DefaultFastReply, cfg.FastReply)
	assert.True(t, cfg.IntentAllowed("knowledge_qa"))
	assert.True(t, cfg.IntentAllowed("market_event"))
	assert.False(t, cfg.IntentAllowed("chitchat"))
}

func TestParseChatbotConfigErrors(t *testing.T) {
	cases := map[string]string{
		"missing":           "",
		"invalid json":      `{not json`,
		"missing mode":      `{}`,
		"unknown mode":      `{"chatbot_mode": "oracle"}`,
		"rag no workspaces": `{"chatbot_mode": "rag"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseChatbotConfig(json.RawMessage(raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errx.ErrConfiguration))
		})
	}
}

func TestParseChatbotConfigChatModeNeedsNoWorkspaces(t *testing.T) {
	cfg, err := ParseChatbotConfig(json.RawMessage(`{"chatbot_mode": "chat"}`))
	require.NoError(t, err)
	assert.Equal(t, ModeChat, cfg.ChatbotMode)
}

func TestParseChatbotConfigOverrides(t *testing.T) {
	raw := json.RawMessage(`{
		"chatbot_mode": "agent",
		"agent_recursion_limit": 3,
		"allowed_intents": ["knowledge_qa"],
		"fast_reply": "custom refusal",
		"rag_config": {
			"retriever_config": {
				"workspace_ids": ["ws-1"],
				"qq_config": {"qq_match_threshold": 0.9},
				"qd_config": {"qd_match_threshold": 0.6, "enable_reranker": true}
			}
		}
	}`)
	cfg, err := ParseChatbotConfig(raw)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.AgentRecursionLimit)
	assert.Equal(t, "custom refusal", cfg.FastReply)
	assert.False(t, cfg.IntentAllowed("market_event"))
	assert.InDelta(t, 0.9, cfg.RAG.Retriever.QQ.Threshold(), 1e-9)
	assert.InDelta(t, 0.6, cfg.RAG.Retriever.QD.Threshold(), 1e-9)
	assert.True(t, cfg.RAG.Retriever.QD.EnableReranker)
}

func TestParseChatbotConfigZeroThresholdDisablesFiltering(t *testing.T) {
	raw := json.RawMessage(`{
		"chatbot_mode": "rag",
		"rag_config": {
			"retriever_config": {
				"workspace_ids": ["ws-1"],
				"qq_config": {"qq_match_threshold": 0},
				"qd_config": {"qd_match_threshold": 0}
			}
		}
	}`)
	cfg, err := ParseChatbotConfig(raw)
	require.NoError(t, err)
	assert.Zero(t, cfg.RAG.Retriever.QQ.Threshold())
	assert.Zero(t, cfg.RAG.Retriever.QD.Threshold())
}
