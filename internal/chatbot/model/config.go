package model

import (
	"encoding/json"
	"fmt"

	"github.com/ragbot-core-v1/server/internal/core/errx"
)

// ChatbotMode selects the top-level pipeline for a turn.
type ChatbotMode string

const (
	ModeChat  ChatbotMode = "chat"
	ModeRAG   ChatbotMode = "rag"
	ModeAgent ChatbotMode = "agent"
)

const (
	DefaultRecursionLimit     = 5
	DefaultQQMatchThreshold   = 0.8
	DefaultQDMatchThreshold   = 0.5
	DefaultRetrieverTopK      = 10
	DefaultRerankerTopK       = 5
	DefaultContextTokenBudget = 2048
	DefaultIntentTopK         = 5
)

// DefaultFastReply is the fixed refusal returned whenever no confident
// answer is available. A low-confidence generated answer is never returned
// in its place.
const DefaultFastReply = "很抱歉，我只能回答与本服务相关的咨询。"

// LLMConfig identifies the model used for one task.
type LLMConfig struct {
	ModelID     string  `json:"model_id"`
	Temperature float32 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// QQConfig configures the question-question match chain. MatchThreshold is
// a pointer so an explicit 0 (filtering disabled) is distinguishable from an
// absent field.
type QQConfig struct {
	MatchThreshold *float64 `json:"qq_match_threshold,omitempty"`
	TopK           int      `json:"qq_top_k,omitempty"`
}

// Threshold returns the configured match threshold, or the default when the
// field was absent.
func (c QQConfig) Threshold() float64 {
	if c.MatchThreshold == nil {
		return DefaultQQMatchThreshold
	}
	return *c.MatchThreshold
}

// QDConfig configures the question-document retrieve/rerank/filter chain.
type QDConfig struct {
	RetrieverTopK  int      `json:"retriever_top_k"`
	RerankerTopK   int      `json:"reranker_top_k"`
	EnableReranker bool     `json:"enable_reranker"`
	MatchThreshold *float64 `json:"qd_match_threshold,omitempty"`
	UsingWholeDoc  bool     `json:"using_whole_doc,omitempty"`
	ContextNum     int      `json:"context_num,omitempty"`
}

// Threshold returns the configured match threshold, or the default when the
// field was absent.
func (c QDConfig) Threshold() float64 {
	if c.MatchThreshold == nil {
		return DefaultQDMatchThreshold
	}
	return *c.MatchThreshold
}

// RetrieverConfig lists the workspaces a turn retrieves from.
type RetrieverConfig struct {
	WorkspaceIDs []string `json:"workspace_ids"`
	QQ           QQConfig `json:"qq_config"`
	QD           QDConfig `json:"qd_config"`
}

// RAGConfig groups retrieval plus generation settings for rag/agent turns.
type RAGConfig struct {
	LLM                LLMConfig       `json:"llm_config"`
	Retriever          RetrieverConfig `json:"retriever_config"`
	ContextTokenBudget int             `json:"context_token_budget,omitempty"`
}

// ChatbotConfig enumerates the recognized per-turn options.
type ChatbotConfig struct {
	ChatbotMode         ChatbotMode `json:"chatbot_mode"`
	GroupName           string      `json:"group_name,omitempty"`
	UseHistory          bool        `json:"use_history"`
	EnableTrace         bool        `json:"enable_trace"`
	AgentRecursionLimit int         `json:"agent_recursion_limit"`
	RAG                 RAGConfig   `json:"rag_config"`
	Chat                LLMConfig   `json:"chat_config"`
	AllowedIntents      []string    `json:"allowed_intents,omitempty"`
	FastReply           string      `json:"fast_reply,omitempty"`
}

// defaultAllowedIntents are the intents that may proceed to agent/RAG
// generation; anything else gets the fast refusal.
var defaultAllowedIntents = []string{"knowledge_qa", "market_event"}

// ParseChatbotConfig decodes and validates the per-turn configuration.
// Invalid configuration is fatal for the turn.
func ParseChatbotConfig(raw json.RawMessage) (*ChatbotConfig, error) {
	if len(raw) == 0 {
		return nil, errx.Configuration("chatbot_config is missing")
	}
	var cfg ChatbotConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, errx.Configuration(fmt.Sprintf("chatbot_config is not valid JSON: %v", err))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ChatbotConfig) applyDefaults() {
	if c.AgentRecursionLimit <= 0 {
		c.AgentRecursionLimit = DefaultRecursionLimit
	}
	if c.RAG.Retriever.QQ.TopK <= 0 {
		c.RAG.Retriever.QQ.TopK = DefaultIntentTopK
	}
	if c.RAG.Retriever.QD.RetrieverTopK <= 0 {
		c.RAG.Retriever.QD.RetrieverTopK = DefaultRetrieverTopK
	}
	if c.RAG.Retriever.QD.RerankerTopK <= 0 {
		c.RAG.Retriever.QD.RerankerTopK = DefaultRerankerTopK
	}
	if c.RAG.ContextTokenBudget <= 0 {
		c.RAG.ContextTokenBudget = DefaultContextTokenBudget
	}
	if len(c.AllowedIntents) == 0 {
		c.AllowedIntents = defaultAllowedIntents
	}
	if c.FastReply == "" {
		c.FastReply = DefaultFastReply
	}
}

// Validate checks the parsed configuration. Errors wrap ErrConfiguration.
func (c *ChatbotConfig) Validate() error {
	switch c.ChatbotMode {
	case ModeChat, ModeRAG, ModeAgent:
	case "":
		return errx.Configuration("chatbot_mode is required")
	default:
		return errx.Configuration(fmt.Sprintf("unknown chatbot_mode %q", c.ChatbotMode))
	}
	if c.ChatbotMode != ModeChat && len(c.RAG.Retriever.WorkspaceIDs) == 0 {
		return errx.Configuration(fmt.Sprintf("%s mode requires rag_config.retriever_config.workspace_ids", c.ChatbotMode))
	}
	return nil
}

// IntentAllowed reports whether the detected intent may proceed to
// generation.
func (c *ChatbotConfig) IntentAllowed(intent string) bool {
	for _, a := range c.AllowedIntents {
		if a == intent {
			return true
		}
	}
	return false
}
