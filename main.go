package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ragbot-core-v1/server/internal/chatbot"
	"github.com/ragbot-core-v1/server/internal/chatbot/history"
	"github.com/ragbot-core-v1/server/internal/chatbot/intent"
	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/chatbot/retrieval"
	"github.com/ragbot-core-v1/server/internal/chatbot/workspace"
	"github.com/ragbot-core-v1/server/internal/core"
	logx "github.com/ragbot-core-v1/server/pkg/logger"
	pkgredis "github.com/ragbot-core-v1/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the chatbot example,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	Generator GeneratorModelConfig
	Planner   PlannerModelConfig

	Conversation ConversationConfig
}

type GeneratorModelConfig struct {
	Model       string  `envconfig:"GENERATOR_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"GENERATOR_MAX_TOKENS" default:"2048"`
	Temperature float32 `envconfig:"GENERATOR_TEMPERATURE" default:"0.4"`
}

type PlannerModelConfig struct {
	Model       string  `envconfig:"PLANNER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"PLANNER_MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"PLANNER_TEMPERATURE" default:"0.1"`
}

type ConversationConfig struct {
	TTL               string `envconfig:"CONVERSATION_TTL" default:"15m"`
	MaxRecursionLimit int    `envconfig:"AGENT_MAX_RECURSION_LIMIT" default:"10"`
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(envCfg.Environment)})

	rdb, err := envCfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	ttl, err := time.ParseDuration(envCfg.Conversation.TTL)
	if err != nil {
		log.Fatalf("Invalid CONVERSATION_TTL '%s': %v", envCfg.Conversation.TTL, err)
	}

	// Demo corpus: one qq workspace of curated question/answer pairs and
	// one qd workspace of document passages.
	workspaces := workspace.NewMemoryStore(
		model.Workspace{ID: "ws-qq-demo", IndexType: model.IndexTypeQQ},
		model.Workspace{ID: "ws-qd-demo", IndexType: model.IndexTypeQD},
	)
	retriever := retrieval.NewMemoryService()
	retriever.Seed("ws-qq-demo",
		model.RetrievalResult{
			Content: "how do I reset my account password",
			DocMetadata: map[string]any{
				"answer": "Open account settings, choose Security, and click Reset Password.",
				"source": "faq/password-reset",
			},
		},
	)
	retriever.Seed("ws-qd-demo",
		model.RetrievalResult{
			Content: "Object storage buckets support versioning, lifecycle rules and cross-region replication.",
			DocMetadata: map[string]any{"source": "docs/object-storage"},
		},
		model.RetrievalResult{
			Content: "The message queue service guarantees at-least-once delivery and ordering within a partition.",
			DocMetadata: map[string]any{"source": "docs/message-queue"},
		},
	)

	intentExamples := []model.IntentExample{
		{Question: "what does the object storage service cost", Intent: "knowledge_qa"},
		{Question: "how do I configure lifecycle rules", Intent: "knowledge_qa"},
		{Question: "tell me about the upcoming launch event", Intent: "market_event"},
		{Question: "what is the weather like today", Intent: "chitchat"},
	}

	bot, err := chatbot.Build(ctx, chatbot.BuildConfig{
		APIKey:            envCfg.APIKey,
		BaseURL:           envCfg.BaseURL,
		GeneratorLLM:      model.LLMConfig{ModelID: envCfg.Generator.Model, Temperature: envCfg.Generator.Temperature, MaxTokens: envCfg.Generator.MaxTokens},
		PlannerLLM:        model.LLMConfig{ModelID: envCfg.Planner.Model, Temperature: envCfg.Planner.Temperature, MaxTokens: envCfg.Planner.MaxTokens},
		Workspaces:        workspaces,
		Retriever:         retriever,
		Tokens:            &retrieval.TiktokenCounter{},
		IntentIndex:       intent.NewMemoryIndex(),
		IntentExamples:    intentExamples,
		History:           history.NewRedisRepository(rdb, envCfg.Redis.Keyspace(), ttl),
		MaxRecursionLimit: envCfg.Conversation.MaxRecursionLimit,
	})
	if err != nil {
		log.Fatalf("Failed to build chatbot: %v", err)
	}

	chatbotConfig := map[string]any{
		"chatbot_mode": "agent",
		"group_name":   "demo",
		"use_history":  true,
		"enable_trace": true,
		"rag_config": map[string]any{
			"llm_config": map[string]any{"model_id": envCfg.Generator.Model},
			"retriever_config": map[string]any{
				"workspace_ids": []string{"ws-qq-demo", "ws-qd-demo"},
				"qq_config":     map[string]any{"qq_match_threshold": 0.8},
				"qd_config":     map[string]any{"retriever_top_k": 10, "reranker_top_k": 5, "qd_match_threshold": 0.3},
			},
		},
		"chat_config": map[string]any{"model_id": envCfg.Generator.Model},
	}
	rawConfig, err := json.Marshal(chatbotConfig)
	if err != nil {
		log.Fatalf("Failed to marshal chatbot config: %v", err)
	}

	testQueries := []struct {
		description string
		query       string
	}{
		{
			description: "Matched question answered verbatim",
			query:       "how do I reset my account password",
		},
		{
			description: "Knowledge question through the agent",
			query:       "does object storage support cross-region replication",
		},
		{
			description: "Follow-up using conversation history",
			query:       "and what about lifecycle rules",
		},
	}

	conversationID := "demo-conversation-1"

	for i, test := range testQueries {
		fmt.Printf("\nTest %d: %s\n", i+1, test.description)
		fmt.Printf("Query: %q\n", test.query)

		resp, err := bot.ProcessTurn(ctx, &model.TurnEvent{
			Query:          test.query,
			ChatbotConfig:  rawConfig,
			WSConnectionID: conversationID,
		})
		if err != nil {
			log.Fatalf("Turn %d failed: %v", i+1, err)
		}

		fmt.Printf("Answer: %v\n", resp.Answer)
		if len(resp.Sources) > 0 {
			fmt.Printf("Sources: %v\n", resp.Sources)
		}
		time.Sleep(500 * time.Millisecond)
	}
}
