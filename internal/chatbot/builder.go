package chatbot

import (
	"context"
	"fmt"

	"github.com/ragbot-core-v1/server/internal/chatbot/graph"
	"github.com/ragbot-core-v1/server/internal/chatbot/history"
	"github.com/ragbot-core-v1/server/internal/chatbot/intent"
	"github.com/ragbot-core-v1/server/internal/chatbot/llm"
	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/chatbot/notify"
	"github.com/ragbot-core-v1/server/internal/chatbot/preprocess"
	"github.com/ragbot-core-v1/server/internal/chatbot/prompts"
	"github.com/ragbot-core-v1/server/internal/chatbot/retrieval"
	"github.com/ragbot-core-v1/server/internal/chatbot/tools"
	"github.com/ragbot-core-v1/server/internal/chatbot/workspace"
)

// BuildConfig holds everything needed to compose a Bot end to end: provider
// credentials, model choices and the backing stores.
type BuildConfig struct {
	APIKey  string
	BaseURL string

	GeneratorLLM model.LLMConfig
	PlannerLLM   model.LLMConfig

	Workspaces workspace.Store
	Retriever  retrieval.Service
	Scorer     retrieval.Scorer
	Tokens     retrieval.TokenCounter

	IntentIndex    intent.Index
	IntentExamples []model.IntentExample
	IntentTopK     int

	LanguageTools preprocess.LanguageTools
	History       history.Repository
	Notifier      notify.Notifier
	Prompts       *prompts.Store

	MaxRecursionLimit int
}

// Build composes the chat models, tool registry and conversation graph and
// returns a ready Bot.
func Build(ctx context.Context, cfg BuildConfig) (*Bot, error) {
	if cfg.Workspaces == nil || cfg.Retriever == nil {
		return nil, fmt.Errorf("workspace store and retriever are required")
	}
	if cfg.IntentIndex == nil {
		return nil, fmt.Errorf("intent index is required")
	}

	promptStore := cfg.Prompts
	if promptStore == nil {
		promptStore = prompts.NewStore()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	langTools := cfg.LanguageTools
	if langTools == nil {
		langTools = preprocess.HeuristicLanguageTools{}
	}

	chain := &retrieval.Chain{
		Workspaces: cfg.Workspaces,
		Service:    cfg.Retriever,
		Scorer:     cfg.Scorer,
		Tokens:     cfg.Tokens,
	}

	// The chat tool's generator is assigned after model construction; the
	// closure only dereferences it at run time.
	var generator *llm.GeminiGenerator
	registry := tools.NewRegistry(
		tools.NewGiveFinalResponse(),
		tools.NewKnowledgeBaseRetrieve(func(ctx context.Context, s *model.ConversationState, query string) ([]model.RetrievalResult, error) {
			return chain.RetrieveQD(ctx, s, query)
		}),
		tools.NewChat(func(ctx context.Context, s *model.ConversationState, query string) (string, error) {
			out, err := generator.Generate(ctx, llm.GenerateInput{
				Task:        prompts.TaskChat,
				Group:       s.Config.GroupName,
				LLM:         s.Config.Chat,
				Query:       query,
				ChatHistory: s.ChatHistory,
			})
			if err != nil {
				return "", err
			}
			return out.Answer, nil
		}),
	)

	models, err := llm.NewChatModels(ctx, llm.ChatModelConfig{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		GeneratorLLM: cfg.GeneratorLLM,
		PlannerLLM:   cfg.PlannerLLM,
		PlannerTools: registry.Infos(),
	})
	if err != nil {
		return nil, err
	}

	generator = &llm.GeminiGenerator{
		Model:     models.Generator,
		ModelName: models.GeneratorModelName,
		Prompts:   promptStore,
		Notifier:  notifier,
	}
	planner := &llm.GeminiPlanner{
		Model:     models.Planner,
		ModelName: models.PlannerModelName,
		Prompts:   promptStore,
	}

	pre := preprocess.New(llm.RewriteAdapter{
		Generator: generator,
		LLM:       cfg.GeneratorLLM,
	}, langTools)

	gate := intent.NewGate(cfg.IntentIndex, cfg.IntentExamples, cfg.IntentTopK)

	runner, err := graph.BuildConversationGraph(ctx, &graph.Config{
		Preprocessor:      pre,
		Intent:            gate,
		Chain:             chain,
		Generator:         generator,
		Planner:           planner,
		PlannerModelID:    models.PlannerModelName,
		Registry:          registry,
		Notifier:          notifier,
		MaxRecursionLimit: cfg.MaxRecursionLimit,
	})
	if err != nil {
		return nil, err
	}

	return New(runner, cfg.History, notifier, cfg.MaxRecursionLimit), nil
}
