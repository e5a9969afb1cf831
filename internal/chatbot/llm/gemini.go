package llm

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/chatbot/notify"
	"github.com/ragbot-core-v1/server/internal/chatbot/prompts"
	"github.com/ragbot-core-v1/server/internal/core/errx"
	logx "github.com/ragbot-core-v1/server/pkg/logger"
)

// ChatModelConfig configures the Gemini-backed model pair: one tool-bound
// model for agent planning, one for plain generation.
type ChatModelConfig struct {
	APIKey       string
	BaseURL      string
	GeneratorLLM model.LLMConfig
	PlannerLLM   model.LLMConfig
	PlannerTools []*schema.ToolInfo
}

// ChatModels holds the constructed models.
type ChatModels struct {
	Generator          *gemini.ChatModel
	Planner            *gemini.ChatModel
	GeneratorModelName string
	PlannerModelName   string
}

// NewChatModels creates the generation and planning chat models and binds
// the tool schemas to the planner.
func NewChatModels(ctx context.Context, cfg ChatModelConfig) (*ChatModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	generator, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.GeneratorLLM.ModelID,
		Temperature: &cfg.GeneratorLLM.Temperature,
		MaxTokens:   &cfg.GeneratorLLM.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating generator model: %w", err)
	}

	planner, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.PlannerLLM.ModelID,
		Temperature: &cfg.PlannerLLM.Temperature,
		MaxTokens:   &cfg.PlannerLLM.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating planner model: %w", err)
	}
	if len(cfg.PlannerTools) > 0 {
		if err := planner.BindTools(cfg.PlannerTools); err != nil {
			return nil, fmt.Errorf("failed to bind tools to planner model: %w", err)
		}
	}

	return &ChatModels{
		Generator:          generator,
		Planner:            planner,
		GeneratorModelName: cfg.GeneratorLLM.ModelID,
		PlannerModelName:   cfg.PlannerLLM.ModelID,
	}, nil
}

// GeminiGenerator is the production Generator.
type GeminiGenerator struct {
	Model     *gemini.ChatModel
	ModelName string
	Prompts   *prompts.Store
	Notifier  notify.Notifier
}

func (g *GeminiGenerator) Generate(ctx context.Context, in GenerateInput) (*GenerateOutput, error) {
	var vars map[string]any
	switch in.Task {
	case prompts.TaskRAG:
		vars = prompts.RAGVars(in.Group, in.Contexts)
	case prompts.TaskChat:
		vars = prompts.ChatVars(in.Group)
	default:
		vars = map[string]any{}
	}
	system, err := g.Prompts.Render(ctx, in.Group, in.LLM.ModelID, in.Task, vars)
	if err != nil {
		return nil, err
	}

	messages := make([]*schema.Message, 0, len(in.ChatHistory)+2)
	messages = append(messages, schema.SystemMessage(system))
	messages = append(messages, in.ChatHistory...)
	messages = append(messages, schema.UserMessage(in.Query))

	var out *schema.Message
	if in.Stream && g.Notifier != nil {
		out, err = g.stream(ctx, messages, in.MessageID)
	} else {
		out, err = g.Model.Generate(ctx, messages)
	}
	if err != nil {
		return nil, errx.Upstream("llm generate", err)
	}

	logUsage(g.ModelName, out)
	return &GenerateOutput{Answer: strings.TrimSpace(out.Content), Raw: out}, nil
}

func (g *GeminiGenerator) stream(ctx context.Context, messages []*schema.Message, messageID string) (*schema.Message, error) {
	reader, err := g.Model.Stream(ctx, messages)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var chunks []*schema.Message
	for {
		chunk, err := reader.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			g.Notifier.Send(notify.Event{
				Type:      notify.EventChunk,
				MessageID: messageID,
				Content:   chunk.Content,
			})
		}
	}
	return schema.ConcatMessages(chunks)
}

// GeminiPlanner is the production Planner: the tool-bound model decides the
// next tool call or final answer from the agent state.
type GeminiPlanner struct {
	Model     *gemini.ChatModel
	ModelName string
	Prompts   *prompts.Store
}

func (p *GeminiPlanner) Plan(ctx context.Context, s *model.ConversationState) (*schema.Message, error) {
	system, err := p.Prompts.Render(ctx, s.Config.GroupName, p.ModelName, prompts.TaskAgentPlan,
		prompts.AgentVars(s.Config.GroupName, s.IntentType, s.IntentTools))
	if err != nil {
		return nil, err
	}

	messages := make([]*schema.Message, 0, len(s.ChatHistory)+2*len(s.AgentChatHistory)+2)
	messages = append(messages, schema.SystemMessage(system))
	messages = append(messages, s.ChatHistory...)
	messages = append(messages, schema.UserMessage(s.EffectiveQuery()))
	messages = append(messages, FlattenAgentHistory(s.AgentChatHistory)...)

	out, err := p.Model.Generate(ctx, messages)
	if err != nil {
		return nil, errx.Upstream("llm plan", err)
	}

	// Some providers omit tool_call ids; synthesize them so tool results
	// can be correlated.
	for i := range out.ToolCalls {
		if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
			out.ToolCalls[i].ID = "call_" + uuid.NewString()
		}
	}

	logUsage(p.ModelName, out)
	return out, nil
}

// FlattenAgentHistory expands agent records into the message sequence the
// planner sees: each planner message followed by the tool messages carrying
// its results.
func FlattenAgentHistory(records []model.AgentRecord) []*schema.Message {
	var msgs []*schema.Message
	for _, rec := range records {
		if rec.Message != nil {
			msgs = append(msgs, rec.Message)
		}
		for _, tr := range rec.ToolResults {
			msgs = append(msgs, schema.ToolMessage(fmt.Sprintf("%v", tr.Output["result"]), toolCallID(rec.Message)))
		}
	}
	return msgs
}

func toolCallID(msg *schema.Message) string {
	if msg != nil && len(msg.ToolCalls) > 0 {
		return msg.ToolCalls[0].ID
	}
	return ""
}
