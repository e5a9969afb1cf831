// Package llm defines the model-invocation collaborators of the
// orchestration graph and their Gemini-backed production implementations.
package llm

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/chatbot/prompts"
)

// GenerateInput is the generation-service request: configuration plus the
// task input (contexts, query, chat history).
type GenerateInput struct {
	Task        prompts.TaskType
	Group       string
	LLM         model.LLMConfig
	Query       string
	Contexts    []string
	ChatHistory []*schema.Message
	// Stream asks for incremental delivery on the side channel. It changes
	// transport shape only; the returned answer is always complete.
	Stream    bool
	MessageID string
}

// GenerateOutput carries the final answer and the raw model response.
type GenerateOutput struct {
	Answer string
	Raw    *schema.Message
}

// Generator is the LLM generation service used by chat and RAG paths.
type Generator interface {
	Generate(ctx context.Context, in GenerateInput) (*GenerateOutput, error)
}

// Planner invokes the tool-bound model with the current agent state to
// either select a tool call or produce a final answer.
type Planner interface {
	Plan(ctx context.Context, s *model.ConversationState) (*schema.Message, error)
}

// RewriteAdapter exposes a Generator as the preprocess rewrite collaborator.
type RewriteAdapter struct {
	Generator Generator
	Group     string
	LLM       model.LLMConfig
}

func (r RewriteAdapter) Rewrite(ctx context.Context, query string, history []*schema.Message) (string, error) {
	out, err := r.Generator.Generate(ctx, GenerateInput{
		Task:        prompts.TaskRewrite,
		Group:       r.Group,
		LLM:         r.LLM,
		Query:       query,
		ChatHistory: history,
	})
	if err != nil {
		return "", err
	}
	return out.Answer, nil
}
