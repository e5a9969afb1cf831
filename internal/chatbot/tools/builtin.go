package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
)

// Built-in tool names.
const (
	NameGiveFinalResponse     = "give_final_response"
	NameKnowledgeBaseRetrieve = "knowledge_base_retrieve"
	NameChat                  = "chat"
)

// RetrieveFunc fetches ranked knowledge snippets for a query.
type RetrieveFunc func(ctx context.Context, s *model.ConversationState, query string) ([]model.RetrievalResult, error)

// NewGiveFinalResponse returns the terminal tool: the model hands over its
// final answer as the tool argument and the loop ends.
func NewGiveFinalResponse() *Descriptor {
	return &Descriptor{
		Name:     NameGiveFinalResponse,
		Mode:     model.RunOnce,
		Required: []string{"response"},
		Info: &schema.ToolInfo{
			Name: NameGiveFinalResponse,
			Desc: "Give the final response to the user when no further tool call is needed.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"response": {
					Type:     "string",
					Desc:     "The final response text for the user.",
					Required: true,
				},
			}),
		},
		Run: func(_ context.Context, _ *model.ConversationState, kwargs map[string]any) (map[string]any, error) {
			resp, _ := kwargs["response"].(string)
			return map[string]any{"result": resp}, nil
		},
	}
}

// NewKnowledgeBaseRetrieve returns the repeated-mode knowledge lookup tool;
// its output feeds the next planning round.
func NewKnowledgeBaseRetrieve(retrieve RetrieveFunc) *Descriptor {
	return &Descriptor{
		Name:     NameKnowledgeBaseRetrieve,
		Mode:     model.RunRepeated,
		Required: []string{"query"},
		Info: &schema.ToolInfo{
			Name: NameKnowledgeBaseRetrieve,
			Desc: "Retrieve supporting knowledge snippets for a question from the indexed workspaces.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "The question to retrieve knowledge for.",
					Required: true,
				},
			}),
		},
		Run: func(ctx context.Context, s *model.ConversationState, kwargs map[string]any) (map[string]any, error) {
			query, _ := kwargs["query"].(string)
			if query == "" {
				query = s.EffectiveQuery()
			}
			results, err := retrieve(ctx, s, query)
			if err != nil {
				return nil, err
			}
			contexts := make([]string, 0, len(results))
			for _, r := range results {
				contexts = append(contexts, r.Content)
			}
			return map[string]any{"result": contexts}, nil
		},
	}
}

// ChatFunc produces a conversational reply without retrieval.
type ChatFunc func(ctx context.Context, s *model.ConversationState, query string) (string, error)

// NewChat returns the once-mode small-talk tool: its reply is the final
// answer without another planning round.
func NewChat(chat ChatFunc) *Descriptor {
	return &Descriptor{
		Name:     NameChat,
		Mode:     model.RunOnce,
		Required: []string{"query"},
		Info: &schema.ToolInfo{
			Name: NameChat,
			Desc: "Reply conversationally when the user is chatting rather than asking a knowledge question.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "The user's message to reply to.",
					Required: true,
				},
			}),
		},
		Run: func(ctx context.Context, s *model.ConversationState, kwargs map[string]any) (map[string]any, error) {
			query, _ := kwargs["query"].(string)
			if query == "" {
				query = s.EffectiveQuery()
			}
			reply, err := chat(ctx, s, query)
			if err != nil {
				return nil, fmt.Errorf("chat tool: %w", err)
			}
			return map[string]any{"result": reply}, nil
		},
	}
}
