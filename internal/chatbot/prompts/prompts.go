// Package prompts renders the system prompts for each LLM task from
// embedded templates, with per-group/per-model overrides from the template
// store.
package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/ragbot-core-v1/server/internal/chatbot/tools"
)

// TaskType identifies the LLM task a template belongs to.
type TaskType string

const (
	TaskChat      TaskType = "chat"
	TaskRAG       TaskType = "rag"
	TaskRewrite   TaskType = "conversation_summary"
	TaskAgentPlan TaskType = "tool_calling"
)

//go:embed template/chat_prompt.txt
var chatSystemPrompt string

//go:embed template/rag_prompt.txt
var ragSystemPrompt string

//go:embed template/rewrite_prompt.txt
var rewriteSystemPrompt string

//go:embed template/agent_prompt.txt
var agentSystemPrompt string

var embeddedDefaults = map[TaskType]string{
	TaskChat:      chatSystemPrompt,
	TaskRAG:       ragSystemPrompt,
	TaskRewrite:   rewriteSystemPrompt,
	TaskAgentPlan: agentSystemPrompt,
}

// Store resolves prompt templates by group and model id, falling back to
// the embedded defaults. Overrides are installed once at construction and
// read-only afterwards.
type Store struct {
	overrides map[string]map[TaskType]string
}

func NewStore() *Store {
	return &Store{overrides: map[string]map[TaskType]string{}}
}

// SetOverrides installs the template overrides for one (group, model id)
// pair.
func (s *Store) SetOverrides(group, modelID string, tpls map[TaskType]string) {
	s.overrides[group+"/"+modelID] = tpls
}

// Get returns the template mapping by task type for the group and model id.
func (s *Store) Get(group, modelID string) map[TaskType]string {
	merged := map[TaskType]string{}
	for k, v := range embeddedDefaults {
		merged[k] = v
	}
	for k, v := range s.overrides[group+"/"+modelID] {
		merged[k] = v
	}
	return merged
}

// Render formats one task template with the given variables through the
// eino prompt component, which also emits prompt callbacks.
func (s *Store) Render(ctx context.Context, group, modelID string, task TaskType, vars map[string]any) (string, error) {
	tplText, ok := s.Get(group, modelID)[task]
	if !ok {
		return "", fmt.Errorf("no prompt template for task %q", task)
	}
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(tplText),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", task, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("render %s prompt: empty result", task)
	}
	return msgs[0].Content, nil
}

// ChatVars builds the variables for the chat template.
func ChatVars(group string) map[string]any {
	return map[string]any{"GroupName": group}
}

// RAGVars builds the variables for the RAG template, numbering the context
// passages.
func RAGVars(group string, contexts []string) map[string]any {
	var b strings.Builder
	for i, c := range contexts {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c)
	}
	return map[string]any{
		"GroupName": group,
		"Contexts":  b.String(),
	}
}

// AgentVars builds the variables for the planning template.
func AgentVars(group, intentType string, toolNames []string) map[string]any {
	return map[string]any{
		"GroupName":  group,
		"IntentType": intentType,
		"ToolNames":  strings.Join(toolNames, ", "),
		"FinalTool":  tools.NameGiveFinalResponse,
	}
}
