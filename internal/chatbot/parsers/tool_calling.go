// Package parsers turns raw planner output into validated tool calls.
package parsers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/chatbot/tools"
	"github.com/ragbot-core-v1/server/internal/core/errx"
)

// ParseToolCalling validates the planner's message into exactly one tool
// call. Every failure mode is a distinct, recoverable parsing error: the
// loop records it as a synthetic agent turn and replans, up to the
// recursion bound.
func ParseToolCalling(msg *schema.Message, reg *tools.Registry, modelID string) ([]model.ToolCall, error) {
	if msg == nil || len(msg.ToolCalls) == 0 {
		return nil, &errx.ToolParsingError{
			Kind:   errx.ErrToolNotFound,
			Detail: "model output contains no tool call",
		}
	}
	if len(msg.ToolCalls) > 1 {
		names := make([]string, 0, len(msg.ToolCalls))
		for _, tc := range msg.ToolCalls {
			names = append(names, tc.Function.Name)
		}
		return nil, &errx.ToolParsingError{
			Kind:   errx.ErrMultipleToolName,
			Detail: fmt.Sprintf("expected one tool call, got %d: %s", len(msg.ToolCalls), strings.Join(names, ", ")),
		}
	}

	tc := msg.ToolCalls[0]
	name := strings.TrimSpace(tc.Function.Name)
	desc, err := reg.Get(name)
	if err != nil {
		return nil, err
	}

	kwargs := map[string]any{}
	if args := strings.TrimSpace(tc.Function.Arguments); args != "" {
		if err := json.Unmarshal([]byte(args), &kwargs); err != nil {
			return nil, &errx.ToolParsingError{
				Kind:     errx.ErrToolParameterNotExist,
				ToolName: name,
				Detail:   fmt.Sprintf("arguments are not a JSON object: %v", err),
			}
		}
	}
	for _, required := range desc.Required {
		if _, ok := kwargs[required]; !ok {
			return nil, &errx.ToolParsingError{
				Kind:     errx.ErrToolParameterNotExist,
				ToolName: name,
				Detail:   fmt.Sprintf("required parameter %q is missing", required),
			}
		}
	}

	return []model.ToolCall{{Name: name, Kwargs: kwargs, ModelID: modelID}}, nil
}

// FailureRecords synthesizes the agent-history entries for a parse failure:
// the raw planner message followed by a corrective turn describing what
// went wrong, so the next planning round can fix it.
func FailureRecords(raw *schema.Message, err error) []model.AgentRecord {
	records := make([]model.AgentRecord, 0, 2)
	if raw != nil {
		records = append(records, model.AgentRecord{Message: raw})
	}
	records = append(records, model.AgentRecord{
		Message: schema.UserMessage(fmt.Sprintf(
			"Your tool call could not be used: %v. Call exactly one of the available tools with valid JSON arguments.", err)),
	})
	return records
}
