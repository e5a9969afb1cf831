package model

import (
	"github.com/cloudwego/eino/schema"
)

// RunningMode declares how a tool interacts with the agent loop.
type RunningMode string

const (
	// RunOnce tools short-circuit the loop: their output is returned as the
	// answer without another planning round.
	RunOnce RunningMode = "once"
	// RunRepeated tools feed their output back to the planner.
	RunRepeated RunningMode = "repeated"
)

// ToolCall is one parsed, validated tool invocation produced by a planning
// step.
type ToolCall struct {
	Name    string         `json:"name"`
	Kwargs  map[string]any `json:"kwargs"`
	ModelID string         `json:"model_id"`
}

// ToolResult is the structured outcome of executing one tool call.
type ToolResult struct {
	Name   string         `json:"name"`
	Kwargs map[string]any `json:"kwargs"`
	Output map[string]any `json:"output"`
}

// AgentRecord is one agent-turn entry: the raw planner message plus any
// tool results produced from it. Parse failures are recorded as synthetic
// records whose message explains the failure to the next planning round.
type AgentRecord struct {
	Message     *schema.Message `json:"message"`
	ToolResults []ToolResult    `json:"tool_results,omitempty"`
}
