// Package tools holds the tool registry the agent loop plans against, plus
// the built-in tools supplied with the chatbot.
package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/core/errx"
	logx "github.com/ragbot-core-v1/server/pkg/logger"
)

// RunFunc executes a tool against the current turn state with the parsed
// arguments.
type RunFunc func(ctx context.Context, s *model.ConversationState, kwargs map[string]any) (map[string]any, error)

// Descriptor describes one registered tool: its schema for model binding,
// its running mode, and its implementation.
type Descriptor struct {
	Name     string
	Mode     model.RunningMode
	Info     *schema.ToolInfo
	Required []string // argument names the parser must see
	Run      RunFunc
}

// Registry is the tool lookup used by planning, parsing and execution.
// Populated once at construction; read-only during turns.
type Registry struct {
	order []string
	byKey map[string]*Descriptor
}

func NewRegistry(descriptors ...*Descriptor) *Registry {
	r := &Registry{byKey: map[string]*Descriptor{}}
	for _, d := range descriptors {
		r.Register(d)
	}
	return r
}

// Register adds a descriptor, replacing any previous tool with the same name.
func (r *Registry) Register(d *Descriptor) {
	if _, exists := r.byKey[d.Name]; !exists {
		r.order = append(r.order, d.Name)
	}
	r.byKey[d.Name] = d
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (*Descriptor, error) {
	d, ok := r.byKey[name]
	if !ok {
		return nil, &errx.ToolParsingError{
			Kind:     errx.ErrToolNotExist,
			ToolName: name,
			Detail:   fmt.Sprintf("tool %q is not registered", name),
		}
	}
	return d, nil
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.byKey[name]
	return ok
}

// Infos returns the tool schemas in registration order, for binding to the
// planning model.
func (r *Registry) Infos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		infos = append(infos, r.byKey[name].Info)
	}
	return infos
}

// Execute runs exactly one tool call and returns its structured result
// record. Backend failures are upstream errors, not retried here.
func (r *Registry) Execute(ctx context.Context, s *model.ConversationState, call model.ToolCall) (model.ToolResult, error) {
	d, err := r.Get(call.Name)
	if err != nil {
		return model.ToolResult{}, err
	}
	logx.Debug().Str("tool", call.Name).Msg("executing tool")
	output, err := d.Run(ctx, s, call.Kwargs)
	if err != nil {
		return model.ToolResult{}, errx.Upstream("tool "+call.Name, err)
	}
	return model.ToolResult{Name: call.Name, Kwargs: call.Kwargs, Output: output}, nil
}
