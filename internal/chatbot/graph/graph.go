// Package graph composes the conversation orchestration graph: query
// preprocessing, mode routing, the retrieval and generation chains, the
// intent gate and the bounded agent loop.
package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/ragbot-core-v1/server/internal/chatbot/graph/observers"
	"github.com/ragbot-core-v1/server/internal/chatbot/llm"
	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/chatbot/notify"
	"github.com/ragbot-core-v1/server/internal/chatbot/retrieval"
	"github.com/ragbot-core-v1/server/internal/chatbot/tools"
	"github.com/ragbot-core-v1/server/internal/core/errx"
	logx "github.com/ragbot-core-v1/server/pkg/logger"
)

// DefaultMaxRecursionLimit caps the per-turn agent recursion limit so the
// compiled step budget always covers the loop.
const DefaultMaxRecursionLimit = 10

// Runner executes the compiled conversation graph over one turn state.
type Runner interface {
	Invoke(ctx context.Context, s *model.ConversationState) (*model.ConversationState, error)
}

// Config holds the collaborators needed to build the graph.
type Config struct {
	Preprocessor   Preprocessor
	Intent         IntentDetector
	Chain          *retrieval.Chain
	Generator      llm.Generator
	Planner        llm.Planner
	PlannerModelID string
	Registry       *tools.Registry
	Notifier       notify.Notifier

	// MaxRecursionLimit bounds what any per-turn config may request.
	// Zero means DefaultMaxRecursionLimit.
	MaxRecursionLimit int
}

// GraphBuilder constructs the conversation graph node by node.
type GraphBuilder struct {
	nodes        *nodeSet
	graph        *compose.Graph[*model.ConversationState, *model.ConversationState]
	maxRecursion int
}

type graphRunner struct {
	runnable compose.Runnable[*model.ConversationState, *model.ConversationState]
}

func (r *graphRunner) Invoke(ctx context.Context, s *model.ConversationState) (*model.ConversationState, error) {
	return r.runnable.Invoke(ctx, s, compose.WithCallbacks(observers.NewAllCallbacks()))
}

// BuildConversationGraph validates the collaborators, compiles the nested
// agent loop and then the outer graph, and returns a Runner.
func BuildConversationGraph(ctx context.Context, cfg *Config) (Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if cfg.Preprocessor == nil || cfg.Intent == nil || cfg.Chain == nil {
		return nil, fmt.Errorf("preprocess/intent/retrieval collaborators are not initialized")
	}
	if cfg.Generator == nil || cfg.Planner == nil || cfg.Registry == nil {
		return nil, fmt.Errorf("model collaborators are not initialized")
	}

	maxRecursion := cfg.MaxRecursionLimit
	if maxRecursion <= 0 {
		maxRecursion = DefaultMaxRecursionLimit
	}

	nodes := &nodeSet{
		preprocessor:   cfg.Preprocessor,
		intent:         cfg.Intent,
		chain:          cfg.Chain,
		generator:      cfg.Generator,
		planner:        cfg.Planner,
		plannerModelID: cfg.PlannerModelID,
		registry:       cfg.Registry,
		notifier:       cfg.Notifier,
	}

	agentLoop, err := buildAgentLoop(ctx, nodes, maxRecursion)
	if err != nil {
		return nil, err
	}
	nodes.agentLoop = agentLoop

	builder := &GraphBuilder{
		nodes:        nodes,
		graph:        compose.NewGraph[*model.ConversationState, *model.ConversationState](),
		maxRecursion: maxRecursion,
	}

	builder.addNodes()
	builder.addEdges()
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	runnable, err := builder.compile(ctx)
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("conversation graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// addNodes adds all processing nodes to the graph.
func (b *GraphBuilder) addNodes() {
	n := b.nodes
	b.graph.AddLambdaNode(NodeQueryPreprocess, compose.InvokableLambda(n.queryPreprocess))
	b.graph.AddLambdaNode(NodeLLMDirectGen, compose.InvokableLambda(n.llmDirectGeneration))
	b.graph.AddLambdaNode(NodeKnowledgeRetrieve, compose.InvokableLambda(n.knowledgeRetrieve))
	b.graph.AddLambdaNode(NodeLLMRAGGen, compose.InvokableLambda(n.llmRAGGeneration))
	b.graph.AddLambdaNode(NodeIntentionDetection, compose.InvokableLambda(n.intentionDetection))
	b.graph.AddLambdaNode(NodeMatchedQueryReturn, compose.InvokableLambda(n.matchedQueryReturn))
	b.graph.AddLambdaNode(NodeFastReply, compose.InvokableLambda(n.fastReply))
	b.graph.AddLambdaNode(NodeAgent, compose.InvokableLambda(n.agent))
	b.graph.AddLambdaNode(NodeToolsExecution, compose.InvokableLambda(n.toolsExecution))
	b.graph.AddLambdaNode(NodeFinalResults, compose.InvokableLambda(n.finalResults))
}

// addEdges creates the unconditional flow connections.
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, NodeQueryPreprocess},
		{NodeLLMDirectGen, NodeFinalResults},
		{NodeLLMRAGGen, NodeFinalResults},
		{NodeMatchedQueryReturn, NodeFinalResults},
		{NodeFastReply, NodeFinalResults},
		{NodeToolsExecution, NodeAgent},
		{NodeFinalResults, compose.END},
	}
	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates the conditional routing branches.
func (b *GraphBuilder) addBranches() error {
	modeBranch := compose.NewGraphBranch(modeRoute, map[string]bool{
		NodeLLMDirectGen:       true,
		NodeKnowledgeRetrieve:  true,
		NodeIntentionDetection: true,
	})
	if err := b.graph.AddBranch(NodeQueryPreprocess, modeBranch); err != nil {
		return fmt.Errorf("error adding mode branch: %w", err)
	}

	knowledgeBranch := compose.NewGraphBranch(knowledgeRoute, map[string]bool{
		NodeLLMRAGGen: true,
		NodeFastReply: true,
	})
	if err := b.graph.AddBranch(NodeKnowledgeRetrieve, knowledgeBranch); err != nil {
		return fmt.Errorf("error adding knowledge branch: %w", err)
	}

	intentBranch := compose.NewGraphBranch(intentRoute, map[string]bool{
		NodeMatchedQueryReturn: true,
		NodeFastReply:          true,
		NodeAgent:              true,
	})
	if err := b.graph.AddBranch(NodeIntentionDetection, intentBranch); err != nil {
		return fmt.Errorf("error adding intent branch: %w", err)
	}

	agentBranch := compose.NewGraphBranch(agentRoute, map[string]bool{
		NodeFinalResults:      true,
		NodeToolsExecution:    true,
		NodeKnowledgeRetrieve: true,
	})
	if err := b.graph.AddBranch(NodeAgent, agentBranch); err != nil {
		return fmt.Errorf("error adding agent branch: %w", err)
	}

	return nil
}

// compile finalizes the graph with a step budget covering the worst-case
// agent cycling.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[*model.ConversationState, *model.ConversationState], error) {
	maxSteps := 12 + 4*b.maxRecursion
	if maxSteps < 24 {
		maxSteps = 24
	}
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		return nil, fmt.Errorf("error compiling conversation graph: %w", err)
	}
	return runnable, nil
}

// modeRoute dispatches on the configured chatbot mode. An unknown mode is a
// configuration error, never a silent default.
func modeRoute(_ context.Context, s *model.ConversationState) (string, error) {
	switch s.Config.ChatbotMode {
	case model.ModeChat:
		return NodeLLMDirectGen, nil
	case model.ModeRAG:
		return NodeKnowledgeRetrieve, nil
	case model.ModeAgent:
		return NodeIntentionDetection, nil
	default:
		return "", errx.Configuration(fmt.Sprintf("unknown chatbot_mode %q", s.Config.ChatbotMode))
	}
}

// knowledgeRoute sends empty retrieval outcomes to the fast reply instead
// of generating from nothing.
func knowledgeRoute(_ context.Context, s *model.ConversationState) (string, error) {
	if len(s.Contexts) == 0 {
		return NodeFastReply, nil
	}
	return NodeLLMRAGGen, nil
}

// intentRoute prefers a confident question-question match, refuses
// disallowed intents, and otherwise hands over to the agent. A missing
// intent still reaches the agent, which degrades to plain retrieval.
func intentRoute(_ context.Context, s *model.ConversationState) (string, error) {
	if len(s.QQMatches) > 0 {
		return NodeMatchedQueryReturn, nil
	}
	if s.IntentType != "" && !s.Config.IntentAllowed(s.IntentType) {
		return NodeFastReply, nil
	}
	return NodeAgent, nil
}

// agentRoute leaves the loop once an answer exists, executes a validated
// tool call, and degrades everything else to the plain retrieval path.
func agentRoute(_ context.Context, s *model.ConversationState) (string, error) {
	if s.ToolCallingOnce || s.Answer != nil {
		return NodeFinalResults, nil
	}
	if s.ToolCallingOK && len(s.CurrentToolCalls) > 0 {
		return NodeToolsExecution, nil
	}
	ev := logx.Info()
	if !s.RecursionValid() {
		ev = ev.AnErr("cause", errx.ErrRecursionExhausted)
	}
	ev.Int("recursion_count", s.RecursionCount).
		Int("recursion_limit", s.RecursionLimit).
		Msg("agent produced no usable plan, degrading to retrieval")
	return NodeKnowledgeRetrieve, nil
}
