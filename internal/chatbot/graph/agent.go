package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
)

// agentRunnable is the compiled plan/evaluate loop nested inside the agent
// node. One invocation covers planning rounds until either a tool call
// validates or the recursion bound stops the retries.
type agentRunnable = compose.Runnable[*model.ConversationState, *model.ConversationState]

// buildAgentLoop compiles the nested loop: plan_and_generate feeds
// results_evaluation, and evaluation loops back on recoverable parsing
// failures while the bound allows.
func buildAgentLoop(ctx context.Context, nodes *nodeSet, maxRecursion int) (agentRunnable, error) {
	g := compose.NewGraph[*model.ConversationState, *model.ConversationState]()

	g.AddLambdaNode(NodePlanAndGenerate, compose.InvokableLambda(nodes.planAndGenerate))
	g.AddLambdaNode(NodeResultsEvaluation, compose.InvokableLambda(nodes.resultsEvaluation))

	g.AddEdge(compose.START, NodePlanAndGenerate)
	g.AddEdge(NodePlanAndGenerate, NodeResultsEvaluation)

	replanBranch := compose.NewGraphBranch(evaluationRoute, map[string]bool{
		NodePlanAndGenerate: true,
		compose.END:         true,
	})
	if err := g.AddBranch(NodeResultsEvaluation, replanBranch); err != nil {
		return nil, fmt.Errorf("error adding replan branch: %w", err)
	}

	maxSteps := 2*maxRecursion + 6
	if maxSteps < 16 {
		maxSteps = 16
	}
	runnable, err := g.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		return nil, fmt.Errorf("error compiling agent loop: %w", err)
	}
	return runnable, nil
}

// evaluationRoute replans after a recoverable parsing failure while the
// recursion bound allows; any other outcome leaves the loop.
func evaluationRoute(_ context.Context, s *model.ConversationState) (string, error) {
	if !s.ToolCallingOK && s.RecursionValid() {
		return NodePlanAndGenerate, nil
	}
	return compose.END, nil
}
