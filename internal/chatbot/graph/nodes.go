package graph

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ragbot-core-v1/server/internal/chatbot/intent"
	"github.com/ragbot-core-v1/server/internal/chatbot/llm"
	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/chatbot/notify"
	"github.com/ragbot-core-v1/server/internal/chatbot/parsers"
	"github.com/ragbot-core-v1/server/internal/chatbot/prompts"
	"github.com/ragbot-core-v1/server/internal/chatbot/retrieval"
	"github.com/ragbot-core-v1/server/internal/chatbot/tools"
	"github.com/ragbot-core-v1/server/internal/core/errx"
	logx "github.com/ragbot-core-v1/server/pkg/logger"
)

// Node names of the conversation graph and the nested agent loop.
const (
	NodeQueryPreprocess    = "query_preprocess"
	NodeLLMDirectGen       = "llm_direct_generation"
	NodeKnowledgeRetrieve  = "knowledge_retrieve"
	NodeLLMRAGGen          = "llm_rag_generation"
	NodeIntentionDetection = "intention_detection"
	NodeMatchedQueryReturn = "matched_query_return"
	NodeFastReply          = "fast_reply"
	NodeAgent              = "agent"
	NodeToolsExecution     = "tools_execution"
	NodeFinalResults       = "final_results_preparation"

	NodePlanAndGenerate   = "plan_and_generate"
	NodeResultsEvaluation = "results_evaluation"
)

// IntentDetector classifies a query for a tenant; *intent.Gate is the
// production implementation.
type IntentDetector interface {
	Detect(ctx context.Context, tenant, query string) (*intent.Detection, error)
}

// Preprocessor runs the query preparation stage over a turn state;
// *preprocess.Preprocessor is the production implementation.
type Preprocessor interface {
	Process(ctx context.Context, s *model.ConversationState) error
}

// nodeSet carries the collaborators every node closure needs. One nodeSet
// backs one compiled graph; all per-turn data lives on the state.
type nodeSet struct {
	preprocessor   Preprocessor
	intent         IntentDetector
	chain          *retrieval.Chain
	generator      llm.Generator
	planner        llm.Planner
	plannerModelID string
	registry       *tools.Registry
	notifier       notify.Notifier

	agentLoop agentRunnable
}

func (n *nodeSet) queryPreprocess(ctx context.Context, s *model.ConversationState) (*model.ConversationState, error) {
	if err := n.preprocessor.Process(ctx, s); err != nil {
		return nil, err
	}
	s.MergeDebug(map[string]any{"query_preprocess": map[string]any{
		"rewritten_query": s.RewrittenQuery,
		"query_lang":      s.QueryLang,
		"is_api_query":    s.IsAPIQuery,
		"service_names":   s.ServiceNames,
	}})
	s.AppendTrace(fmt.Sprintf("query_preprocess: lang=%s rewritten=%q", s.QueryLang, s.RewrittenQuery))
	return s, nil
}

// intentionDetection runs the intent gate and the question-question match
// concurrently; both consume the rewritten query and either failing fails
// the turn.
func (n *nodeSet) intentionDetection(ctx context.Context, s *model.ConversationState) (*model.ConversationState, error) {
	var (
		det     *intent.Detection
		matches []model.RetrievalResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		det, err = n.intent.Detect(gctx, s.Config.GroupName, s.EffectiveQuery())
		return err
	})
	g.Go(func() error {
		var err error
		matches, err = n.chain.MatchQQ(gctx, s, s.EffectiveQuery())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.IntentType = det.IntentType
	s.IntentTools = det.Tools
	s.IntentExamples = det.Examples
	s.QQMatches = matches

	s.MergeDebug(map[string]any{"intention_detection": map[string]any{
		"intent_type":    s.IntentType,
		"intent_tools":   s.IntentTools,
		"qq_match_count": len(matches),
	}})
	s.AppendTrace(fmt.Sprintf("intention_detection: intent=%s qq_matches=%d", s.IntentType, len(matches)))
	return s, nil
}

// matchedQueryReturn answers with the stored answer of the best
// question-question match, verbatim. No generation runs; sources and
// contexts stay empty.
func (n *nodeSet) matchedQueryReturn(_ context.Context, s *model.ConversationState) (*model.ConversationState, error) {
	best := s.QQMatches[0]
	for _, m := range s.QQMatches[1:] {
		if m.Score > best.Score {
			best = m
		}
	}
	s.Answer = best.Answer()
	s.SetContexts([]string{}, []string{})
	s.MergeDebug(map[string]any{"matched_query": map[string]any{
		"question":     best.Content,
		"score":        best.Score,
		"workspace_id": best.WorkspaceID,
	}})
	s.AppendTrace(fmt.Sprintf("matched_query_return: score=%.3f", best.Score))
	return s, nil
}

// knowledgeRetrieve runs the question-document pipeline and truncates the
// survivors to the generation token budget. An empty outcome routes to the
// fast reply downstream.
func (n *nodeSet) knowledgeRetrieve(ctx context.Context, s *model.ConversationState) (*model.ConversationState, error) {
	results, err := n.chain.RetrieveQD(ctx, s, s.EffectiveQuery())
	if err != nil {
		return nil, err
	}
	kept := retrieval.TruncateContexts(results, s.Config.RAG.ContextTokenBudget, n.chain.Counter())
	contexts, sources := retrieval.ContextsAndSources(kept)
	s.SetContexts(contexts, sources)
	s.MergeDebug(map[string]any{"knowledge_retrieve": map[string]any{
		"filtered_count": len(results),
		"kept_count":     len(kept),
	}})
	s.AppendTrace(fmt.Sprintf("knowledge_retrieve: filtered=%d kept=%d", len(results), len(kept)))
	return s, nil
}

func (n *nodeSet) llmDirectGeneration(ctx context.Context, s *model.ConversationState) (*model.ConversationState, error) {
	if err := n.generate(ctx, s, prompts.TaskChat, s.Config.Chat, nil); err != nil {
		return nil, err
	}
	s.AppendTrace("llm_direct_generation: done")
	return s, nil
}

func (n *nodeSet) llmRAGGeneration(ctx context.Context, s *model.ConversationState) (*model.ConversationState, error) {
	if err := n.generate(ctx, s, prompts.TaskRAG, s.Config.RAG.LLM, s.Contexts); err != nil {
		return nil, err
	}
	s.AppendTrace("llm_rag_generation: done")
	return s, nil
}

// fastReply answers with the configured refusal. Contexts and sources are
// cleared: a low-confidence retrieval result is never surfaced.
func (n *nodeSet) fastReply(_ context.Context, s *model.ConversationState) (*model.ConversationState, error) {
	s.Answer = s.Config.FastReply
	s.SetContexts([]string{}, []string{})
	s.MergeDebug(map[string]any{"fast_reply": true})
	s.AppendTrace("fast_reply: returned configured refusal")
	return s, nil
}

// agent is the planning entry. It short-circuits when the previous tool ran
// in once mode, skips planning entirely when there is nothing to plan with
// (no intent, terminal tool already ran, or the recursion bound is hit), and
// otherwise runs one pass of the nested plan/evaluate loop.
func (n *nodeSet) agent(ctx context.Context, s *model.ConversationState) (*model.ConversationState, error) {
	if last := s.LastAgentRecord(); last != nil && len(last.ToolResults) > 0 {
		tr := last.ToolResults[len(last.ToolResults)-1]
		if tr.Name != tools.NameGiveFinalResponse {
			if d, err := n.registry.Get(tr.Name); err == nil && d.Mode == model.RunOnce {
				s.Answer = tr.Output["result"]
				s.ToolCallingOnce = true
				s.AppendTrace(fmt.Sprintf("agent: once-mode tool %s answered directly", tr.Name))
				return s, nil
			}
		}
	}

	if skip, reason := n.skipPlanning(s); skip {
		s.ToolCallingOK = false
		s.SetToolCalls(nil)
		s.MergeDebug(map[string]any{"agent_planning_skipped": reason})
		s.AppendTrace("agent: planning skipped, " + reason)
		return s, nil
	}

	out, err := n.agentLoop.Invoke(ctx, s)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// skipPlanning decides whether the agent has anything left to plan. All
// three cases degrade to the plain retrieval-and-generate path.
func (n *nodeSet) skipPlanning(s *model.ConversationState) (bool, string) {
	if s.IntentType == "" {
		return true, "no intent detected"
	}
	if last := s.LastAgentRecord(); last != nil && len(last.ToolResults) > 0 &&
		last.ToolResults[len(last.ToolResults)-1].Name == tools.NameGiveFinalResponse {
		return true, "terminal tool already ran"
	}
	if !s.RecursionValid() {
		return true, fmt.Sprintf("recursion bound hit (%d/%d)", s.RecursionCount, s.RecursionLimit)
	}
	return false, ""
}

// planAndGenerate runs one planning round. The round is counted before the
// model call so a failing round still consumes recursion budget.
func (n *nodeSet) planAndGenerate(ctx context.Context, s *model.ConversationState) (*model.ConversationState, error) {
	s.RecursionCount++
	s.ToolCallingOK = false
	out, err := n.planner.Plan(ctx, s)
	if err != nil {
		return nil, err
	}
	s.CurrentAgentOutput = out
	s.AppendTrace(fmt.Sprintf("plan_and_generate: round %d/%d", s.RecursionCount, s.RecursionLimit))
	return s, nil
}

// resultsEvaluation validates the planner output into exactly one tool
// call. Parsing failures are recoverable: they become synthetic agent turns
// and the loop replans while the recursion bound allows.
func (n *nodeSet) resultsEvaluation(_ context.Context, s *model.ConversationState) (*model.ConversationState, error) {
	calls, err := parsers.ParseToolCalling(s.CurrentAgentOutput, n.registry, n.plannerModelID)
	if err != nil {
		if !errx.IsToolParsing(err) {
			return nil, err
		}
		logx.Warn().Err(err).Int("round", s.RecursionCount).Msg("tool call parsing failed")
		s.ToolCallingOK = false
		s.SetToolCalls(nil)
		s.AppendAgentRecord(parsers.FailureRecords(s.CurrentAgentOutput, err)...)
		s.AppendTrace(fmt.Sprintf("results_evaluation: parse failed (%v)", err))
		return s, nil
	}

	s.ToolCallingOK = true
	s.SetToolCalls(calls)
	s.AppendAgentRecord(model.AgentRecord{Message: s.CurrentAgentOutput})
	// the first successfully parsed tool name is kept for the whole turn
	if _, ok := s.ExtraResponse["current_agent_intent_type"]; !ok {
		s.MergeExtraResponse(map[string]any{"current_agent_intent_type": calls[0].Name})
	}
	s.AppendTrace("results_evaluation: tool " + calls[0].Name)
	return s, nil
}

// toolsExecution runs the single validated tool call and attaches its
// result to the agent history for the next planning round.
func (n *nodeSet) toolsExecution(ctx context.Context, s *model.ConversationState) (*model.ConversationState, error) {
	if len(s.CurrentToolCalls) != 1 {
		return nil, fmt.Errorf("tools_execution expects exactly one pending call, got %d", len(s.CurrentToolCalls))
	}
	call := s.CurrentToolCalls[0]
	result, err := n.registry.Execute(ctx, s, call)
	if err != nil {
		return nil, err
	}
	s.AttachToolResults(result)
	s.SetToolCalls(nil)
	s.AppendTrace("tools_execution: ran " + call.Name)
	return s, nil
}

// finalResults assembles the response side of the state and emits the
// context event on the real-time channel.
func (n *nodeSet) finalResults(_ context.Context, s *model.ConversationState) (*model.ConversationState, error) {
	if s.Answer == nil {
		s.Answer = ""
	}
	if s.Contexts == nil {
		s.SetContexts([]string{}, []string{})
	}
	if s.Config.EnableTrace && len(s.TraceInfos) > 0 {
		s.MergeDebug(map[string]any{"trace_infos": append([]string(nil), s.TraceInfos...)})
	}
	if n.notifier != nil {
		n.notifier.Send(notify.Event{
			Type:         notify.EventContext,
			ConnectionID: s.WSConnectionID,
			MessageID:    s.MessageID,
			Contexts:     s.Contexts,
			Sources:      s.Sources,
		})
	}
	return s, nil
}

func (n *nodeSet) generate(ctx context.Context, s *model.ConversationState, task prompts.TaskType, llmCfg model.LLMConfig, contexts []string) error {
	out, err := n.generator.Generate(ctx, llm.GenerateInput{
		Task:        task,
		Group:       s.Config.GroupName,
		LLM:         llmCfg,
		Query:       s.EffectiveQuery(),
		Contexts:    contexts,
		ChatHistory: s.ChatHistory,
		Stream:      s.Stream,
		MessageID:   s.MessageID,
	})
	if err != nil {
		return err
	}
	s.Answer = out.Answer
	if out.Raw != nil {
		if uc, ok := out.Raw.Extra["usage_cost"]; ok {
			s.MergeDebug(map[string]any{"usage_cost": uc})
		}
	}
	return nil
}
