package retrieval

import (
	"context"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/chatbot/workspace"
)

// Chain bundles the retrieval collaborators behind the two standard
// pipelines: question-question matching and question-document retrieval.
// Both read their tuning from the turn's chatbot config, so one Chain
// serves every tenant.
type Chain struct {
	Workspaces workspace.Store
	Service    Service
	Scorer     Scorer
	Tokens     TokenCounter
}

// MatchQQ runs the question-question pipeline: merge across the configured
// qq workspaces, then threshold-filter. Anything that survives the filter is
// a verbatim answer candidate.
func (c *Chain) MatchQQ(ctx context.Context, s *model.ConversationState, query string) ([]model.RetrievalResult, error) {
	retr := s.Config.RAG.Retriever
	all, err := workspace.Resolve(ctx, c.Workspaces, retr.WorkspaceIDs)
	if err != nil {
		return nil, err
	}
	qq, _ := SplitWorkspaces(all)
	merged, err := NewMerger(c.Service, qq, retr.QQ.TopK).Merge(ctx, query)
	if err != nil {
		return nil, err
	}
	return Filter(merged, retr.QQ.Threshold()), nil
}

// RetrieveQD runs the question-document pipeline: merge across the
// configured qd workspaces, rerank, then threshold-filter. Token-budget
// truncation is a generation concern and happens at the caller.
func (c *Chain) RetrieveQD(ctx context.Context, s *model.ConversationState, query string) ([]model.RetrievalResult, error) {
	retr := s.Config.RAG.Retriever
	all, err := workspace.Resolve(ctx, c.Workspaces, retr.WorkspaceIDs)
	if err != nil {
		return nil, err
	}
	_, qd := SplitWorkspaces(all)
	merged, err := NewMerger(c.Service, qd, retr.QD.RetrieverTopK).Merge(ctx, query)
	if err != nil {
		return nil, err
	}
	reranked, err := NewReranker(retr.QD, c.Scorer).Rerank(ctx, query, merged, retr.QD.RerankerTopK)
	if err != nil {
		return nil, err
	}
	return Filter(reranked, retr.QD.Threshold()), nil
}

// Counter returns the configured token counter, defaulting to word counting
// so truncation always has something deterministic to work with.
func (c *Chain) Counter() TokenCounter {
	if c.Tokens != nil {
		return c.Tokens
	}
	return WordCounter{}
}
