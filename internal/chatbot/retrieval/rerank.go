package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/core/errx"
)

// Reranker reorders merged retrieval results and truncates to topN. The two
// strategies are interchangeable; which one runs is a configuration choice
// (enable_reranker).
type Reranker interface {
	Rerank(ctx context.Context, query string, results []model.RetrievalResult, topN int) ([]model.RetrievalResult, error)
}

// ScoreMergeReranker orders by the scores the retrievers already assigned.
// Cheap, lower precision.
type ScoreMergeReranker struct{}

func (ScoreMergeReranker) Rerank(_ context.Context, _ string, results []model.RetrievalResult, topN int) ([]model.RetrievalResult, error) {
	out := make([]model.RetrievalResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return truncate(out, topN), nil
}

// Scorer is the pairwise relevance collaborator behind the cross-encoder
// strategy: one score per candidate, aligned by index.
type Scorer interface {
	Score(ctx context.Context, query string, candidates []string) ([]float64, error)
}

// CrossEncoderReranker recomputes relevance with a pairwise model between
// the query and each candidate, then sorts and truncates. Slower, higher
// precision.
type CrossEncoderReranker struct {
	Scorer Scorer
}

func (r CrossEncoderReranker) Rerank(ctx context.Context, query string, results []model.RetrievalResult, topN int) ([]model.RetrievalResult, error) {
	if len(results) == 0 {
		return []model.RetrievalResult{}, nil
	}
	candidates := make([]string, len(results))
	for i, res := range results {
		candidates[i] = res.Content
	}
	scores, err := r.Scorer.Score(ctx, query, candidates)
	if err != nil {
		return nil, errx.Upstream("reranker", err)
	}
	if len(scores) != len(results) {
		return nil, errx.Upstream("reranker", fmt.Errorf("got %d scores for %d candidates", len(scores), len(results)))
	}
	out := make([]model.RetrievalResult, len(results))
	copy(out, results)
	for i := range out {
		out[i].Score = scores[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return truncate(out, topN), nil
}

// NewReranker picks the strategy for the given qd configuration.
func NewReranker(cfg model.QDConfig, scorer Scorer) Reranker {
	if cfg.EnableReranker && scorer != nil {
		return CrossEncoderReranker{Scorer: scorer}
	}
	return ScoreMergeReranker{}
}

func truncate(results []model.RetrievalResult, topN int) []model.RetrievalResult {
	if topN <= 0 || topN >= len(results) {
		return results
	}
	return results[:topN]
}
