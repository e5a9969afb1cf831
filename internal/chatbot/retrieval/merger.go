package retrieval

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/core/errx"
	logx "github.com/ragbot-core-v1/server/pkg/logger"
)

// Service is the per-workspace retriever collaborator. Implementations call
// the vector/search backend for one workspace and return a ranked list.
type Service interface {
	Retrieve(ctx context.Context, query string, ws model.Workspace, topK int) ([]model.RetrievalResult, error)
}

// Merger merges ranked result lists from multiple workspaces into one
// ordered sequence. Relative order within each workspace list is preserved
// and lists are concatenated in workspace order, so duplicate-score ties
// resolve to source order. No deduplication happens across workspaces:
// content-identical results from distinct workspaces are all kept.
type Merger struct {
	svc        Service
	workspaces []model.Workspace
	topK       int
}

// NewMerger builds a merger over the given workspaces. An empty workspace
// list is valid and yields empty merges.
func NewMerger(svc Service, workspaces []model.Workspace, topK int) *Merger {
	return &Merger{svc: svc, workspaces: workspaces, topK: topK}
}

// Merge fans the query out to every workspace retriever concurrently and
// joins the lists in workspace order. Any retriever failure fails the whole
// merge; callers decide whether to degrade.
func (m *Merger) Merge(ctx context.Context, query string) ([]model.RetrievalResult, error) {
	if len(m.workspaces) == 0 {
		return []model.RetrievalResult{}, nil
	}

	lists := make([][]model.RetrievalResult, len(m.workspaces))
	g, gctx := errgroup.WithContext(ctx)
	for i, ws := range m.workspaces {
		g.Go(func() error {
			results, err := m.svc.Retrieve(gctx, query, ws, m.topK)
			if err != nil {
				logx.Error().Err(err).Str("workspace_id", ws.ID).Msg("workspace retrieval failed")
				return errx.Upstream("retriever", err)
			}
			lists[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, l := range lists {
		total += len(l)
	}
	merged := make([]model.RetrievalResult, 0, total)
	for _, l := range lists {
		merged = append(merged, l...)
	}
	return merged, nil
}

// SplitWorkspaces partitions workspaces by index type, preserving order.
func SplitWorkspaces(workspaces []model.Workspace) (qq, qd []model.Workspace) {
	for _, ws := range workspaces {
		switch ws.IndexType {
		case model.IndexTypeQQ:
			qq = append(qq, ws)
		default:
			qd = append(qd, ws)
		}
	}
	return qq, qd
}
