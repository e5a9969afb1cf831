// Package intent classifies a rewritten query into an intent and the tool
// set that intent permits, backed by a similarity index over ingested
// intent examples.
package intent

import (
	"context"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/core/errx"
	logx "github.com/ragbot-core-v1/server/pkg/logger"
)

// Index is the two-phase protocol over the backing intent index: callers
// check readiness explicitly and ingest before searching, instead of hiding
// the ingest-then-retry inside a branch predicate.
type Index interface {
	// Exists reports whether the index is initialised for the tenant.
	Exists(ctx context.Context, tenant string) (bool, error)
	// Ingest indexes the configured intent examples. Synchronous; search
	// must not run until it returns.
	Ingest(ctx context.Context, tenant string, examples []model.IntentExample) error
	// Search returns the topK nearest examples by embedding similarity, most
	// similar first.
	Search(ctx context.Context, tenant string, query string, topK int) ([]model.IntentExample, error)
}

// Detection is the gate output merged into the turn state.
type Detection struct {
	IntentType string
	Tools      []string
	Examples   []model.IntentExample
}

// Gate runs CHECK_INDEX -> {INGEST_THEN_SEARCH | SEARCH} -> POSTPROCESS.
type Gate struct {
	index    Index
	examples []model.IntentExample
	topK     int
}

// NewGate builds a gate over the index with the examples to ingest when the
// tenant's index is uninitialised.
func NewGate(index Index, examples []model.IntentExample, topK int) *Gate {
	if topK <= 0 {
		topK = model.DefaultIntentTopK
	}
	return &Gate{index: index, examples: examples, topK: topK}
}

// Detect classifies the query. When the backing index is absent the
// configured examples are ingested first; ingestion failure is fatal for
// the turn, never silently skipped. When the index already exists no
// ingestion happens.
func (g *Gate) Detect(ctx context.Context, tenant, query string) (*Detection, error) {
	exists, err := g.index.Exists(ctx, tenant)
	if err != nil {
		return nil, errx.Upstream("intent index", err)
	}
	if !exists {
		logx.Info().Str("tenant", tenant).Msg("intent index absent, ingesting examples before search")
		if err := g.index.Ingest(ctx, tenant, g.examples); err != nil {
			return nil, errx.Upstream("intent index ingest", err)
		}
	}

	examples, err := g.index.Search(ctx, tenant, query, g.topK)
	if err != nil {
		return nil, errx.Upstream("intent index search", err)
	}

	return postprocessTop1(examples), nil
}

// postprocessTop1 applies the top_1 policy: the highest-similarity example's
// intent label wins, ties broken by retrieval order (first returned wins).
// The tool list is the deduplicated set of intents across all returned
// examples, in first-seen order.
func postprocessTop1(examples []model.IntentExample) *Detection {
	det := &Detection{Examples: examples}
	best := -1.0
	seen := map[string]bool{}
	for _, ex := range examples {
		if ex.Score > best {
			best = ex.Score
			det.IntentType = ex.Intent
		}
		if !seen[ex.Intent] {
			seen[ex.Intent] = true
			det.Tools = append(det.Tools, ex.Intent)
		}
	}
	return det
}
