package intent

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
)

// MemoryIndex is an in-process Index keyed by tenant. Similarity is token
// overlap between query and example question; good enough for local runs
// and deterministic tests, not a substitute for the real vector index.
type MemoryIndex struct {
	mu      sync.RWMutex
	tenants map[string][]model.IntentExample
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{tenants: map[string][]model.IntentExample{}}
}

func (m *MemoryIndex) Exists(_ context.Context, tenant string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tenants[tenant]
	return ok, nil
}

func (m *MemoryIndex) Ingest(_ context.Context, tenant string, examples []model.IntentExample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]model.IntentExample, len(examples))
	copy(stored, examples)
	m.tenants[tenant] = stored
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, tenant string, query string, topK int) ([]model.IntentExample, error) {
	m.mu.RLock()
	examples := m.tenants[tenant]
	m.mu.RUnlock()

	scored := make([]model.IntentExample, len(examples))
	copy(scored, examples)
	for i := range scored {
		scored[i].Score = overlap(query, scored[i].Question)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if topK > 0 && topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}

func overlap(query, question string) float64 {
	qTokens := strings.Fields(strings.ToLower(query))
	if len(qTokens) == 0 {
		return 0
	}
	ref := map[string]bool{}
	for _, t := range strings.Fields(strings.ToLower(question)) {
		ref[t] = true
	}
	hits := 0
	for _, t := range qTokens {
		if ref[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(qTokens))
}

var _ Index = (*MemoryIndex)(nil)
