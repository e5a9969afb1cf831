package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
)

// MemoryService is an in-process Service over seeded documents, keyed by
// workspace id. Relevance is token overlap between query and content; good
// enough for local runs and deterministic tests, not a substitute for the
// real vector backend.
type MemoryService struct {
	mu   sync.RWMutex
	docs map[string][]model.RetrievalResult
}

func NewMemoryService() *MemoryService {
	return &MemoryService{docs: map[string][]model.RetrievalResult{}}
}

// Seed adds documents to a workspace. The stored WorkspaceID is forced to
// the seeded workspace.
func (m *MemoryService) Seed(workspaceID string, docs ...model.RetrievalResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		d.WorkspaceID = workspaceID
		m.docs[workspaceID] = append(m.docs[workspaceID], d)
	}
}

func (m *MemoryService) Retrieve(_ context.Context, query string, ws model.Workspace, topK int) ([]model.RetrievalResult, error) {
	m.mu.RLock()
	docs := m.docs[ws.ID]
	m.mu.RUnlock()

	scored := make([]model.RetrievalResult, len(docs))
	copy(scored, docs)
	for i := range scored {
		scored[i].Score = tokenOverlap(query, scored[i].Content)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if topK > 0 && topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}

func tokenOverlap(query, content string) float64 {
	qTokens := strings.Fields(strings.ToLower(query))
	if len(qTokens) == 0 {
		return 0
	}
	ref := map[string]bool{}
	for _, t := range strings.Fields(strings.ToLower(content)) {
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

var _ Service = (*MemoryService)(nil)
