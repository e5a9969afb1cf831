package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/chatbot/workspace"
)

func threshold(v float64) *float64 { return &v }

func chainState(wsIDs ...string) *model.ConversationState {
	cfg := &model.ChatbotConfig{}
	cfg.RAG.Retriever.WorkspaceIDs = wsIDs
	cfg.RAG.Retriever.QQ = model.QQConfig{MatchThreshold: threshold(0.8), TopK: 5}
	cfg.RAG.Retriever.QD = model.QDConfig{RetrieverTopK: 10, RerankerTopK: 5, MatchThreshold: threshold(0.5)}
	return &model.ConversationState{Config: cfg}
}

func demoChain() (*Chain, *MemoryService) {
	store := workspace.NewMemoryStore(
		model.Workspace{ID: "ws-qq", IndexType: model.IndexTypeQQ},
		model.Workspace{ID: "ws-qd", IndexType: model.IndexTypeQD},
	)
	svc := NewMemoryService()
	return &Chain{Workspaces: store, Service: svc}, svc
}

func TestChainMatchQQFiltersByThreshold(t *testing.T) {
	chain, svc := demoChain()
	svc.Seed("ws-qq",
		model.RetrievalResult{Content: "how do i reset my password", DocMetadata: map[string]any{"answer": "use settings"}},
		model.RetrievalResult{Content: "completely unrelated question about nothing"},
	)

	matches, err := chain.MatchQQ(context.Background(), chainState("ws-qq", "ws-qd"), "how do i reset my password")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "use settings", matches[0].Answer())
}

func TestChainRetrieveQDIgnoresQQWorkspaces(t *testing.T) {
	chain, svc := demoChain()
	svc.Seed("ws-qq", model.RetrievalResult{Content: "bucket versioning lifecycle replication"})
	svc.Seed("ws-qd", model.RetrievalResult{Content: "bucket versioning lifecycle replication"})

	results, err := chain.RetrieveQD(context.Background(), chainState("ws-qq", "ws-qd"), "bucket versioning lifecycle replication")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ws-qd", results[0].WorkspaceID)
}

func TestChainSkipsUnknownWorkspaces(t *testing.T) {
	chain, svc := demoChain()
	svc.Seed("ws-qd", model.RetrievalResult{Content: "bucket versioning lifecycle replication"})

	results, err := chain.RetrieveQD(context.Background(), chainState("ws-qd", "ws-missing"), "bucket versioning lifecycle replication")
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestChainRetrieveQDEmptyWhenNothingSurvives(t *testing.T) {
	chain, svc := demoChain()
	svc.Seed("ws-qd", model.RetrievalResult{Content: "totally different topic"})

	results, err := chain.RetrieveQD(context.Background(), chainState("ws-qd"), "bucket versioning")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChainCounterDefaultsToWords(t *testing.T) {
	chain := &Chain{}
	assert.Equal(t, 2, chain.Counter().Count("two words"))
}
