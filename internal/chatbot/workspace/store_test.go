package workspace

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/core/errx"
)

func testRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "tenant-a"), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, mr := testRedisStore(t)
	ctx := context.Background()

	want := model.Workspace{ID: "ws-1", IndexType: model.IndexTypeQD, EmbeddingEndpoint: "http://embed"}
	require.NoError(t, store.Put(ctx, want))
	assert.True(t, mr.Exists("tenant-a:workspace:ws-1"))

	got, err := store.Get(ctx, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestRedisStoreNotFound(t *testing.T) {
	store, _ := testRedisStore(t)
	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrWorkspaceNotFound))
}

func TestMemoryStoreNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrWorkspaceNotFound))
}

func TestResolveSkipsUnknownIDs(t *testing.T) {
	store := NewMemoryStore(
		model.Workspace{ID: "ws-1", IndexType: model.IndexTypeQQ},
		model.Workspace{ID: "ws-2", IndexType: model.IndexTypeQD},
	)

	got, err := Resolve(context.Background(), store, []string{"ws-1", "ws-missing", "ws-2"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ws-1", got[0].ID)
	assert.Equal(t, "ws-2", got[1].ID)
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (*model.Workspace, error) {
	return nil, errors.New("backend down")
}

func TestResolvePropagatesBackendErrors(t *testing.T) {
	_, err := Resolve(context.Background(), brokenStore{}, []string{"ws-1"})
	require.Error(t, err)
}
