// Package workspace resolves tenant retrieval workspaces by id. Lookups are
// read-only during a turn.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/core/errx"
	logx "github.com/ragbot-core-v1/server/pkg/logger"
	pkgredis "github.com/ragbot-core-v1/server/pkg/redis"
)

// Store looks up workspace configuration by id.
type Store interface {
	Get(ctx context.Context, id string) (*model.Workspace, error)
}

// Resolve maps the configured workspace ids to workspaces. Unknown ids are
// skipped with a warning; the turn continues with the remaining workspaces.
func Resolve(ctx context.Context, store Store, ids []string) ([]model.Workspace, error) {
	workspaces := make([]model.Workspace, 0, len(ids))
	for _, id := range ids {
		ws, err := store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, errx.ErrWorkspaceNotFound) {
				logx.Warn().Str("workspace_id", id).Msg("workspace not found, skipping")
				continue
			}
			return nil, err
		}
		workspaces = append(workspaces, *ws)
	}
	return workspaces, nil
}

// RedisStore keeps each workspace as a JSON value under the service
// keyspace.
type RedisStore struct {
	rdb redis.Cmdable
	ks  pkgredis.Keyspace
}

func NewRedisStore(rdb redis.Cmdable, ks pkgredis.Keyspace) *RedisStore {
	return &RedisStore{rdb: rdb, ks: ks}
}

func (s *RedisStore) key(id string) string {
	return s.ks.Key("workspace", id)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Workspace, error) {
	raw, err := s.rdb.Get(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", errx.ErrWorkspaceNotFound, id)
		}
		return nil, errx.WrapRedis(err)
	}
	var ws model.Workspace
	if err := json.Unmarshal([]byte(raw), &ws); err != nil {
		return nil, fmt.Errorf("unmarshal workspace %s: %w", id, err)
	}
	if ws.ID == "" {
		ws.ID = id
	}
	return &ws, nil
}

// Put stores a workspace; used by provisioning and tests.
func (s *RedisStore) Put(ctx context.Context, ws model.Workspace) error {
	b, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("marshal workspace %s: %w", ws.ID, err)
	}
	if err := s.rdb.Set(ctx, s.key(ws.ID), b, 0).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

// MemoryStore is an in-process Store for local runs and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	workspaces map[string]model.Workspace
}

func NewMemoryStore(workspaces ...model.Workspace) *MemoryStore {
	m := &MemoryStore{workspaces: map[string]model.Workspace{}}
	for _, ws := range workspaces {
		m.workspaces[ws.ID] = ws
	}
	return m
}

func (m *MemoryStore) Get(_ context.Context, id string) (*model.Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errx.ErrWorkspaceNotFound, id)
	}
	return &ws, nil
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
