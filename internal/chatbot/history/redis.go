// Package history persists conversation turns between requests. The core
// graph only reads the loaded history for a turn and appends the final
// exchange after it; no agent-loop state crosses turns.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/ragbot-core-v1/server/internal/core/errx"
	logx "github.com/ragbot-core-v1/server/pkg/logger"
	pkgredis "github.com/ragbot-core-v1/server/pkg/redis"
)

// Repository stores per-conversation message history.
type Repository interface {
	AddMessage(ctx context.Context, conversationID string, message *schema.Message) error
	LoadHistory(ctx context.Context, conversationID string) ([]*schema.Message, error)
	ClearHistory(ctx context.Context, conversationID string) error
}

// RedisRepository keeps each conversation as a Redis list of JSON-encoded
// messages, with the TTL extended on every touch.
type RedisRepository struct {
	rdb redis.Cmdable
	ks  pkgredis.Keyspace
	ttl time.Duration
}

func NewRedisRepository(rdb redis.Cmdable, ks pkgredis.Keyspace, ttl time.Duration) *RedisRepository {
	return &RedisRepository{rdb: rdb, ks: ks, ttl: ttl}
}

func (r *RedisRepository) key(conversationID string) string {
	return r.ks.Key("conversation", conversationID, "messages")
}

func (r *RedisRepository) AddMessage(ctx context.Context, conversationID string, message *schema.Message) error {
	b, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := r.key(conversationID)

	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push message to redis")
		return errx.WrapRedis(err)
	}
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on conversation key")
		}
	}
	return nil
}

func (r *RedisRepository) LoadHistory(ctx context.Context, conversationID string) ([]*schema.Message, error) {
	key := r.key(conversationID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []*schema.Message{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load conversation history from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]*schema.Message, 0, len(rows))
	for i, s := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

func (r *RedisRepository) ClearHistory(ctx context.Context, conversationID string) error {
	if err := r.rdb.Del(ctx, r.key(conversationID)).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

var _ Repository = (*RedisRepository)(nil)
