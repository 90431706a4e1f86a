package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/opswatch/internal/infra"
	"go.uber.org/zap"
)

// RedisChannel публикует оповещения в pub/sub канал для внутренних
// подписчиков (дашборды, боты). Нет подписчиков — не наша проблема,
// Publish в пустой канал это no-op.
type RedisChannel struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisChannel(rdb *redis.Client, logger *zap.Logger) *RedisChannel {
	return &RedisChannel{rdb: rdb, logger: logger.Named("redis-feed")}
}

func (c *RedisChannel) Name() string { return "redis" }

func (c *RedisChannel) Send(ctx context.Context, subject, body string) error {
	payload, err := json.Marshal(map[string]string{
		"subject": subject,
		"text":    body,
	})
	if err != nil {
		return fmt.Errorf("marshal feed payload: %w", err)
	}

	if err := c.rdb.Publish(ctx, infra.RedisChanIncidentFeed, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", infra.RedisChanIncidentFeed, err)
	}
	return nil
}
