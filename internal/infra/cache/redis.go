package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"safety-map/internal/infra/metrics"
)

// RedisOnce отмечает выполненные действия ключами в Redis.
type RedisOnce struct {
	client *redis.Client
	prefix string
}

// NewRedisOnce создаёт отметчик с префиксом ключей.
func NewRedisOnce(client *redis.Client, prefix string) *RedisOnce {
	return &RedisOnce{client: client, prefix: prefix}
}

// Do выполняет fn, если ключ ещё не занят, и возвращает true.
// Если действие уже выполнялось за последние ttl, fn не вызывается и возвращается false.
// Ошибка fn освобождает ключ, чтобы повтор мог выполнить действие снова.
func (c *RedisOnce) Do(ctx context.Context, key string, ttl time.Duration, fn func() error) (bool, error) {
	full := c.prefix + key
	start := time.Now()
	ok, err := c.client.SetNX(ctx, full, "1", ttl).Result()
	metrics.ObserveNetworkRequest("redis", "setnx", "once", start, err)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := fn(); err != nil {
		_ = c.client.Del(context.WithoutCancel(ctx), full).Err()
		return true, err
	}
	return true, nil
}
