package kv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"safety-map/internal/domain"
	"safety-map/internal/infra/metrics"
)

// Redis реализует domain.KVStore через Redis.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis создаёт область хранения. ttl = 0 означает бессрочное хранение.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Connect создаёт клиента и проверяет соединение.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Get возвращает значение.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveNetworkRequest("redis", "get", metricTarget(key), start, nil)
		return nil, domain.ErrKeyNotFound
	}
	metrics.ObserveNetworkRequest("redis", "get", metricTarget(key), start, err)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set задаёт значение.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err()
	metrics.ObserveNetworkRequest("redis", "set", metricTarget(key), start, err)
	return err
}

// Delete удаляет значение.
func (r *Redis) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := r.client.Del(ctx, r.prefix+key).Err()
	metrics.ObserveNetworkRequest("redis", "del", metricTarget(key), start, err)
	return err
}
