package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"safety-map/internal/domain"
	"safety-map/internal/infra/metrics"
)

// RedisEventQueue реализует очередь событий на базе Redis lists.
type RedisEventQueue struct {
	client *redis.Client
	key    string
}

var _ domain.EventQueue = (*RedisEventQueue)(nil)

// NewRedisEventQueue создаёт очередь по указанному ключу.
func NewRedisEventQueue(client *redis.Client, key string) *RedisEventQueue {
	return &RedisEventQueue{client: client, key: key}
}

// Publish кладёт событие в очередь.
func (q *RedisEventQueue) Publish(ctx context.Context, event domain.StoryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Receive блокирующе читает событие. Неуспешная обработка возвращает событие в конец очереди.
func (q *RedisEventQueue) Receive(ctx context.Context) (domain.StoryEvent, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.StoryEvent{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.StoryEvent{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.StoryEvent{}, nil, err
		}
		if len(res) != 2 {
			return domain.StoryEvent{}, nil, errors.New("redis queue: unexpected response")
		}
		payload := []byte(res[1])
		var event domain.StoryEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return domain.StoryEvent{}, nil, fmt.Errorf("decode event: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, payload).Err()
		}
		return event, ack, nil
	}
}
