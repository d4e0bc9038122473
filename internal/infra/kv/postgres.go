package kv

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"safety-map/internal/domain"
	"safety-map/internal/infra/metrics"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kv_store (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres реализует долговременную область domain.KVStore в таблице kv_store.
type Postgres struct {
	pool   *pgxpool.Pool
	prefix string
}

// NewPostgres создаёт адаптер. Таблицу создаёт EnsureSchema.
func NewPostgres(pool *pgxpool.Pool, prefix string) *Postgres {
	return &Postgres{pool: pool, prefix: prefix}
}

// EnsureSchema создаёт таблицу kv_store, если её нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Get возвращает значение.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	var value []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, p.prefix+key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "get", metricTarget(key), start, nil)
		return nil, domain.ErrKeyNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "get", metricTarget(key), start, err)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set перезаписывает значение целиком.
func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO kv_store (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
`, p.prefix+key, value)
	metrics.ObserveNetworkRequest("postgres", "set", metricTarget(key), start, err)
	return err
}

// Delete удаляет значение.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, p.prefix+key)
	metrics.ObserveNetworkRequest("postgres", "delete", metricTarget(key), start, err)
	return err
}
