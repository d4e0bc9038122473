package kv

import (
	"context"
	"strings"
	"sync"
	"time"

	"safety-map/internal/domain"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory реализует domain.KVStore в памяти процесса.
// При ttl > 0 значения истекают, как сессионное хранилище браузера.
type Memory struct {
	mu    sync.Mutex
	data  map[string]memoryEntry
	ttl   time.Duration
	clock func() time.Time
}

// NewMemory создаёт хранилище в памяти.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{data: make(map[string]memoryEntry), ttl: ttl, clock: time.Now}
}

// Get возвращает значение по ключу.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.data[key]
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	if !entry.expiresAt.IsZero() && !m.clock().Before(entry.expiresAt) {
		delete(m.data, key)
		return nil, domain.ErrKeyNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

// Set перезаписывает значение.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if m.ttl > 0 {
		entry.expiresAt = m.clock().Add(m.ttl)
	}
	m.data[key] = entry
	return nil
}

// Delete удаляет ключ. Отсутствие ключа ошибкой не считается.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// metricTarget отрезает идентификатор сессии, чтобы не раздувать метки метрик.
func metricTarget(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}
