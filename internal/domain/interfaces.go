package domain

import (
	"context"
	"errors"
)

// ErrKeyNotFound возвращается KV-хранилищем для отсутствующего ключа.
var ErrKeyNotFound = errors.New("key not found")

// KVStore — область хранения «ключ-значение».
// Долговременная область переживает перезапуски, сессионная живёт пока жива сессия клиента.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// StoryStore — адаптер постоянного хранения историй.
// Повреждённые данные читаются как пустые; ошибка возвращается только при сбое самого хранилища.
type StoryStore interface {
	LoadDurable(ctx context.Context, key string) ([]Story, error)
	SaveDurable(ctx context.Context, key string, stories []Story) error
	LoadDraft(ctx context.Context, session string) (*Story, error)
	SaveDraft(ctx context.Context, session string, story Story) error
	ClearDraft(ctx context.Context, session string) error
}

// Ключи долговременной и сессионной областей.
const (
	KeyApprovedStories = "approvedStories"
	KeyPendingStories  = "pendingStories"
	KeyDraftStory      = "tempStory"
)
