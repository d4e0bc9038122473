package domain

import (
	"context"
	"time"
)

// StoryEventType описывает переход в жизненном цикле истории.
type StoryEventType string

const (
	// StoryEventSubmitted — история с точкой попала в очередь модерации.
	StoryEventSubmitted StoryEventType = "story_submitted"
	// StoryEventApproved — администратор одобрил историю.
	StoryEventApproved StoryEventType = "story_approved"
	// StoryEventRejected — администратор отклонил историю.
	StoryEventRejected StoryEventType = "story_rejected"
	// StoryEventDeleted — одобренная история удалена с карты.
	StoryEventDeleted StoryEventType = "story_deleted"
)

// StoryEvent публикуется после каждого перехода, затрагивающего общие коллекции.
type StoryEvent struct {
	ID         string         `json:"event_id"`
	Type       StoryEventType `json:"type"`
	StoryID    int64          `json:"story_id"`
	Story      *Story         `json:"story,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// EventPublisher отправляет события жизненного цикла во внешнюю шину.
type EventPublisher interface {
	Publish(ctx context.Context, event StoryEvent) error
}

// EventQueue описывает очередь событий для фоновых обработчиков.
type EventQueue interface {
	EventPublisher
	Receive(ctx context.Context) (StoryEvent, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки события.
type AckFunc func(success bool) error

// Notifier доставляет уведомление модераторам.
type Notifier interface {
	Notify(ctx context.Context, event StoryEvent) error
}
