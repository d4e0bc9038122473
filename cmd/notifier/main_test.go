package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"safety-map/internal/domain"
)

type countingNotifier struct {
	calls int
	err   error
}

func (n *countingNotifier) Notify(context.Context, domain.StoryEvent) error {
	n.calls++
	return n.err
}

type ackRecorder struct {
	results []bool
}

func (a *ackRecorder) ack(success bool) error {
	a.results = append(a.results, success)
	return nil
}

func newWorker(n domain.Notifier) *eventWorker {
	return &eventWorker{log: zerolog.Nop(), notifier: n, maxAttempts: 2, attempts: make(map[string]int)}
}

func TestHandleAcksDeliveredEvent(t *testing.T) {
	n := &countingNotifier{}
	w := newWorker(n)
	rec := &ackRecorder{}

	w.handle(context.Background(), domain.StoryEvent{ID: "e1", Type: domain.StoryEventSubmitted}, rec.ack)

	if n.calls != 1 || len(rec.results) != 1 || !rec.results[0] {
		t.Fatalf("ожидали одну доставку и подтверждение, calls=%d acks=%v", n.calls, rec.results)
	}
}

func TestHandleRetriesUntilLimit(t *testing.T) {
	n := &countingNotifier{err: errors.New("telegram down")}
	w := newWorker(n)
	rec := &ackRecorder{}
	event := domain.StoryEvent{ID: "e1", Type: domain.StoryEventApproved}

	w.handle(context.Background(), event, rec.ack)
	w.handle(context.Background(), event, rec.ack)

	if len(rec.results) != 2 || rec.results[0] || !rec.results[1] {
		t.Fatalf("первая неудача возвращает событие, вторая отбрасывает: %v", rec.results)
	}
	if _, ok := w.attempts["e1"]; ok {
		t.Fatalf("счётчик попыток должен очищаться")
	}
}

func TestHandleSkipsEventWithoutID(t *testing.T) {
	n := &countingNotifier{}
	w := newWorker(n)
	rec := &ackRecorder{}

	w.handle(context.Background(), domain.StoryEvent{}, rec.ack)

	if n.calls != 0 || len(rec.results) != 1 || !rec.results[0] {
		t.Fatalf("событие без id подтверждается без отправки")
	}
}

type memoryOnce struct {
	done map[string]bool
}

func (m *memoryOnce) Do(_ context.Context, key string, _ time.Duration, fn func() error) (bool, error) {
	if m.done[key] {
		return false, nil
	}
	if err := fn(); err != nil {
		return true, err
	}
	m.done[key] = true
	return true, nil
}

func TestHandleSkipsAlreadyDeliveredEvent(t *testing.T) {
	n := &countingNotifier{}
	w := newWorker(n)
	w.once = &memoryOnce{done: make(map[string]bool)}
	rec := &ackRecorder{}
	event := domain.StoryEvent{ID: "e1", Type: domain.StoryEventSubmitted}

	w.handle(context.Background(), event, rec.ack)
	w.handle(context.Background(), event, rec.ack)

	if n.calls != 1 {
		t.Fatalf("повторная доставка не должна слать уведомление, calls=%d", n.calls)
	}
	if len(rec.results) != 2 || !rec.results[0] || !rec.results[1] {
		t.Fatalf("оба получения должны подтверждаться: %v", rec.results)
	}
}
