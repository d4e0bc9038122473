package stories

import (
	"sync"

	"safety-map/internal/domain"
	"safety-map/internal/infra/metrics"
)

// ChangeKind описывает, что изменилось в хранилище историй.
type ChangeKind string

const (
	ChangeDraftSaved   ChangeKind = "draft_saved"
	ChangeDraftCleared ChangeKind = "draft_cleared"
	ChangeSubmitted    ChangeKind = "submitted"
	ChangeApproved     ChangeKind = "approved"
	ChangeRejected     ChangeKind = "rejected"
	ChangeDeleted      ChangeKind = "deleted"
)

// PendingOnly сообщает, что изменение затрагивает только pending.
func (k ChangeKind) PendingOnly() bool {
	return k == ChangeSubmitted || k == ChangeRejected
}

// Snapshot — копия общих коллекций на момент изменения.
type Snapshot struct {
	Pending  []domain.Story `json:"pending"`
	Approved []domain.Story `json:"approved"`
}

// Change доставляется подписчикам после каждой мутации.
// Session заполнен только для изменений черновика и адресует их одной сессии.
type Change struct {
	Kind     ChangeKind    `json:"kind"`
	StoryID  int64         `json:"storyId"`
	Session  string        `json:"-"`
	Draft    *domain.Story `json:"draft,omitempty"`
	Snapshot Snapshot      `json:"snapshot"`
}

// VisibleTo сообщает, должна ли сессия получить изменение.
func (c Change) VisibleTo(session string) bool {
	return c.Session == "" || c.Session == session
}

// Feed раздаёт изменения подписчикам без блокировки издателя.
// Если буфер подписчика полон, самое старое изменение вытесняется новым.
type Feed struct {
	mu   sync.Mutex
	subs map[int]chan Change
	next int
}

// NewFeed создаёт ленту изменений.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan Change)}
}

// Subscribe регистрирует подписчика. Возвращённая функция отписывает и закрывает канал.
func (f *Feed) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = ch
	metrics.FeedSubscribers.Set(float64(len(f.subs)))
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			metrics.FeedSubscribers.Set(float64(len(f.subs)))
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *Feed) publish(change Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- change:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- change:
		default:
		}
		metrics.FeedDroppedTotal.Inc()
	}
}
