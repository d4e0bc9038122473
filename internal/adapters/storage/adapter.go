package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"safety-map/internal/domain"
	"safety-map/internal/infra/metrics"
)

// Adapter реализует domain.StoryStore поверх двух KV-областей:
// долговременной (коллекции pending и approved) и сессионной (черновик).
type Adapter struct {
	durable domain.KVStore
	session domain.KVStore
	log     zerolog.Logger
}

var _ domain.StoryStore = (*Adapter)(nil)

// NewAdapter создаёт адаптер хранения.
func NewAdapter(durable, session domain.KVStore, logger zerolog.Logger) *Adapter {
	return &Adapter{durable: durable, session: session, log: logger}
}

// DraftKey возвращает ключ черновика в сессионной области.
func DraftKey(session string) string {
	return domain.KeyDraftStory + ":" + session
}

// LoadDurable читает коллекцию. Отсутствующее или повреждённое значение даёт пустую коллекцию,
// повреждённые записи отбрасываются по одной.
func (a *Adapter) LoadDurable(ctx context.Context, key string) ([]domain.Story, error) {
	raw, err := a.durable.Get(ctx, key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return []domain.Story{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("чтение %s: %w", key, err)
	}
	return a.decodeCollection(key, raw), nil
}

// SaveDurable полностью перезаписывает коллекцию.
func (a *Adapter) SaveDurable(ctx context.Context, key string, stories []domain.Story) error {
	if stories == nil {
		stories = []domain.Story{}
	}
	payload, err := json.Marshal(stories)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := a.durable.Set(ctx, key, payload); err != nil {
		return fmt.Errorf("запись %s: %w", key, err)
	}
	return nil
}

// LoadDraft читает черновик сессии. Повреждённое значение удаляется и читается как отсутствующее.
func (a *Adapter) LoadDraft(ctx context.Context, session string) (*domain.Story, error) {
	key := DraftKey(session)
	raw, err := a.session.Get(ctx, key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("чтение черновика: %w", err)
	}
	story, err := decodeDraft(raw)
	if err != nil {
		metrics.IncMalformed(domain.KeyDraftStory)
		a.log.Warn().Err(err).Str("session", session).Msg("storage: повреждённый черновик удалён")
		if delErr := a.session.Delete(ctx, key); delErr != nil {
			a.log.Error().Err(delErr).Str("session", session).Msg("storage: не удалось удалить черновик")
		}
		return nil, nil
	}
	return &story, nil
}

// SaveDraft записывает черновик сессии.
func (a *Adapter) SaveDraft(ctx context.Context, session string, story domain.Story) error {
	payload, err := json.Marshal(story)
	if err != nil {
		return fmt.Errorf("marshal черновика: %w", err)
	}
	if err := a.session.Set(ctx, DraftKey(session), payload); err != nil {
		return fmt.Errorf("запись черновика: %w", err)
	}
	return nil
}

// ClearDraft удаляет черновик сессии.
func (a *Adapter) ClearDraft(ctx context.Context, session string) error {
	if err := a.session.Delete(ctx, DraftKey(session)); err != nil {
		return fmt.Errorf("удаление черновика: %w", err)
	}
	return nil
}

func (a *Adapter) decodeCollection(key string, raw []byte) []domain.Story {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		metrics.IncMalformed(key)
		a.log.Warn().Err(fmt.Errorf("%w: %v", domain.ErrMalformedStorage, err)).Str("key", key).Msg("storage: коллекция повреждена, читаем как пустую")
		return []domain.Story{}
	}
	want := statusForKey(key)
	stories := make([]domain.Story, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	for idx, item := range items {
		story, err := decodeRecord(item, want)
		if err == nil {
			if _, dup := seen[story.ID]; dup {
				err = fmt.Errorf("%w: duplicate id %d", domain.ErrMalformedStorage, story.ID)
			}
		}
		if err != nil {
			metrics.IncMalformed(key)
			a.log.Warn().Err(err).Str("key", key).Int("index", idx).Msg("storage: запись отброшена")
			continue
		}
		seen[story.ID] = struct{}{}
		stories = append(stories, story)
	}
	return stories
}

func statusForKey(key string) domain.StoryStatus {
	switch key {
	case domain.KeyApprovedStories:
		return domain.StoryStatusApproved
	case domain.KeyPendingStories:
		return domain.StoryStatusPending
	default:
		return ""
	}
}

// storedStory повторяет domain.Story с указателями, чтобы отличать отсутствующие поля от нулевых.
type storedStory struct {
	ID          *int64          `json:"id"`
	Text        *string         `json:"text"`
	SubmittedAt *time.Time      `json:"submittedAt"`
	Location    *storedLocation `json:"location"`
	Status      *string         `json:"status"`
	ApprovedAt  *time.Time      `json:"approvedAt"`
}

type storedLocation struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func decodeStored(raw []byte) (storedStory, domain.Story, error) {
	var rec storedStory
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, domain.Story{}, fmt.Errorf("%w: %v", domain.ErrMalformedStorage, err)
	}
	if rec.ID == nil || *rec.ID <= 0 {
		return rec, domain.Story{}, fmt.Errorf("%w: missing id", domain.ErrMalformedStorage)
	}
	if rec.Text == nil || strings.TrimSpace(*rec.Text) == "" {
		return rec, domain.Story{}, fmt.Errorf("%w: missing text", domain.ErrMalformedStorage)
	}
	if rec.SubmittedAt == nil || rec.SubmittedAt.IsZero() {
		return rec, domain.Story{}, fmt.Errorf("%w: missing submittedAt", domain.ErrMalformedStorage)
	}
	return rec, domain.Story{
		ID:          *rec.ID,
		Text:        *rec.Text,
		SubmittedAt: *rec.SubmittedAt,
	}, nil
}

func decodeRecord(raw []byte, want domain.StoryStatus) (domain.Story, error) {
	rec, story, err := decodeStored(raw)
	if err != nil {
		return domain.Story{}, err
	}
	if rec.Status == nil || domain.StoryStatus(*rec.Status) != want {
		return domain.Story{}, fmt.Errorf("%w: status is not %s", domain.ErrMalformedStorage, want)
	}
	story.Status = want
	if rec.Location == nil || rec.Location.Lat == nil || rec.Location.Lng == nil {
		return domain.Story{}, fmt.Errorf("%w: missing location", domain.ErrMalformedStorage)
	}
	loc := domain.Location{Lat: *rec.Location.Lat, Lng: *rec.Location.Lng}
	if err := loc.Validate(); err != nil {
		return domain.Story{}, fmt.Errorf("%w: %v", domain.ErrMalformedStorage, err)
	}
	story.Location = &loc
	if want == domain.StoryStatusApproved {
		if rec.ApprovedAt == nil || rec.ApprovedAt.IsZero() {
			return domain.Story{}, fmt.Errorf("%w: missing approvedAt", domain.ErrMalformedStorage)
		}
		at := *rec.ApprovedAt
		story.ApprovedAt = &at
	}
	return story, nil
}

func decodeDraft(raw []byte) (domain.Story, error) {
	rec, story, err := decodeStored(raw)
	if err != nil {
		return domain.Story{}, err
	}
	// Черновики старого фронтенда хранились без статуса.
	if rec.Status != nil && domain.StoryStatus(*rec.Status) != domain.StoryStatusDraft {
		return domain.Story{}, fmt.Errorf("%w: status is not draft", domain.ErrMalformedStorage)
	}
	if rec.Location != nil {
		return domain.Story{}, fmt.Errorf("%w: draft has location", domain.ErrMalformedStorage)
	}
	story.Status = domain.StoryStatusDraft
	return story, nil
}
