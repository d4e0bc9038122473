package stories

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"safety-map/internal/domain"
	"safety-map/internal/infra/metrics"
)

const publishTimeout = 5 * time.Second

// Service — контроллер жизненного цикла историй.
// Единственный, кто меняет Repository; все мутации выполняются под одним мьютексом.
type Service struct {
	mu     sync.Mutex
	repo   *Repository
	feed   *Feed
	events domain.EventPublisher
	log    zerolog.Logger
	now    func() time.Time
	lastID int64
}

// Option настраивает Service.
type Option func(*Service)

// WithPublisher задаёт шину событий жизненного цикла.
func WithPublisher(p domain.EventPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithClock подменяет часы.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт контроллер поверх загруженного репозитория.
func NewService(repo *Repository, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		feed:   NewFeed(),
		log:    logger,
		now:    time.Now,
		lastID: repo.maxID(),
	}
	for _, opt := range opts {
		opt(s)
	}
	metrics.SetCollectionSizes(len(repo.pending), len(repo.approved))
	return s
}

// CreateDraft сохраняет текст как черновик сессии. Прежний черновик перезаписывается.
func (s *Service) CreateDraft(ctx context.Context, session, text string) (domain.Story, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.Story{}, domain.ErrEmptyStory
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, err := s.repo.draft(ctx, session); err == nil && prev != nil {
		s.log.Debug().Int64("story_id", prev.ID).Str("session", session).Msg("stories: черновик перезаписан")
	}
	now := s.now().UTC()
	story := domain.Story{
		ID:          s.nextID(now),
		Text:        trimmed,
		SubmittedAt: now,
		Status:      domain.StoryStatusDraft,
	}
	if err := s.repo.saveDraft(ctx, session, story); err != nil {
		return domain.Story{}, err
	}
	metrics.IncTransition("draft_created")
	draft := story.Clone()
	s.feed.publish(Change{Kind: ChangeDraftSaved, StoryID: story.ID, Session: session, Draft: &draft, Snapshot: s.repo.snapshot()})
	s.log.Info().Int64("story_id", story.ID).Msg("stories: черновик создан")
	return story, nil
}

// AttachLocationAndEnqueue прикрепляет точку к черновику сессии и ставит историю в очередь модерации.
func (s *Service) AttachLocationAndEnqueue(ctx context.Context, session string, loc domain.Location) (domain.Story, error) {
	s.mu.Lock()
	story, err := s.enqueueLocked(ctx, session, loc)
	s.mu.Unlock()
	if err != nil {
		return domain.Story{}, err
	}
	s.emit(ctx, domain.StoryEventSubmitted, story)
	return story, nil
}

func (s *Service) enqueueLocked(ctx context.Context, session string, loc domain.Location) (domain.Story, error) {
	draft, err := s.repo.draft(ctx, session)
	if err != nil {
		return domain.Story{}, err
	}
	if draft == nil {
		return domain.Story{}, domain.ErrNoDraft
	}
	if err := loc.Validate(); err != nil {
		return domain.Story{}, err
	}
	story := draft.Clone()
	story.Location = &loc
	story.Status = domain.StoryStatusPending

	if err := s.repo.update(ctx, with(s.repo.pending, story), nil); err != nil {
		return domain.Story{}, err
	}
	// История уже в pending: оставшийся черновик снимет Repository.draft при следующем чтении.
	if err := s.repo.clearDraft(ctx, session); err != nil {
		s.log.Error().Err(err).Int64("story_id", story.ID).Msg("stories: не удалось удалить черновик")
	}
	metrics.IncTransition("submitted")
	s.afterCommit(Change{Kind: ChangeSubmitted, StoryID: story.ID})
	s.log.Info().Int64("story_id", story.ID).Msg("stories: история отправлена на модерацию")
	return story.Clone(), nil
}

// Approve переносит историю из pending в конец approved. Неизвестный id — не ошибка, ok = false.
func (s *Service) Approve(ctx context.Context, id int64) (domain.Story, bool, error) {
	s.mu.Lock()
	story, ok, err := s.approveLocked(ctx, id)
	s.mu.Unlock()
	if err != nil || !ok {
		return domain.Story{}, ok, err
	}
	s.emit(ctx, domain.StoryEventApproved, story)
	return story, true, nil
}

func (s *Service) approveLocked(ctx context.Context, id int64) (domain.Story, bool, error) {
	idx := indexOf(s.repo.pending, id)
	if idx < 0 {
		return domain.Story{}, false, nil
	}
	story := s.repo.pending[idx].Clone()
	approvedAt := s.now().UTC()
	story.Status = domain.StoryStatusApproved
	story.ApprovedAt = &approvedAt

	if err := s.repo.update(ctx, without(s.repo.pending, idx), with(s.repo.approved, story)); err != nil {
		return domain.Story{}, false, err
	}
	metrics.IncTransition("approved")
	s.afterCommit(Change{Kind: ChangeApproved, StoryID: id})
	s.log.Info().Int64("story_id", id).Msg("stories: история одобрена")
	return story.Clone(), true, nil
}

// Reject удаляет историю из pending без следа.
func (s *Service) Reject(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	story, ok, err := s.removeLocked(ctx, id, false)
	s.mu.Unlock()
	if err != nil || !ok {
		return ok, err
	}
	s.emit(ctx, domain.StoryEventRejected, story)
	return true, nil
}

// DeleteApproved удаляет одобренную историю с карты.
func (s *Service) DeleteApproved(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	story, ok, err := s.removeLocked(ctx, id, true)
	s.mu.Unlock()
	if err != nil || !ok {
		return ok, err
	}
	s.emit(ctx, domain.StoryEventDeleted, story)
	return true, nil
}

func (s *Service) removeLocked(ctx context.Context, id int64, approved bool) (domain.Story, bool, error) {
	source := s.repo.pending
	if approved {
		source = s.repo.approved
	}
	idx := indexOf(source, id)
	if idx < 0 {
		return domain.Story{}, false, nil
	}
	story := source[idx].Clone()
	next := without(source, idx)

	var err error
	kind, transition := ChangeRejected, "rejected"
	if approved {
		err = s.repo.update(ctx, nil, next)
		kind, transition = ChangeDeleted, "deleted"
	} else {
		err = s.repo.update(ctx, next, nil)
	}
	if err != nil {
		return domain.Story{}, false, err
	}
	metrics.IncTransition(transition)
	s.afterCommit(Change{Kind: kind, StoryID: id})
	s.log.Info().Int64("story_id", id).Str("transition", transition).Msg("stories: история удалена")
	return story, true, nil
}

// CancelDraft удаляет черновик сессии. Коллекции не затрагиваются.
func (s *Service) CancelDraft(ctx context.Context, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft, err := s.repo.draft(ctx, session)
	if err != nil {
		return err
	}
	if err := s.repo.clearDraft(ctx, session); err != nil {
		return err
	}
	var id int64
	if draft != nil {
		id = draft.ID
		metrics.IncTransition("draft_cancelled")
	}
	s.feed.publish(Change{Kind: ChangeDraftCleared, StoryID: id, Session: session, Snapshot: s.repo.snapshot()})
	return nil
}

// Draft возвращает черновик сессии или nil.
func (s *Service) Draft(ctx context.Context, session string) (*domain.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.draft(ctx, session)
}

// Snapshot возвращает копию коллекций pending и approved.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.snapshot()
}

// Subscribe подписывает представление на изменения.
func (s *Service) Subscribe(buffer int) (<-chan Change, func()) {
	return s.feed.Subscribe(buffer)
}

// nextID выдаёт id из миллисекунд метки времени, сдвигая его при совпадении.
func (s *Service) nextID(now time.Time) int64 {
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	for s.repo.contains(id) {
		id++
	}
	s.lastID = id
	return id
}

func (s *Service) afterCommit(change Change) {
	change.Snapshot = s.repo.snapshot()
	metrics.SetCollectionSizes(len(s.repo.pending), len(s.repo.approved))
	s.feed.publish(change)
}

func (s *Service) emit(ctx context.Context, eventType domain.StoryEventType, story domain.Story) {
	if s.events == nil {
		return
	}
	event := domain.StoryEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		StoryID:    story.ID,
		Story:      &story,
		OccurredAt: s.now().UTC(),
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	err := s.events.Publish(pubCtx, event)
	metrics.ObserveEvent(string(eventType), err)
	if err != nil {
		s.log.Error().Err(err).Str("type", string(eventType)).Int64("story_id", story.ID).Msg("stories: не удалось опубликовать событие")
	}
}
