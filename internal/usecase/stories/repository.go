package stories

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"safety-map/internal/domain"
)

// Repository держит коллекции pending и approved в памяти и пишет их сквозь в хранилище.
// Черновик сессии читается из сессионной области при каждом обращении.
// Мутации доступны только Service.
type Repository struct {
	store    domain.StoryStore
	pending  []domain.Story
	approved []domain.Story
	log      zerolog.Logger
}

// NewRepository загружает коллекции из хранилища.
// История, оказавшаяся сразу в pending и approved, остаётся только в approved.
func NewRepository(ctx context.Context, store domain.StoryStore, logger zerolog.Logger) (*Repository, error) {
	approved, err := store.LoadDurable(ctx, domain.KeyApprovedStories)
	if err != nil {
		return nil, fmt.Errorf("загрузка approved: %w", err)
	}
	pending, err := store.LoadDurable(ctx, domain.KeyPendingStories)
	if err != nil {
		return nil, fmt.Errorf("загрузка pending: %w", err)
	}
	approvedIDs := make(map[int64]struct{}, len(approved))
	for _, s := range approved {
		approvedIDs[s.ID] = struct{}{}
	}
	kept := pending[:0]
	for _, s := range pending {
		if _, dup := approvedIDs[s.ID]; dup {
			logger.Warn().Int64("story_id", s.ID).Msg("stories: история одновременно в pending и approved, оставляем approved")
			continue
		}
		kept = append(kept, s)
	}
	return &Repository{store: store, pending: kept, approved: approved, log: logger}, nil
}

func (r *Repository) contains(id int64) bool {
	return indexOf(r.pending, id) >= 0 || indexOf(r.approved, id) >= 0
}

func (r *Repository) maxID() int64 {
	var max int64
	for _, s := range r.pending {
		if s.ID > max {
			max = s.ID
		}
	}
	for _, s := range r.approved {
		if s.ID > max {
			max = s.ID
		}
	}
	return max
}

// draft читает черновик сессии. Черновик, чей id уже попал в коллекции, удаляется.
func (r *Repository) draft(ctx context.Context, session string) (*domain.Story, error) {
	draft, err := r.store.LoadDraft(ctx, session)
	if err != nil || draft == nil {
		return nil, err
	}
	if r.contains(draft.ID) {
		r.log.Warn().Int64("story_id", draft.ID).Str("session", session).Msg("stories: черновик уже отправлен, удаляем")
		if err := r.store.ClearDraft(ctx, session); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return draft, nil
}

func (r *Repository) saveDraft(ctx context.Context, session string, story domain.Story) error {
	return r.store.SaveDraft(ctx, session, story)
}

func (r *Repository) clearDraft(ctx context.Context, session string) error {
	return r.store.ClearDraft(ctx, session)
}

// update сохраняет изменённые коллекции (nil — без изменений) и только затем подменяет их в памяти.
// approved пишется раньше pending. Если pending записать не удалось, approved откатывается
// к прежнему значению; при неудачном откате память приводится к тому, что увидит NewRepository.
func (r *Repository) update(ctx context.Context, pending, approved []domain.Story) error {
	if approved != nil {
		if err := r.store.SaveDurable(ctx, domain.KeyApprovedStories, approved); err != nil {
			return err
		}
	}
	if pending != nil {
		if err := r.store.SaveDurable(ctx, domain.KeyPendingStories, pending); err != nil {
			if approved != nil {
				r.restoreApproved(ctx, approved)
			}
			return err
		}
	}
	if approved != nil {
		r.approved = approved
	}
	if pending != nil {
		r.pending = pending
	}
	return nil
}

// restoreApproved возвращает прежний approved после неполной записи.
func (r *Repository) restoreApproved(ctx context.Context, written []domain.Story) {
	err := r.store.SaveDurable(context.WithoutCancel(ctx), domain.KeyApprovedStories, r.approved)
	if err == nil {
		return
	}
	r.log.Error().Err(err).Msg("stories: не удалось откатить approved, принимаем записанное состояние")
	r.approved = written
	r.pending = withoutIDs(r.pending, written)
}

func (r *Repository) snapshot() Snapshot {
	return Snapshot{
		Pending:  domain.CloneStories(r.pending),
		Approved: domain.CloneStories(r.approved),
	}
}

func indexOf(stories []domain.Story, id int64) int {
	for i, s := range stories {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func without(stories []domain.Story, idx int) []domain.Story {
	out := make([]domain.Story, 0, len(stories)-1)
	out = append(out, stories[:idx]...)
	return append(out, stories[idx+1:]...)
}

// withoutIDs убирает из stories истории, чьи id есть в other.
func withoutIDs(stories, other []domain.Story) []domain.Story {
	out := make([]domain.Story, 0, len(stories))
	for _, s := range stories {
		if indexOf(other, s.ID) < 0 {
			out = append(out, s)
		}
	}
	return out
}

func with(stories []domain.Story, story domain.Story) []domain.Story {
	out := make([]domain.Story, 0, len(stories)+1)
	out = append(out, stories...)
	return append(out, story)
}
