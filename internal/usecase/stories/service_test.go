package stories

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"safety-map/internal/adapters/storage"
	"safety-map/internal/domain"
	"safety-map/internal/infra/kv"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.StoryEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, event domain.StoryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

// flakyStore отказывает в записи failKey, а для ключей из okWrites — после указанного числа удачных записей.
type flakyStore struct {
	domain.KVStore
	failKey  string
	okWrites map[string]int
	writes   map[string]int
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if f.writes == nil {
		f.writes = make(map[string]int)
	}
	f.writes[key]++
	if key == f.failKey {
		return errors.New("storage unavailable")
	}
	if limit, ok := f.okWrites[key]; ok && f.writes[key] > limit {
		return errors.New("storage unavailable")
	}
	return f.KVStore.Set(ctx, key, value)
}

type fixture struct {
	durable   *kv.Memory
	session   *kv.Memory
	store     *storage.Adapter
	service   *Service
	publisher *fakePublisher
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		durable:   kv.NewMemory(0),
		session:   kv.NewMemory(0),
		publisher: &fakePublisher{},
		now:       time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	f.store = storage.NewAdapter(f.durable, f.session, zerolog.Nop())
	f.service = f.newService(t)
	return f
}

func (f *fixture) newService(t *testing.T) *Service {
	t.Helper()
	repo, err := NewRepository(context.Background(), f.store, zerolog.Nop())
	require.NoError(t, err)
	return NewService(repo, zerolog.Nop(), WithPublisher(f.publisher), WithClock(func() time.Time { return f.now }))
}

func (f *fixture) submit(t *testing.T, session, text string, loc domain.Location) domain.Story {
	t.Helper()
	ctx := context.Background()
	_, err := f.service.CreateDraft(ctx, session, text)
	require.NoError(t, err)
	story, err := f.service.AttachLocationAndEnqueue(ctx, session, loc)
	require.NoError(t, err)
	return story
}

func TestCreateDraftPersistsTrimmedText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateDraft(ctx, "s1", "  Dark underpass on 5th street \n")
	require.NoError(t, err)

	fresh := storage.NewAdapter(f.durable, f.session, zerolog.Nop())
	draft, err := fresh.LoadDraft(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, draft)
	require.Equal(t, "Dark underpass on 5th street", draft.Text)
	require.Equal(t, domain.StoryStatusDraft, draft.Status)
	require.Equal(t, created.ID, draft.ID)
	require.Nil(t, draft.Location)
	require.True(t, draft.SubmittedAt.Equal(f.now))
}

func TestCreateDraftRejectsBlankText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	prior, err := f.service.CreateDraft(ctx, "s1", "first")
	require.NoError(t, err)

	for _, text := range []string{"", "   ", "\t\n"} {
		_, err := f.service.CreateDraft(ctx, "s1", text)
		require.ErrorIs(t, err, domain.ErrValidation)
		require.ErrorIs(t, err, domain.ErrEmptyStory)
	}

	draft, err := f.service.Draft(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, draft)
	require.Equal(t, prior.ID, draft.ID)
	require.Equal(t, "first", draft.Text)
}

func TestCreateDraftOverwritesPreviousDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.service.CreateDraft(ctx, "s1", "first")
	require.NoError(t, err)
	second, err := f.service.CreateDraft(ctx, "s1", "second")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	draft, err := f.service.Draft(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "second", draft.Text)
}

func TestSubmitScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := domain.Location{Lat: 14.5995, Lng: 120.9842}

	draft, err := f.service.CreateDraft(ctx, "s1", "Unsafe street lighting near Park Ave")
	require.NoError(t, err)
	story, err := f.service.AttachLocationAndEnqueue(ctx, "s1", loc)
	require.NoError(t, err)

	snap := f.service.Snapshot()
	require.Len(t, snap.Pending, 1)
	require.Empty(t, snap.Approved)
	pending := snap.Pending[0]
	require.Equal(t, draft.ID, pending.ID)
	require.Equal(t, story.ID, pending.ID)
	require.Equal(t, "Unsafe street lighting near Park Ave", pending.Text)
	require.Equal(t, loc, *pending.Location)
	require.Equal(t, domain.StoryStatusPending, pending.Status)
	require.Nil(t, pending.ApprovedAt)

	current, err := f.service.Draft(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, current)

	reloaded, err := f.store.LoadDurable(ctx, domain.KeyPendingStories)
	require.NoError(t, err)
	require.Len(t, reloaded, 1)
	require.Equal(t, draft.ID, reloaded[0].ID)

	require.Len(t, f.publisher.events, 1)
	require.Equal(t, domain.StoryEventSubmitted, f.publisher.events[0].Type)
	require.Equal(t, draft.ID, f.publisher.events[0].StoryID)
}

func TestApproveScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	story := f.submit(t, "s1", "Unsafe street lighting near Park Ave", domain.Location{Lat: 14.5995, Lng: 120.9842})
	f.now = f.now.Add(time.Hour)

	approved, ok, err := f.service.Approve(ctx, story.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.StoryStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	require.True(t, approved.ApprovedAt.Equal(f.now))

	snap := f.service.Snapshot()
	require.Empty(t, snap.Pending)
	require.Len(t, snap.Approved, 1)
	require.Equal(t, story.ID, snap.Approved[0].ID)
	require.Equal(t, domain.StoryStatusApproved, snap.Approved[0].Status)
	require.NotNil(t, snap.Approved[0].ApprovedAt)

	durableApproved, err := f.store.LoadDurable(ctx, domain.KeyApprovedStories)
	require.NoError(t, err)
	require.Len(t, durableApproved, 1)
	durablePending, err := f.store.LoadDurable(ctx, domain.KeyPendingStories)
	require.NoError(t, err)
	require.Empty(t, durablePending)

	require.Len(t, f.publisher.events, 2)
	require.Equal(t, domain.StoryEventApproved, f.publisher.events[1].Type)
}

func TestApproveOrderFollowsApprovalOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.submit(t, "s1", "first", domain.Location{Lat: 1, Lng: 1})
	second := f.submit(t, "s2", "second", domain.Location{Lat: 2, Lng: 2})

	_, _, err := f.service.Approve(ctx, second.ID)
	require.NoError(t, err)
	_, _, err = f.service.Approve(ctx, first.ID)
	require.NoError(t, err)

	snap := f.service.Snapshot()
	require.Equal(t, []int64{second.ID, first.ID}, []int64{snap.Approved[0].ID, snap.Approved[1].ID})
}

func TestUnknownIDsAreNoOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	story := f.submit(t, "s1", "text", domain.Location{Lat: 1, Lng: 1})
	before := f.service.Snapshot()

	_, ok, err := f.service.Approve(ctx, story.ID+100)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = f.service.Reject(ctx, story.ID+100)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = f.service.DeleteApproved(ctx, story.ID)
	require.NoError(t, err)
	require.False(t, ok, "pending история не удаляется как approved")

	require.Equal(t, before, f.service.Snapshot())
	require.Len(t, f.publisher.events, 1)
}

func TestRejectAndDeleteApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rejected := f.submit(t, "s1", "reject me", domain.Location{Lat: 1, Lng: 1})
	kept := f.submit(t, "s2", "approve me", domain.Location{Lat: 2, Lng: 2})

	ok, err := f.service.Reject(ctx, rejected.ID)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = f.service.Approve(ctx, rejected.ID)
	require.NoError(t, err)
	require.False(t, ok, "отклонённая история не возвращается")

	_, _, err = f.service.Approve(ctx, kept.ID)
	require.NoError(t, err)
	ok, err = f.service.DeleteApproved(ctx, kept.ID)
	require.NoError(t, err)
	require.True(t, ok)

	snap := f.service.Snapshot()
	require.Empty(t, snap.Pending)
	require.Empty(t, snap.Approved)

	types := make([]domain.StoryEventType, 0, len(f.publisher.events))
	for _, e := range f.publisher.events {
		types = append(types, e.Type)
	}
	require.Equal(t, []domain.StoryEventType{
		domain.StoryEventSubmitted,
		domain.StoryEventSubmitted,
		domain.StoryEventRejected,
		domain.StoryEventApproved,
		domain.StoryEventDeleted,
	}, types)
}

func TestAttachWithoutDraft(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.AttachLocationAndEnqueue(context.Background(), "s1", domain.Location{Lat: 1, Lng: 1})
	require.ErrorIs(t, err, domain.ErrNoDraft)
	require.Empty(t, f.service.Snapshot().Pending)
}

func TestAttachInvalidLocationKeepsDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.CreateDraft(ctx, "s1", "text")
	require.NoError(t, err)

	_, err = f.service.AttachLocationAndEnqueue(ctx, "s1", domain.Location{Lat: 120.98, Lng: 14.41})
	require.ErrorIs(t, err, domain.ErrInvalidLocation)

	draft, err := f.service.Draft(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, draft)
	require.Empty(t, f.service.Snapshot().Pending)
}

func TestDraftsAreScopedPerSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.service.CreateDraft(ctx, "a", "from a")
	require.NoError(t, err)
	b, err := f.service.CreateDraft(ctx, "b", "from b")
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID, "одинаковое время не должно давать одинаковые id")

	story, err := f.service.AttachLocationAndEnqueue(ctx, "a", domain.Location{Lat: 1, Lng: 1})
	require.NoError(t, err)
	require.Equal(t, a.ID, story.ID)

	draftB, err := f.service.Draft(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, draftB)
	require.Equal(t, b.ID, draftB.ID)
}

func TestCancelDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, "s0", "already pending", domain.Location{Lat: 1, Lng: 1})
	_, err := f.service.CreateDraft(ctx, "s1", "to cancel")
	require.NoError(t, err)

	require.NoError(t, f.service.CancelDraft(ctx, "s1"))
	draft, err := f.service.Draft(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, draft)
	require.Len(t, f.service.Snapshot().Pending, 1)

	require.NoError(t, f.service.CancelDraft(ctx, "s1"))
}

func TestStorageFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	story := f.submit(t, "s1", "text", domain.Location{Lat: 1, Lng: 1})

	flaky := &flakyStore{KVStore: f.durable, failKey: domain.KeyPendingStories}
	f.store = storage.NewAdapter(flaky, f.session, zerolog.Nop())
	f.service = f.newService(t)

	_, _, err := f.service.Approve(ctx, story.ID)
	require.Error(t, err)
	snap := f.service.Snapshot()
	require.Len(t, snap.Pending, 1)
	require.Empty(t, snap.Approved)
	require.Equal(t, 2, flaky.writes[domain.KeyApprovedStories], "approved должен откатываться")

	f.store = storage.NewAdapter(f.durable, f.session, zerolog.Nop())
	restarted := f.newService(t)
	snap = restarted.Snapshot()
	require.Len(t, snap.Pending, 1)
	require.Empty(t, snap.Approved)
	require.Equal(t, story.ID, snap.Pending[0].ID)
}

func TestRejectAfterFailedApproveStaysRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	story := f.submit(t, "s1", "text", domain.Location{Lat: 1, Lng: 1})

	flaky := &flakyStore{KVStore: f.durable, failKey: domain.KeyPendingStories}
	f.store = storage.NewAdapter(flaky, f.session, zerolog.Nop())
	f.service = f.newService(t)
	_, _, err := f.service.Approve(ctx, story.ID)
	require.Error(t, err)

	// хранилище восстановилось, модератор отклоняет историю
	flaky.failKey = ""
	ok, err := f.service.Reject(ctx, story.ID)
	require.NoError(t, err)
	require.True(t, ok)

	restarted := f.newService(t)
	snap := restarted.Snapshot()
	require.Empty(t, snap.Pending)
	require.Empty(t, snap.Approved, "отклонённая история не должна попасть на карту")
}

func TestFailedRollbackKeepsMemoryConsistentWithStorage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	story := f.submit(t, "s1", "text", domain.Location{Lat: 1, Lng: 1})

	flaky := &flakyStore{
		KVStore:  f.durable,
		failKey:  domain.KeyPendingStories,
		okWrites: map[string]int{domain.KeyApprovedStories: 1},
	}
	f.store = storage.NewAdapter(flaky, f.session, zerolog.Nop())
	f.service = f.newService(t)

	_, _, err := f.service.Approve(ctx, story.ID)
	require.Error(t, err)
	snap := f.service.Snapshot()
	require.Empty(t, snap.Pending)
	require.Len(t, snap.Approved, 1)

	ok, err := f.service.Reject(ctx, story.ID)
	require.NoError(t, err)
	require.False(t, ok, "история уже в approved")

	f.store = storage.NewAdapter(f.durable, f.session, zerolog.Nop())
	reloaded := f.newService(t).Snapshot()
	require.Empty(t, reloaded.Pending)
	require.Len(t, reloaded.Approved, 1)
	require.Equal(t, story.ID, reloaded.Approved[0].ID)
}

func TestDraftAlreadyEnqueuedIsDiscarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft, err := f.service.CreateDraft(ctx, "s1", "text")
	require.NoError(t, err)
	story := draft.Clone()
	story.Location = &domain.Location{Lat: 1, Lng: 1}
	story.Status = domain.StoryStatusPending
	require.NoError(t, f.store.SaveDurable(ctx, domain.KeyPendingStories, []domain.Story{story}))

	restarted := f.newService(t)
	current, err := restarted.Draft(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, current)
	_, err = restarted.AttachLocationAndEnqueue(ctx, "s1", domain.Location{Lat: 2, Lng: 2})
	require.ErrorIs(t, err, domain.ErrNoDraft)
	require.Len(t, restarted.Snapshot().Pending, 1)
}

func TestPublisherErrorDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	story := f.submit(t, "s1", "text", domain.Location{Lat: 1, Lng: 1})
	_, ok, err := f.service.Approve(context.Background(), story.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSubscribersReceiveChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	changes, unsubscribe := f.service.Subscribe(16)
	defer unsubscribe()

	story := f.submit(t, "s1", "text", domain.Location{Lat: 1, Lng: 1})
	_, _, err := f.service.Approve(ctx, story.ID)
	require.NoError(t, err)

	draftChange := <-changes
	require.Equal(t, ChangeDraftSaved, draftChange.Kind)
	require.True(t, draftChange.VisibleTo("s1"))
	require.False(t, draftChange.VisibleTo("s2"))
	require.NotNil(t, draftChange.Draft)

	submitted := <-changes
	require.Equal(t, ChangeSubmitted, submitted.Kind)
	require.True(t, submitted.VisibleTo("s2"))
	require.Len(t, submitted.Snapshot.Pending, 1)

	approved := <-changes
	require.Equal(t, ChangeApproved, approved.Kind)
	require.Empty(t, approved.Snapshot.Pending)
	require.Len(t, approved.Snapshot.Approved, 1)
}
