package rooms

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tableside-backend/internal/tables"
	"github.com/angelmondragon/tableside-backend/internal/users"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tableside-backend/pkg/errors"
)

type fakeFeed struct {
	mu           sync.Mutex
	events       chan tables.FeedEvent
	subscribeErr error
	unsubscribed int
}

func newFakeFeed(events ...tables.FeedEvent) *fakeFeed {
	ch := make(chan tables.FeedEvent, len(events)+4)
	for _, ev := range events {
		ch <- ev
	}
	return &fakeFeed{events: ch}
}

func (f *fakeFeed) Subscribe(context.Context, string, uuid.UUID) (<-chan tables.FeedEvent, tables.Unsubscribe, error) {
	if f.subscribeErr != nil {
		return nil, nil, f.subscribeErr
	}
	return f.events, func() {
		f.mu.Lock()
		f.unsubscribed++
		f.mu.Unlock()
	}, nil
}

func (f *fakeFeed) unsubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed
}

type fakeTables struct {
	table    *tables.TableDTO
	getErr   error
	released []uuid.UUID
}

func (f *fakeTables) Get(context.Context, string, uuid.UUID) (*tables.TableDTO, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.table, nil
}

func (f *fakeTables) ReleaseEndedTable(_ context.Context, userID uuid.UUID, _ tables.TableDTO) error {
	f.released = append(f.released, userID)
	return nil
}

type fakeRoster struct {
	calls int
}

func (f *fakeRoster) Participants(_ context.Context, ids []uuid.UUID) ([]users.ParticipantDTO, error) {
	f.calls++
	out := make([]users.ParticipantDTO, 0, len(ids))
	for _, id := range ids {
		out = append(out, users.ParticipantDTO{ID: id, DisplayName: "user", UserLevel: 1})
	}
	return out, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) emit(ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type instantTimer struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (t *instantTimer) after(d time.Duration) <-chan time.Time {
	t.mu.Lock()
	t.delays = append(t.delays, d)
	t.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

type roomFixture struct {
	feed    *fakeFeed
	tables  *fakeTables
	roster  *fakeRoster
	timer   *instantTimer
	manager *Manager
}

func newRoomFixture(t *testing.T, feed *fakeFeed, table *tables.TableDTO) *roomFixture {
	t.Helper()
	fx := &roomFixture{
		feed:   feed,
		tables: &fakeTables{table: table},
		roster: &fakeRoster{},
		timer:  &instantTimer{},
	}
	m, err := NewManager(ManagerParams{
		Feed:   feed,
		Tables: fx.tables,
		Roster: fx.roster,
		After:  fx.timer.after,
	})
	require.NoError(t, err)
	fx.manager = m
	return fx
}

func activeTable(creator uuid.UUID, joined ...uuid.UUID) *tables.TableDTO {
	return &tables.TableDTO{
		ID:          uuid.New(),
		LocationID:  "campus",
		Title:       "Chess",
		Seats:       4,
		CreatorID:   creator,
		JoinedUsers: append([]uuid.UUID{creator}, joined...),
		Status:      enums.TableStatusActive,
	}
}

func snapshotOf(table tables.TableDTO) tables.FeedEvent {
	copied := table
	return tables.FeedEvent{Snapshot: &tables.Snapshot{LocationID: copied.LocationID, TableID: copied.ID, Table: &copied}}
}

func TestNewManagerRequiresDependencies(t *testing.T) {
	_, err := NewManager(ManagerParams{})
	require.Error(t, err)
}

func TestInactiveSnapshotsEndSessionOnce(t *testing.T) {
	creator, user := uuid.New(), uuid.New()
	table := activeTable(creator, user)
	ended := *table
	ended.Status = enums.TableStatusInactive
	reason := "Time for class"
	ended.EndReason = &reason

	feed := newFakeFeed(snapshotOf(ended), snapshotOf(ended), snapshotOf(ended))
	fx := newRoomFixture(t, feed, table)
	rec := &recorder{}

	final, err := fx.manager.Run(context.Background(), user, table.LocationID, table.ID, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, StateEnding, final)

	endings := rec.ofType(EventEnding)
	require.Len(t, endings, 1)
	assert.Equal(t, "Time for class", endings[0].Reason)
	assert.Equal(t, []uuid.UUID{user}, fx.tables.released)
	assert.Equal(t, []time.Duration{5 * time.Second}, fx.timer.delays)
	require.Len(t, rec.ofType(EventRedirect), 1)
	assert.Equal(t, "/home", rec.ofType(EventRedirect)[0].Redirect)
	assert.Equal(t, 1, fx.feed.unsubscribeCount())
}

func TestNotifiedParticipantRedirectsSooner(t *testing.T) {
	creator, user := uuid.New(), uuid.New()
	table := activeTable(creator, user)
	ended := *table
	ended.Status = enums.TableStatusInactive
	ended.NotifyParticipants = true
	ended.ParticipantsToNotify = []uuid.UUID{creator, user}

	fx := newRoomFixture(t, newFakeFeed(snapshotOf(ended)), table)
	rec := &recorder{}

	final, err := fx.manager.Run(context.Background(), user, table.LocationID, table.ID, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, StateEnding, final)
	assert.Equal(t, []time.Duration{3 * time.Second}, fx.timer.delays)
	assert.Equal(t, defaultEndedReason, rec.ofType(EventEnding)[0].Reason)
}

func TestCreatorSessionClosesWithoutEnding(t *testing.T) {
	creator, user := uuid.New(), uuid.New()
	table := activeTable(creator, user)
	ended := *table
	ended.Status = enums.TableStatusInactive
	ended.NotifyParticipants = true
	ended.ParticipantsToNotify = []uuid.UUID{creator, user}

	fx := newRoomFixture(t, newFakeFeed(snapshotOf(ended)), table)
	rec := &recorder{}

	final, err := fx.manager.Run(context.Background(), creator, table.LocationID, table.ID, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, final)
	assert.Empty(t, rec.ofType(EventEnding))
	assert.Empty(t, rec.ofType(EventRedirect))
	assert.Empty(t, fx.tables.released)
	assert.Empty(t, fx.timer.delays)
	assert.Equal(t, 1, fx.feed.unsubscribeCount())
}

func TestAdvisoryFetchOfEndedTableEndsImmediately(t *testing.T) {
	creator, user := uuid.New(), uuid.New()
	table := activeTable(creator, user)
	table.Status = enums.TableStatusInactive

	fx := newRoomFixture(t, newFakeFeed(snapshotOf(*table)), table)
	rec := &recorder{}

	final, err := fx.manager.Run(context.Background(), user, table.LocationID, table.ID, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, StateEnding, final)
	assert.Len(t, rec.ofType(EventEnding), 1)
	assert.Len(t, fx.tables.released, 1)
	assert.Equal(t, 1, fx.feed.unsubscribeCount())
}

func TestDeletedSnapshotRedirects(t *testing.T) {
	creator, user := uuid.New(), uuid.New()
	table := activeTable(creator, user)
	feed := newFakeFeed(tables.FeedEvent{Snapshot: &tables.Snapshot{LocationID: table.LocationID, TableID: table.ID, Deleted: true}})
	fx := newRoomFixture(t, feed, table)
	rec := &recorder{}

	final, err := fx.manager.Run(context.Background(), user, table.LocationID, table.ID, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, StateDeleted, final)
	errs := rec.ofType(EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "This table has been deleted.", errs[0].Message)
	assert.Equal(t, []time.Duration{2 * time.Second}, fx.timer.delays)
	assert.Empty(t, fx.tables.released)
	assert.Equal(t, 1, fx.feed.unsubscribeCount())
}

func TestMissingTableOnEntryIsDeleted(t *testing.T) {
	fx := newRoomFixture(t, newFakeFeed(), nil)
	fx.tables.getErr = pkgerrors.New(pkgerrors.CodeNotFound, "table not found").WithDetails(tables.ErrorDetails{Reason: tables.ReasonTableNotFound})
	rec := &recorder{}

	final, err := fx.manager.Run(context.Background(), uuid.New(), "campus", uuid.New(), rec.emit)
	require.NoError(t, err)
	assert.Equal(t, StateDeleted, final)
	assert.Equal(t, 1, fx.feed.unsubscribeCount())
}

func TestFeedErrorEndsInError(t *testing.T) {
	creator, user := uuid.New(), uuid.New()
	table := activeTable(creator, user)
	fx := newRoomFixture(t, newFakeFeed(tables.FeedEvent{Err: errors.New("redis gone")}), table)
	rec := &recorder{}

	final, err := fx.manager.Run(context.Background(), user, table.LocationID, table.ID, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, StateError, final)
	assert.Len(t, rec.ofType(EventError), 1)
	assert.Len(t, rec.ofType(EventRedirect), 1)
	assert.Equal(t, 1, fx.feed.unsubscribeCount())
}

func TestSubscribeFailureEndsInError(t *testing.T) {
	feed := newFakeFeed()
	feed.subscribeErr = errors.New("dial tcp: refused")
	fx := newRoomFixture(t, feed, nil)
	rec := &recorder{}

	final, err := fx.manager.Run(context.Background(), uuid.New(), "campus", uuid.New(), rec.emit)
	require.NoError(t, err)
	assert.Equal(t, StateError, final)
	assert.Zero(t, fx.feed.unsubscribeCount())
}

func TestCancelClosesAndUnsubscribes(t *testing.T) {
	creator, user := uuid.New(), uuid.New()
	table := activeTable(creator, user)
	fx := newRoomFixture(t, newFakeFeed(), table)
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan State, 1)
	go func() {
		final, _ := fx.manager.Run(ctx, user, table.LocationID, table.ID, rec.emit)
		done <- final
	}()

	require.Eventually(t, func() bool { return len(rec.ofType(EventRoster)) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case final := <-done:
		assert.Equal(t, StateClosed, final)
	case <-time.After(time.Second):
		t.Fatal("session did not stop after cancel")
	}
	assert.Equal(t, 1, fx.feed.unsubscribeCount())
}

func TestRosterReloadsOnlyWhenSeatsChange(t *testing.T) {
	creator, user := uuid.New(), uuid.New()
	table := activeTable(creator, user)

	same := *table
	same.ConversationPrompt = "Favourite opening?"
	grown := same
	grown.JoinedUsers = append(append([]uuid.UUID{}, table.JoinedUsers...), uuid.New())
	ended := grown
	ended.Status = enums.TableStatusInactive

	feed := newFakeFeed(snapshotOf(same), snapshotOf(grown), snapshotOf(ended))
	fx := newRoomFixture(t, feed, table)
	rec := &recorder{}

	_, err := fx.manager.Run(context.Background(), user, table.LocationID, table.ID, rec.emit)
	require.NoError(t, err)

	// entry, then the grown roster; the prompt-only update reuses the roster
	assert.Equal(t, 2, fx.roster.calls)
	tableEvents := rec.ofType(EventTable)
	require.Len(t, tableEvents, 4)
	assert.Equal(t, "Favourite opening?", tableEvents[1].ConversationPrompt)
}

func TestEmitFailureCloses(t *testing.T) {
	creator, user := uuid.New(), uuid.New()
	table := activeTable(creator, user)
	fx := newRoomFixture(t, newFakeFeed(), table)

	final, err := fx.manager.Run(context.Background(), user, table.LocationID, table.ID, func(Event) error {
		return errors.New("socket closed")
	})
	require.Error(t, err)
	assert.Equal(t, StateClosed, final)
	assert.Zero(t, fx.feed.unsubscribeCount())
}
