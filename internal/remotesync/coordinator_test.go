package remotesync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/examprep/internal/clock"
	"github.com/example/examprep/internal/remote"
	"github.com/example/examprep/pkg/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyStore records writes and can be told to fail.
type spyStore struct {
	*remote.MemoryStore

	mu     sync.Mutex
	writes []map[string]any
	err    error
	// during runs inside SetDocument before it returns.
	during func()
}

func newSpyStore() *spyStore {
	return &spyStore{MemoryStore: remote.NewMemoryStore()}
}

func (s *spyStore) SetDocument(ctx context.Context, userID string, fields map[string]any) error {
	s.mu.Lock()
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	s.writes = append(s.writes, copied)
	err := s.err
	during := s.during
	s.during = nil
	s.mu.Unlock()

	if during != nil {
		during()
	}
	if err != nil {
		return err
	}
	return s.MemoryStore.SetDocument(ctx, userID, fields)
}

func (s *spyStore) Writes() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.writes...)
}

func (s *spyStore) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func newTestCoordinator() (*Coordinator, *spyStore, *clock.Mock) {
	store := newSpyStore()
	mock := clock.NewMock(time.Date(2026, 2, 4, 9, 0, 0, 0, time.UTC))
	c := NewCoordinator(store, mock, nil, Config{Debounce: 2 * time.Second, MinInterval: 5 * time.Second})
	return c, store, mock
}

func TestCoalescesChangesIntoOneWrite(t *testing.T) {
	c, store, mock := newTestCoordinator()

	c.ScheduleSync("u1", map[string]any{"a": 1})
	mock.Advance(500 * time.Millisecond)
	c.ScheduleSync("u1", map[string]any{"b": 2})
	mock.Advance(500 * time.Millisecond)
	c.ScheduleSync("u1", map[string]any{"a": 3})

	mock.Advance(1999 * time.Millisecond)
	assert.Empty(t, store.Writes())

	mock.Advance(time.Millisecond)
	writes := store.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, map[string]any{"a": 3, "b": 2}, writes[0])
	assert.Empty(t, c.Pending("u1"))
}

func TestBillingFieldsNeverSyncedGenerically(t *testing.T) {
	c, store, mock := newTestCoordinator()

	c.ScheduleSync("u1", map[string]any{
		models.FieldSubscriptionTier:     models.TierFree,
		models.FieldIsPremium:            false,
		models.FieldPrimarySubject:       models.SubjectEngels,
		models.FieldStripeCustomerID:     "cus_1",
		models.FieldStripeSubscriptionID: "sub_1",
		models.FieldXP:                   50,
	})
	require.NoError(t, c.ForceSync(context.Background(), "u1", map[string]any{models.FieldSubscriptionTier: models.TierFree}))
	mock.Advance(time.Minute)

	writes := store.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, map[string]any{models.FieldXP: 50}, writes[0])
}

func TestOnlyBillingFieldsDoNotArmTimer(t *testing.T) {
	c, _, mock := newTestCoordinator()
	c.ScheduleSync("u1", map[string]any{models.FieldSubscriptionTier: models.TierTotaal})
	assert.Equal(t, 0, mock.Pending())
}

func TestMinimumIntervalDefersWrite(t *testing.T) {
	c, store, mock := newTestCoordinator()

	c.ScheduleSync("u1", map[string]any{"a": 1})
	mock.Advance(2 * time.Second) // first write at t=2s
	require.Len(t, store.Writes(), 1)

	c.ScheduleSync("u1", map[string]any{"b": 2})
	mock.Advance(2 * time.Second) // debounce fires at t=4s, too soon
	require.Len(t, store.Writes(), 1)

	mock.Advance(2999 * time.Millisecond)
	require.Len(t, store.Writes(), 1)
	mock.Advance(time.Millisecond) // t=7s, five seconds after the first write
	writes := store.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, map[string]any{"b": 2}, writes[1])
}

func TestFailedWriteKeepsPayload(t *testing.T) {
	c, store, mock := newTestCoordinator()
	store.SetErr(errors.New("unavailable"))

	c.ScheduleSync("u1", map[string]any{"a": 1, "b": 2})
	mock.Advance(2 * time.Second)
	require.Len(t, store.Writes(), 1)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, c.Pending("u1"))

	// no retry timer of its own
	assert.Equal(t, 0, mock.Pending())
	mock.Advance(time.Hour)
	require.Len(t, store.Writes(), 1)

	store.SetErr(nil)
	c.ScheduleSync("u1", map[string]any{"c": 3})
	mock.Advance(2 * time.Second)
	writes := store.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, map[string]any{"a": 1, "b": 2, "c": 3}, writes[1])
	assert.Empty(t, c.Pending("u1"))
}

func TestChangeDuringWriteStaysPending(t *testing.T) {
	c, store, mock := newTestCoordinator()

	c.ScheduleSync("u1", map[string]any{"a": 1, "b": 1})
	store.during = func() {
		c.ScheduleSync("u1", map[string]any{"a": 2})
	}
	mock.Advance(2 * time.Second)

	require.Len(t, store.Writes(), 1)
	assert.Equal(t, map[string]any{"a": 2}, c.Pending("u1"))

	mock.Advance(10 * time.Second)
	writes := store.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, map[string]any{"a": 2}, writes[1])
}

func TestForceSyncCancelsTimer(t *testing.T) {
	c, store, mock := newTestCoordinator()

	c.ScheduleSync("u1", map[string]any{"a": 1})
	require.NoError(t, c.ForceSync(context.Background(), "u1", map[string]any{"b": 2}))

	writes := store.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, writes[0])
	assert.Equal(t, 0, mock.Pending())

	mock.Advance(time.Minute)
	assert.Len(t, store.Writes(), 1)
}

func TestPayloadIsCopiedOnSchedule(t *testing.T) {
	c, store, mock := newTestCoordinator()

	badges := []string{"streak-3"}
	c.ScheduleSync("u1", map[string]any{models.FieldEarnedBadges: badges})
	badges[0] = "mutated"
	mock.Advance(2 * time.Second)

	writes := store.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, []string{"streak-3"}, writes[0][models.FieldEarnedBadges])
}

func TestSyncTierWritesImmediately(t *testing.T) {
	c, store, mock := newTestCoordinator()

	c.ScheduleSync("u1", map[string]any{models.FieldXP: 10})
	err := c.SyncTier(context.Background(), "u1", TierUpdate{Tier: models.TierFocus, PrimarySubject: models.SubjectWiskundeB, StripeCustomerID: "cus_9"})
	require.NoError(t, err)

	writes := store.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, map[string]any{
		models.FieldSubscriptionTier: models.TierFocus,
		models.FieldIsPremium:        true,
		models.FieldPrimarySubject:   models.SubjectWiskundeB,
		models.FieldStripeCustomerID: "cus_9",
	}, writes[0])

	// the generic batch is untouched
	assert.Equal(t, map[string]any{models.FieldXP: 10}, c.Pending("u1"))
	mock.Advance(2 * time.Second)
	assert.Len(t, store.Writes(), 2)
}

func TestFlushWritesAllUsers(t *testing.T) {
	c, store, mock := newTestCoordinator()

	c.ScheduleSync("u1", map[string]any{"a": 1})
	c.ScheduleSync("u2", map[string]any{"b": 2})
	require.NoError(t, c.Flush(context.Background()))

	assert.Len(t, store.Writes(), 2)
	assert.Equal(t, 0, mock.Pending())
	assert.Empty(t, c.Pending("u1"))
	assert.Empty(t, c.Pending("u2"))
}
