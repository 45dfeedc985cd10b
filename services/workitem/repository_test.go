package workitem

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"agentplane/pkg/db/pagination"
	"agentplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := testutil.NewTestDB(t, &WorkItem{}, &AttemptRecord{})
	return NewStore(db)
}

func seedItem(t *testing.T, store *Store, mutate func(*WorkItem)) *WorkItem {
	t.Helper()
	item := &WorkItem{
		ID:           time.Now().Format("20060102150405.000000000"),
		OwnerID:      "owner-1",
		Kind:         KindNotification,
		Priority:     PriorityMedium,
		Status:       StatusPending,
		ScheduledFor: time.Now().Add(-time.Minute),
		MaxRetries:   3,
	}
	if mutate != nil {
		mutate(item)
	}
	require.NoError(t, store.Create(context.Background(), item))
	return item
}

func TestClaimAtMostOnce(t *testing.T) {
	store := newTestStore(t)
	item := seedItem(t, store, func(w *WorkItem) { w.ID = "claim-race" })

	const claimers = 10
	var wg sync.WaitGroup
	wins := make(chan *WorkItem, claimers)
	losses := make(chan error, claimers)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.Claim(context.Background(), item.ID, time.Now(), false)
			if err != nil {
				losses <- err
				return
			}
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)
	close(losses)

	require.Len(t, wins, 1, "exactly one claimer must win")
	for err := range losses {
		require.ErrorIs(t, err, ErrClaimConflict)
	}

	winner := <-wins
	require.Equal(t, StatusRunning, winner.Status)
	require.NotNil(t, winner.StartedAt)
}

func TestClaimNotYetDue(t *testing.T) {
	store := newTestStore(t)
	item := seedItem(t, store, func(w *WorkItem) {
		w.ScheduledFor = time.Now().Add(time.Hour)
	})

	_, err := store.Claim(context.Background(), item.ID, time.Now(), false)
	require.ErrorIs(t, err, ErrClaimConflict)

	// Force bypasses the schedule check but not the state machine.
	claimed, err := store.Claim(context.Background(), item.ID, time.Now(), true)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, claimed.Status)
}

func TestClaimUnconfirmed(t *testing.T) {
	store := newTestStore(t)
	item := seedItem(t, store, func(w *WorkItem) {
		w.RequiresConfirmation = true
	})

	_, err := store.Claim(context.Background(), item.ID, time.Now(), false)
	require.ErrorIs(t, err, ErrConfirmationRequired)

	// Force execution must not bypass the confirmation gate either.
	_, err = store.Claim(context.Background(), item.ID, time.Now(), true)
	require.ErrorIs(t, err, ErrConfirmationRequired)

	_, err = store.Confirm(context.Background(), item.ID, time.Now())
	require.NoError(t, err)

	claimed, err := store.Claim(context.Background(), item.ID, time.Now(), false)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, claimed.Status)
}

func TestClaimMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Claim(context.Background(), "nope", time.Now(), false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancelOnlyPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pending := seedItem(t, store, nil)
	cancelled, err := store.Cancel(ctx, pending.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	// A cancelled item can never be claimed again.
	_, err = store.Claim(ctx, pending.ID, time.Now(), true)
	require.ErrorIs(t, err, ErrClaimConflict)

	running := seedItem(t, store, func(w *WorkItem) { w.ID = "cancel-running" })
	_, err = store.Claim(ctx, running.ID, time.Now(), false)
	require.NoError(t, err)

	_, err = store.Cancel(ctx, running.ID)
	require.ErrorIs(t, err, ErrNotCancellable)

	_, err = store.Cancel(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteAppendsHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := seedItem(t, store, nil)
	claimed, err := store.Claim(ctx, item.ID, time.Now(), false)
	require.NoError(t, err)

	rec := AttemptRecord{
		Attempt:       1,
		Outcome:       OutcomeSuccess,
		StartedAt:     time.Now(),
		DurationMS:    12,
		ResultSummary: "done",
	}
	require.NoError(t, store.Complete(ctx, claimed, rec))

	got, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Len(t, got.Attempts, 1)
	require.Equal(t, OutcomeSuccess, got.Attempts[0].Outcome)
	require.Equal(t, "done", got.Attempts[0].ResultSummary)
}

func TestTransitionVersionConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := seedItem(t, store, nil)
	claimed, err := store.Claim(ctx, item.ID, time.Now(), false)
	require.NoError(t, err)

	rec := AttemptRecord{Attempt: 1, Outcome: OutcomeSuccess, StartedAt: time.Now()}
	require.NoError(t, store.Complete(ctx, claimed, rec))

	// Re-applying with the stale version must fail and append nothing.
	err = store.Complete(ctx, claimed, rec)
	require.ErrorIs(t, err, ErrVersionConflict)

	got, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, got.Attempts, 1)
}

func TestRetryLaterReschedules(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := seedItem(t, store, nil)
	claimed, err := store.Claim(ctx, item.ID, time.Now(), false)
	require.NoError(t, err)

	nextRetry := time.Now().Add(2 * time.Minute)
	rec := AttemptRecord{Attempt: 1, Outcome: OutcomeFailure, StartedAt: time.Now(), ErrorMessage: "boom"}
	require.NoError(t, store.RetryLater(ctx, claimed, nextRetry, rec))

	got, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, 1, got.RetryCount)
	require.Equal(t, "boom", got.LastError)
	require.Nil(t, got.StartedAt)
	require.NotNil(t, got.NextRetryAt)
	require.WithinDuration(t, nextRetry, got.ScheduledFor, time.Second)
}

func TestRequeueResetsRetryBudget(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := seedItem(t, store, func(w *WorkItem) { w.RetryCount = 2 })
	claimed, err := store.Claim(ctx, item.ID, time.Now(), false)
	require.NoError(t, err)

	next := time.Now().Add(24 * time.Hour)
	rec := AttemptRecord{Attempt: 3, Outcome: OutcomeSuccess, StartedAt: time.Now()}
	require.NoError(t, store.Requeue(ctx, claimed, next, rec))

	got, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, 0, got.RetryCount)
	require.Empty(t, got.LastError)
	require.WithinDuration(t, next, got.ScheduledFor, time.Second)
}

func TestDueOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	seedItem(t, store, func(w *WorkItem) {
		w.ID = "low"
		w.Priority = PriorityLow
		w.ScheduledFor = now.Add(-3 * time.Hour)
	})
	seedItem(t, store, func(w *WorkItem) {
		w.ID = "urgent"
		w.Priority = PriorityUrgent
		w.ScheduledFor = now.Add(-time.Minute)
	})
	seedItem(t, store, func(w *WorkItem) {
		w.ID = "medium"
		w.Priority = PriorityMedium
		w.ScheduledFor = now.Add(-2 * time.Hour)
	})
	seedItem(t, store, func(w *WorkItem) {
		w.ID = "future"
		w.Priority = PriorityUrgent
		w.ScheduledFor = now.Add(time.Hour)
	})
	seedItem(t, store, func(w *WorkItem) {
		w.ID = "gated"
		w.Priority = PriorityUrgent
		w.ScheduledFor = now.Add(-time.Minute)
		w.RequiresConfirmation = true
	})

	due, err := store.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	require.Equal(t, "urgent", due[0].ID)
	require.Equal(t, "medium", due[1].ID)
	require.Equal(t, "low", due[2].ID)
}

func TestStuckRunning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	stale := seedItem(t, store, func(w *WorkItem) { w.ID = "stale" })
	_, err := store.Claim(ctx, stale.ID, now.Add(-time.Hour), false)
	require.NoError(t, err)

	fresh := seedItem(t, store, func(w *WorkItem) { w.ID = "fresh" })
	_, err = store.Claim(ctx, fresh.ID, now, false)
	require.NoError(t, err)

	stuck, err := store.StuckRunning(ctx, now.Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	require.Equal(t, "stale", stuck[0].ID)
}

func TestPurgeTerminal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := seedItem(t, store, func(w *WorkItem) { w.ID = "old-done" })
	claimed, err := store.Claim(ctx, old.ID, time.Now(), false)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, claimed, AttemptRecord{
		Attempt: 1, Outcome: OutcomeSuccess, StartedAt: time.Now(),
	}))

	keep := seedItem(t, store, func(w *WorkItem) { w.ID = "keep-pending" })

	purged, err := store.PurgeTerminal(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	_, err = store.Get(ctx, old.ID)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := store.Get(ctx, keep.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
}

func TestListFiltersAndPaginates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		item := &WorkItem{
			ID:           fmt.Sprintf("item-%d", i),
			OwnerID:      "owner-1",
			Kind:         KindOrder,
			Priority:     PriorityMedium,
			Status:       StatusPending,
			ScheduledFor: base,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.Create(ctx, item))
	}
	seedItem(t, store, func(w *WorkItem) {
		w.ID = "other-owner"
		w.OwnerID = "owner-2"
	})

	items, page, err := store.List(ctx, ListFilter{
		OwnerID:    "owner-1",
		Pagination: pagination.Pagination{Limit: 3},
	})
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.True(t, page.HasMore)
	require.Equal(t, "item-4", items[0].ID, "newest first")

	items, page, err = store.List(ctx, ListFilter{
		OwnerID:    "owner-1",
		Pagination: pagination.Pagination{Limit: 3, Cursor: page.NextCursor},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.False(t, page.HasMore)
	require.Equal(t, "item-0", items[1].ID)
}

func TestCountsByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedItem(t, store, func(w *WorkItem) { w.ID = "a" })
	seedItem(t, store, func(w *WorkItem) { w.ID = "b" })
	item := seedItem(t, store, func(w *WorkItem) { w.ID = "c" })
	_, err := store.Claim(ctx, item.ID, time.Now(), false)
	require.NoError(t, err)

	counts, err := store.CountsByStatus(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, counts[StatusPending])
	require.EqualValues(t, 1, counts[StatusRunning])
}
