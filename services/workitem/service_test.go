package workitem

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"

	"agentplane/pkg/config"
	"agentplane/services/testutil"
)

type fakeEngine struct {
	tick     time.Time
	executed uint64
	failed   uint64
}

func (f *fakeEngine) LastTick() time.Time      { return f.tick }
func (f *fakeEngine) Totals() (uint64, uint64) { return f.executed, f.failed }

func newTestService(t *testing.T, engine EngineStatus) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &WorkItem{}, &AttemptRecord{})
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Scheduler.DefaultMaxRetries = 3

	return NewService(Params{
		Store:  NewStore(db),
		Node:   node,
		Config: cfg,
		Engine: engine,
	})
}

func TestSubmitDefaults(t *testing.T) {
	svc := newTestService(t, nil)

	before := time.Now()
	item, err := svc.Submit(context.Background(), SubmitInput{
		OwnerID: "owner-1",
		Kind:    KindReminder,
		Payload: json.RawMessage(`{"message":"stand up"}`),
	})
	require.NoError(t, err)

	require.NotEmpty(t, item.ID)
	require.Equal(t, StatusPending, item.Status)
	require.Equal(t, PriorityMedium, item.Priority)
	require.Equal(t, 3, item.MaxRetries)
	require.False(t, item.ScheduledFor.Before(before))
}

func TestSubmitValidation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitInput{Kind: KindOrder})
	require.Error(t, err, "owner is required")

	_, err = svc.Submit(ctx, SubmitInput{OwnerID: "o", Kind: "teleport"})
	require.Error(t, err, "unknown kind is rejected")

	_, err = svc.Submit(ctx, SubmitInput{OwnerID: "o", Kind: KindOrder, Priority: "asap"})
	require.Error(t, err, "unknown priority is rejected")

	negative := -1
	_, err = svc.Submit(ctx, SubmitInput{OwnerID: "o", Kind: KindOrder, MaxRetries: &negative})
	require.Error(t, err, "negative retry budget is rejected")

	_, err = svc.Submit(ctx, SubmitInput{
		OwnerID:    "o",
		Kind:       KindReminder,
		Recurrence: &Recurrence{Pattern: "hourly", Interval: 1},
	})
	require.Error(t, err, "unknown recurrence pattern is rejected")

	_, err = svc.Submit(ctx, SubmitInput{
		OwnerID:    "o",
		Kind:       KindReminder,
		Recurrence: &Recurrence{Pattern: RecurDaily, Interval: 0},
	})
	require.Error(t, err, "non-positive recurrence interval is rejected")
}

func TestSubmitRecurring(t *testing.T) {
	svc := newTestService(t, nil)

	end := time.Now().AddDate(0, 1, 0)
	item, err := svc.Submit(context.Background(), SubmitInput{
		OwnerID:  "owner-1",
		Kind:     KindReminder,
		Priority: "high",
		Recurrence: &Recurrence{
			Pattern:  RecurWeekly,
			Interval: 2,
			EndDate:  &end,
		},
	})
	require.NoError(t, err)

	rule, ok := item.Recurrence()
	require.True(t, ok)
	require.Equal(t, RecurWeekly, rule.Pattern)
	require.Equal(t, 2, rule.Interval)
	require.NotNil(t, rule.EndDate)
	require.Equal(t, PriorityHigh, item.Priority)
}

func TestForceExecuteWithoutRunner(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.ForceExecute(context.Background(), "any")
	require.Error(t, err)
}

func TestStats(t *testing.T) {
	engine := &fakeEngine{
		tick:     time.Now().Add(-5 * time.Second),
		executed: 42,
		failed:   7,
	}
	svc := newTestService(t, engine)
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitInput{OwnerID: "o", Kind: KindOrder, Payload: json.RawMessage(`{"action":"create"}`)})
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.CountsByStatus[StatusPending])
	require.NotNil(t, stats.LastTickAt)
	require.EqualValues(t, 42, stats.TotalExecuted)
	require.EqualValues(t, 7, stats.TotalFailed)
}

func TestPriorityJSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(PriorityUrgent)
	require.NoError(t, err)
	require.JSONEq(t, `"urgent"`, string(b))

	var p Priority
	require.NoError(t, json.Unmarshal([]byte(`"low"`), &p))
	require.Equal(t, PriorityLow, p)

	require.Error(t, json.Unmarshal([]byte(`"critical"`), &p))
}
