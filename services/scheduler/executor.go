package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"agentplane/pkg/config"
	"agentplane/pkg/metrics"
	"agentplane/services/notify"
	"agentplane/services/workitem"
)

// Executor claims one due item, invokes the matching handler and records the
// outcome. Handler errors stop here: they become a history record plus a
// state transition and never reach the scheduler loop.
type Executor struct {
	store      *workitem.Store
	registry   *Registry
	dispatcher notify.Dispatcher
	log        *zap.Logger

	handlerTimeout time.Duration
	backoffUnit    time.Duration

	executed atomic.Uint64
	failed   atomic.Uint64
}

func NewExecutor(store *workitem.Store, registry *Registry, dispatcher notify.Dispatcher, cfg *config.Config, log *zap.Logger) *Executor {
	return &Executor{
		store:          store,
		registry:       registry,
		dispatcher:     dispatcher,
		log:            log.Named("executor"),
		handlerTimeout: cfg.Scheduler.HandlerTimeout,
		backoffUnit:    cfg.Scheduler.BackoffUnit,
	}
}

// Totals reports lifetime executed/failed handler invocations.
func (e *Executor) Totals() (uint64, uint64) {
	return e.executed.Load(), e.failed.Load()
}

// Process claims and executes one item. A lost claim comes back as
// workitem.ErrClaimConflict, which callers treat as a skip, not a failure.
// When force is set the schedule check is bypassed; the claim is not.
func (e *Executor) Process(ctx context.Context, id string, force bool) (*workitem.WorkItem, error) {
	now := time.Now()

	item, err := e.store.Claim(ctx, id, now, force)
	if err != nil {
		if errors.Is(err, workitem.ErrClaimConflict) {
			metrics.ClaimConflicts.Inc()
		}
		return nil, err
	}

	handler, err := e.registry.Resolve(item.Kind)
	if err != nil {
		// No handler will ever succeed for this item; fail terminally
		// without consuming the retry budget.
		rec := workitem.AttemptRecord{
			Attempt:      item.RetryCount + 1,
			Outcome:      workitem.OutcomeFailure,
			StartedAt:    now,
			ErrorMessage: err.Error(),
		}
		e.failed.Add(1)
		metrics.ItemsExecuted.WithLabelValues("failure", string(item.Kind)).Inc()
		if serr := e.store.Fail(ctx, item, rec); serr != nil {
			e.log.Error("failed to record unknown-kind failure; item left running",
				zap.String("work_item_id", item.ID), zap.Error(serr))
			return nil, serr
		}
		e.notifyOwner(ctx, item, notify.EventFailed, err.Error())
		return e.store.Get(ctx, item.ID)
	}

	start := time.Now()
	hctx, cancel := context.WithTimeout(ctx, e.handlerTimeout)
	result, herr := handler.Execute(hctx, Attempt{Item: item, Number: item.RetryCount + 1})
	cancel()
	duration := time.Since(start)

	if herr != nil && errors.Is(herr, context.DeadlineExceeded) {
		herr = fmt.Errorf("handler timed out after %s: %w", e.handlerTimeout, herr)
	}

	metrics.ExecutionDuration.WithLabelValues(string(item.Kind)).Observe(duration.Seconds())

	rec := workitem.AttemptRecord{
		Attempt:    item.RetryCount + 1,
		StartedAt:  start,
		DurationMS: duration.Milliseconds(),
	}

	var serr error
	if herr == nil {
		rec.Outcome = workitem.OutcomeSuccess
		rec.ResultSummary = result.Summary
		e.executed.Add(1)
		metrics.ItemsExecuted.WithLabelValues("success", string(item.Kind)).Inc()
		serr = e.applySuccess(ctx, item, rec)
	} else {
		rec.Outcome = workitem.OutcomeFailure
		rec.ErrorMessage = herr.Error()
		e.failed.Add(1)
		metrics.ItemsExecuted.WithLabelValues("failure", string(item.Kind)).Inc()
		serr = e.applyFailure(ctx, item, rec, now)
	}

	if serr != nil {
		// Leave the item running; the maintenance sweep reconciles it.
		e.log.Error("failed to record execution outcome; item left running",
			zap.String("work_item_id", item.ID),
			zap.String("kind", string(item.Kind)),
			zap.Error(serr),
		)
		return nil, serr
	}

	return e.store.Get(ctx, item.ID)
}

func (e *Executor) applySuccess(ctx context.Context, item *workitem.WorkItem, rec workitem.AttemptRecord) error {
	if rule, ok := item.Recurrence(); ok {
		if next, more := workitem.NextOccurrence(item.ScheduledFor, rule); more {
			e.log.Debug("re-arming recurring work item",
				zap.String("work_item_id", item.ID), zap.Time("next", next))
			return e.store.Requeue(ctx, item, next, rec)
		}
	}

	if err := e.store.Complete(ctx, item, rec); err != nil {
		return err
	}
	e.notifyOwner(ctx, item, notify.EventCompleted, rec.ResultSummary)
	return nil
}

func (e *Executor) applyFailure(ctx context.Context, item *workitem.WorkItem, rec workitem.AttemptRecord, now time.Time) error {
	if item.RetryCount >= item.MaxRetries {
		if err := e.store.Fail(ctx, item, rec); err != nil {
			return err
		}
		e.log.Warn("work item failed terminally",
			zap.String("work_item_id", item.ID),
			zap.String("kind", string(item.Kind)),
			zap.Int("attempts", rec.Attempt),
			zap.String("error", rec.ErrorMessage),
		)
		e.notifyOwner(ctx, item, notify.EventFailed, rec.ErrorMessage)
		return nil
	}

	// Linear backoff: the Nth retry waits N backoff units.
	nextRetry := now.Add(time.Duration(item.RetryCount+1) * e.backoffUnit)
	return e.store.RetryLater(ctx, item, nextRetry, rec)
}

// ReconcileStall applies the failure transition to an item stuck in running,
// as if its handler had errored, respecting the retry budget.
func (e *Executor) ReconcileStall(ctx context.Context, item *workitem.WorkItem, now time.Time) error {
	startedAt := now
	if item.StartedAt != nil {
		startedAt = *item.StartedAt
	}

	rec := workitem.AttemptRecord{
		Attempt:      item.RetryCount + 1,
		Outcome:      workitem.OutcomeFailure,
		StartedAt:    startedAt,
		DurationMS:   now.Sub(startedAt).Milliseconds(),
		ErrorMessage: "execution stalled: no outcome recorded before the stall timeout",
	}

	metrics.ItemsReconciled.Inc()
	e.failed.Add(1)
	return e.applyFailure(ctx, item, rec, now)
}

func (e *Executor) notifyOwner(ctx context.Context, item *workitem.WorkItem, event, message string) {
	err := e.dispatcher.Notify(ctx, item.OwnerID, notify.Event{
		WorkItemID: item.ID,
		Kind:       string(item.Kind),
		Type:       event,
		Message:    message,
		OccurredAt: time.Now(),
	})
	if err != nil {
		e.log.Warn("notification dispatch failed",
			zap.String("owner_id", item.OwnerID),
			zap.String("work_item_id", item.ID),
			zap.Error(err),
		)
	}
}
