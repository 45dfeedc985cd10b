package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agentplane/pkg/config"
	"agentplane/pkg/metrics"
	"agentplane/services/workitem"
)

// Scheduler drives the two background loops: a discovery tick that claims and
// executes due items through a bounded worker pool, and a slower maintenance
// tick that reconciles stalled items and purges old terminal ones.
type Scheduler struct {
	store    *workitem.Store
	executor *Executor
	log      *zap.Logger

	discoveryInterval   time.Duration
	maintenanceInterval time.Duration
	poolSize            int
	batchSize           int
	stallTimeout        time.Duration
	retentionHorizon    time.Duration

	lastTick atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(store *workitem.Store, executor *Executor, cfg *config.Config, log *zap.Logger) *Scheduler {
	return &Scheduler{
		store:               store,
		executor:            executor,
		log:                 log.Named("scheduler"),
		discoveryInterval:   cfg.Scheduler.DiscoveryInterval,
		maintenanceInterval: cfg.Scheduler.MaintenanceInterval,
		poolSize:            cfg.Scheduler.PoolSize,
		batchSize:           cfg.Scheduler.BatchSize,
		stallTimeout:        cfg.Scheduler.StallTimeout,
		retentionHorizon:    cfg.Scheduler.RetentionHorizon,
	}
}

// Start launches the discovery and maintenance loops. The fx OnStart context
// only covers startup, so the loops run on their own cancellable context.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go s.discoveryLoop(ctx)
	go s.maintenanceLoop(ctx)

	s.log.Info("scheduler started",
		zap.Duration("discovery_interval", s.discoveryInterval),
		zap.Duration("maintenance_interval", s.maintenanceInterval),
		zap.Int("pool_size", s.poolSize),
	)
}

// Stop cancels both loops and waits for in-flight executions to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) discoveryLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.discoveryInterval)
	defer ticker.Stop()

	// Run one tick immediately so a restart does not wait a full interval
	// before picking up overdue items.
	s.discover(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.discover(ctx)
		}
	}
}

func (s *Scheduler) discover(ctx context.Context) {
	now := time.Now()
	s.lastTick.Store(now.UnixNano())
	metrics.LastDiscoveryTick.SetToCurrentTime()

	due, err := s.store.Due(ctx, now, s.batchSize)
	if err != nil {
		s.log.Error("discovery query failed", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	s.log.Debug("discovered due work items", zap.Int("count", len(due)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.poolSize)
	for _, item := range due {
		id := item.ID
		g.Go(func() error {
			_, err := s.executor.Process(gctx, id, false)
			switch {
			case err == nil:
			case errors.Is(err, workitem.ErrClaimConflict),
				errors.Is(err, workitem.ErrConfirmationRequired),
				errors.Is(err, workitem.ErrNotFound):
				// Another instance got there first, or the item changed
				// under us between discovery and claim. Not an error.
			default:
				s.log.Error("execution failed to record outcome",
					zap.String("work_item_id", id), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.maintain(ctx)
		}
	}
}

func (s *Scheduler) maintain(ctx context.Context) {
	now := time.Now()

	stuck, err := s.store.StuckRunning(ctx, now.Add(-s.stallTimeout))
	if err != nil {
		s.log.Error("stall query failed", zap.Error(err))
	} else {
		for i := range stuck {
			item := stuck[i]
			if err := s.executor.ReconcileStall(ctx, &item, now); err != nil {
				s.log.Error("stall reconciliation failed",
					zap.String("work_item_id", item.ID), zap.Error(err))
				continue
			}
			s.log.Warn("reconciled stalled work item",
				zap.String("work_item_id", item.ID),
				zap.Int("retry_count", item.RetryCount),
			)
		}
	}

	purged, err := s.store.PurgeTerminal(ctx, now.Add(-s.retentionHorizon))
	if err != nil {
		s.log.Error("retention purge failed", zap.Error(err))
	} else if purged > 0 {
		s.log.Info("purged terminal work items", zap.Int64("count", purged))
	}
}

// ExecuteNow implements workitem.Runner: it claims and runs the item
// immediately, ignoring its scheduled time.
func (s *Scheduler) ExecuteNow(ctx context.Context, id string) (*workitem.WorkItem, error) {
	return s.executor.Process(ctx, id, true)
}

// LastTick implements workitem.EngineStatus.
func (s *Scheduler) LastTick() time.Time {
	ns := s.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Totals implements workitem.EngineStatus.
func (s *Scheduler) Totals() (uint64, uint64) {
	return s.executor.Totals()
}
