package workitem

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/datatypes"

	"agentplane/pkg/config"
	"agentplane/pkg/db/pagination"
)

// Runner force-executes one item immediately, bypassing its schedule but
// still going through the atomic claim. Implemented by the scheduler.
type Runner interface {
	ExecuteNow(ctx context.Context, id string) (*WorkItem, error)
}

// EngineStatus exposes scheduler liveness for the stats surface.
type EngineStatus interface {
	LastTick() time.Time
	Totals() (executed uint64, failed uint64)
}

type Service struct {
	store  *Store
	node   *snowflake.Node
	cfg    *config.Config
	runner Runner
	engine EngineStatus
}

type Params struct {
	fx.In
	Store  *Store
	Node   *snowflake.Node
	Config *config.Config
	Runner Runner       `optional:"true"`
	Engine EngineStatus `optional:"true"`
}

func NewService(p Params) *Service {
	return &Service{
		store:  p.Store,
		node:   p.Node,
		cfg:    p.Config,
		runner: p.Runner,
		engine: p.Engine,
	}
}

type SubmitInput struct {
	OwnerID              string          `json:"owner_id"`
	Kind                 Kind            `json:"kind"`
	Payload              json.RawMessage `json:"payload"`
	Priority             string          `json:"priority"`
	ScheduledFor         *time.Time      `json:"scheduled_for"`
	MaxRetries           *int            `json:"max_retries"`
	Recurrence           *Recurrence     `json:"recurrence"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
}

// Submit validates and persists a new work item with status pending.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*WorkItem, error) {
	if in.OwnerID == "" {
		return nil, fmt.Errorf("owner_id is required")
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("unknown work item kind %q", in.Kind)
	}

	priority := PriorityMedium
	if in.Priority != "" {
		p, err := ParsePriority(in.Priority)
		if err != nil {
			return nil, err
		}
		priority = p
	}

	maxRetries := s.cfg.Scheduler.DefaultMaxRetries
	if in.MaxRetries != nil {
		if *in.MaxRetries < 0 {
			return nil, fmt.Errorf("max_retries must not be negative")
		}
		maxRetries = *in.MaxRetries
	}

	scheduledFor := time.Now()
	if in.ScheduledFor != nil {
		scheduledFor = *in.ScheduledFor
	}

	item := &WorkItem{
		ID:                   s.node.Generate().String(),
		OwnerID:              in.OwnerID,
		Kind:                 in.Kind,
		Payload:              datatypes.JSON(in.Payload),
		Priority:             priority,
		Status:               StatusPending,
		ScheduledFor:         scheduledFor,
		MaxRetries:           maxRetries,
		RequiresConfirmation: in.RequiresConfirmation,
	}

	if in.Recurrence != nil {
		if !in.Recurrence.Pattern.Valid() {
			return nil, fmt.Errorf("unknown recurrence pattern %q", in.Recurrence.Pattern)
		}
		if in.Recurrence.Interval < 1 {
			return nil, fmt.Errorf("recurrence interval must be at least 1")
		}
		pattern := in.Recurrence.Pattern
		item.RecurrencePattern = &pattern
		item.RecurrenceInterval = in.Recurrence.Interval
		item.RecurrenceEndDate = in.Recurrence.EndDate
	}

	if err := s.store.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) Get(ctx context.Context, id string) (*WorkItem, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]WorkItem, *pagination.PageInfo, error) {
	return s.store.List(ctx, f)
}

func (s *Service) Cancel(ctx context.Context, id string) (*WorkItem, error) {
	return s.store.Cancel(ctx, id)
}

func (s *Service) Confirm(ctx context.Context, id string) (*WorkItem, error) {
	return s.store.Confirm(ctx, id, time.Now())
}

// ForceExecute runs a pending item immediately, bypassing its schedule.
func (s *Service) ForceExecute(ctx context.Context, id string) (*WorkItem, error) {
	if s.runner == nil {
		return nil, fmt.Errorf("scheduler is not running")
	}
	return s.runner.ExecuteNow(ctx, id)
}

type Stats struct {
	CountsByStatus map[Status]int64 `json:"counts_by_status"`
	LastTickAt     *time.Time       `json:"last_tick_at,omitempty"`
	TotalExecuted  uint64           `json:"total_executed"`
	TotalFailed    uint64           `json:"total_failed"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.store.CountsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{CountsByStatus: counts}
	if s.engine != nil {
		if tick := s.engine.LastTick(); !tick.IsZero() {
			stats.LastTickAt = &tick
		}
		stats.TotalExecuted, stats.TotalFailed = s.engine.Totals()
	}
	return stats, nil
}
