package scheduler

import (
	"context"

	"go.uber.org/fx"

	"agentplane/services/workitem"
)

var Module = fx.Module("scheduler.service",
	fx.Provide(
		NewRegistry,
		NewExecutor,
		NewScheduler,
		asRunner,
		asEngineStatus,
	),
	fx.Invoke(run),
)

func asRunner(s *Scheduler) workitem.Runner { return s }

func asEngineStatus(s *Scheduler) workitem.EngineStatus { return s }

func run(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.Stop()
			return nil
		},
	})
}
