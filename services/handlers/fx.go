package handlers

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"agentplane/services/scheduler"
)

var Module = fx.Module("handlers",
	fx.Provide(
		asHandler(NewOrderHandler),
		asHandler(NewPaymentHandler),
		asHandler(NewDataOperationHandler),
		asHandler(NewExternalCallHandler),
		asHandler(NewFileOperationHandler),
		asHandler(NewSystemCommandHandler),
		asHandler(NewNotificationHandler),
		asHandler(NewReminderHandler),
		asHandler(NewFreeformIntentHandler),
	),
	fx.Invoke(register),
)

func asHandler(ctor any) any {
	return fx.Annotate(ctor,
		fx.As(new(scheduler.Handler)),
		fx.ResultTags(`group:"work_handlers"`),
	)
}

type registerParams struct {
	fx.In
	Registry *scheduler.Registry
	Handlers []scheduler.Handler `group:"work_handlers"`
}

func register(p registerParams) error {
	for _, h := range p.Handlers {
		if err := p.Registry.Register(h); err != nil {
			return err
		}
		zap.L().Info("registered work item handler",
			zap.String("kind", string(h.Kind())),
			zap.Bool("retry_safe", h.RetrySafe()),
		)
	}
	return nil
}
