package notify

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	asynqpkg "agentplane/pkg/asynq"
	"agentplane/pkg/config"
)

var Module = fx.Module("notify.service",
	fx.Provide(
		NewWorker,
		provideDispatcher,
	),
	fx.Invoke(registerWorker),
)

type dispatcherParams struct {
	fx.In
	Config *config.Config
	Client *asynq.Client `optional:"true"`
}

func provideDispatcher(p dispatcherParams) Dispatcher {
	if !p.Config.Notify.Enabled || p.Client == nil {
		zap.L().Info("notifications disabled, using nop dispatcher")
		return NopDispatcher{}
	}
	return NewAsynqDispatcher(p.Client)
}

type workerParams struct {
	fx.In
	Mux    *asynq.ServeMux `optional:"true"`
	Worker *Worker
}

func registerWorker(p workerParams) {
	if p.Mux == nil {
		return
	}
	p.Mux.HandleFunc(asynqpkg.NotifyEventTask, p.Worker.HandleNotifyEvent)
}
