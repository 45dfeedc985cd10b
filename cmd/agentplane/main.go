package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"agentplane/internal/server"
	asynqpkg "agentplane/pkg/asynq"
	"agentplane/pkg/config"
	"agentplane/pkg/db"
	"agentplane/pkg/health"
	"agentplane/pkg/logger"
	"agentplane/pkg/redis"
	"agentplane/services/handlers"
	"agentplane/services/intent"
	"agentplane/services/notify"
	"agentplane/services/scheduler"
	"agentplane/services/workitem"
)

func main() {
	app := fx.New(
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),

		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		asynqpkg.Client,
		asynqpkg.Server,
		health.Module,
		server.Module,

		fx.Provide(newSnowflakeNode),

		workitem.Module,
		scheduler.Module,
		handlers.Module,
		intent.Module,
		notify.Module,
	)

	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
