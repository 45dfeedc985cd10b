package workitem

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("workitem.service",
	fx.Provide(
		NewStore,
		NewService,
		NewHTTPHandler,
	),
	fx.Invoke(
		migrate,
		RegisterRoutes,
	),
)

func migrate(db *gorm.DB) error {
	return AutoMigrate(db)
}
