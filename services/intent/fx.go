package intent

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"agentplane/pkg/config"
)

var Module = fx.Module("intent.service",
	fx.Provide(
		provideClassifier,
		NewHTTPHandler,
	),
	fx.Invoke(RegisterRoutes),
)

func provideClassifier(cfg *config.Config) Classifier {
	if cfg.Intent.Addr == "" {
		zap.L().Info("no intent classifier configured, using keyword fallback")
		return KeywordClassifier{}
	}
	return NewHTTPClassifier(cfg)
}
