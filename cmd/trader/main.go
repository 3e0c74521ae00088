package main

import (
	"context"
	"log"

	"go.uber.org/fx"

	"github.com/jonkers71/unified-trading-system/internal/modules/bybit"
	"github.com/jonkers71/unified-trading-system/internal/modules/config"
	"github.com/jonkers71/unified-trading-system/internal/modules/health"
	"github.com/jonkers71/unified-trading-system/internal/modules/mt5"
	"github.com/jonkers71/unified-trading-system/internal/modules/postgres"
	"github.com/jonkers71/unified-trading-system/internal/modules/telegram"
	"github.com/jonkers71/unified-trading-system/internal/modules/trading"
	"github.com/jonkers71/unified-trading-system/pkg/logger"
	"github.com/jonkers71/unified-trading-system/pkg/tracing"
)

func main() {
	if err := logger.Init("trader"); err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	// Порядок модулей задаёт порядок стартовых хуков: телеграм подключаем
	// последним, чтобы первые посты упали в уже загруженный движок.
	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		fx.Invoke(initTracing),
		postgres.Module(),
		mt5.Module(),
		bybit.Module(),
		health.Module(),
		trading.Module(),
		telegram.Module(),
	)
	app.Run()
}

// Трейсер глобальный, гасим его вместе с приложением.
func initTracing(lc fx.Lifecycle, cfg *config.Config) error {
	if !cfg.Tracing.Enabled {
		return nil
	}
	tracing.SetServiceName("trader")
	_, closeTracer, err := tracing.InitTracer(tracing.Config{AgentHostPort: cfg.Tracing.AgentHostPort})
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeTracer()
			return nil
		},
	})
	return nil
}
