package telegram

import (
	"context"

	"go.uber.org/fx"

	"github.com/jonkers71/unified-trading-system/internal/engine"
	"github.com/jonkers71/unified-trading-system/internal/modules/telegram/service"
	"github.com/jonkers71/unified-trading-system/internal/notify"
)

func Module() fx.Option {
	return fx.Module("telegram",
		// 1. Сервис Telegram как *service.Telegram
		fx.Provide(
			service.NewTelegram, // func(*config.Config) (*service.Telegram, error)
		),

		// 2. Адаптер: *service.Telegram -> notify.Notifier
		fx.Provide(
			func(t *service.Telegram) notify.Notifier {
				return t
			},
		),

		// Цикл обновлений через Lifecycle. Сток подключаем до старта,
		// чтобы не потерять первые посты.
		fx.Invoke(
			func(lc fx.Lifecycle, t *service.Telegram, eng *engine.Engine) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						t.SetSink(eng)
						go func() { _ = t.Start(ctx) }()
						return nil
					},
					OnStop: func(ctx context.Context) error {
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
