package bybit

import (
	"context"

	"go.uber.org/fx"

	"github.com/jonkers71/unified-trading-system/internal/modules/bybit/service"
	"github.com/jonkers71/unified-trading-system/internal/modules/config"
	"github.com/jonkers71/unified-trading-system/internal/protect"
	"github.com/jonkers71/unified-trading-system/internal/venue"
)

func Module() fx.Option {
	return fx.Module("bybit",
		fx.Provide(
			service.NewClient,
			service.NewTickerCache,
			// Выключенную биржу отдаём как nil: движок закрывает маршрут сам.
			func(cfg *config.Config, c *service.Client) venue.CryptoExchange {
				if !cfg.Bybit.Enabled {
					return nil
				}
				return c
			},
			func(cfg *config.Config, t *service.TickerCache) protect.Prices {
				if !cfg.Bybit.Enabled {
					return nil
				}
				return t
			},
		),
		fx.Invoke(RunTicker),
	)
}

// RunTicker держит тикерный поток весь срок жизни процесса.
func RunTicker(lc fx.Lifecycle, cfg *config.Config, t *service.TickerCache) {
	if !cfg.Bybit.Enabled {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				t.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
