package mt5

import (
	"go.uber.org/fx"

	"github.com/jonkers71/unified-trading-system/internal/modules/config"
	"github.com/jonkers71/unified-trading-system/internal/modules/mt5/service"
	"github.com/jonkers71/unified-trading-system/internal/venue"
)

func Module() fx.Option {
	return fx.Module("mt5",
		fx.Provide(
			service.NewClient,
			// Выключенный терминал отдаём как nil: движок закрывает
			// этот маршрут сам, площадка не пробуется и не пингуется.
			func(cfg *config.Config, c *service.Client) venue.ForexTerminal {
				if !cfg.MT5.Enabled {
					return nil
				}
				return c
			},
		),
	)
}
