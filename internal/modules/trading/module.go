package trading

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/jonkers71/unified-trading-system/internal/engine"
	"github.com/jonkers71/unified-trading-system/internal/models"
	"github.com/jonkers71/unified-trading-system/internal/modules/config"
	"github.com/jonkers71/unified-trading-system/internal/notify"
	"github.com/jonkers71/unified-trading-system/internal/parser"
	"github.com/jonkers71/unified-trading-system/internal/perf"
	"github.com/jonkers71/unified-trading-system/internal/planner"
	"github.com/jonkers71/unified-trading-system/internal/protect"
	"github.com/jonkers71/unified-trading-system/internal/reconcile"
	"github.com/jonkers71/unified-trading-system/internal/risk"
	"github.com/jonkers71/unified-trading-system/internal/tracker"
	"github.com/jonkers71/unified-trading-system/internal/venue"
	"github.com/jonkers71/unified-trading-system/pkg/db"
)

// Module собирает торговый конвейер целиком: парсер, риск, планировщик,
// трекер поверх Postgres, защита, сверка, статистика и сам движок.
func Module() fx.Option {
	return fx.Module("trading",
		fx.Provide(
			NewParser,     // *parser.Parser
			NewSizer,      // *risk.Sizer
			NewPlanner,    // *planner.Planner
			NewDedup,      // *tracker.DedupCache
			NewStore,      // tracker.Store
			NewTracker,    // *tracker.Tracker
			NewMonitor,    // *protect.Monitor
			NewReconciler, // *reconcile.Engine
			NewPerf,       // *perf.Aggregator
			NewEngine,     // *engine.Engine
		),
		fx.Invoke(Run),
	)
}

func NewParser() *parser.Parser { return parser.New() }

func NewSizer(cfg *config.Config) *risk.Sizer {
	return risk.NewSizer(cfg.RiskFraction())
}

func NewPlanner(cfg *config.Config) *planner.Planner {
	return planner.New(cfg.Trading.TPSplit, cfg.Trading.FinalTarget)
}

func NewDedup(cfg *config.Config) *tracker.DedupCache {
	return tracker.NewDedupCache(cfg.DedupWindow, cfg.DedupPurgeAfter)
}

func NewStore(m *db.PgTxManager) tracker.Store { return tracker.NewPgStore(m) }

func NewTracker(cfg *config.Config, store tracker.Store) *tracker.Tracker {
	return tracker.New(store, cfg.HistoryTail)
}

func NewMonitor(
	cfg *config.Config,
	tr *tracker.Tracker,
	forex venue.ForexTerminal,
	crypto venue.CryptoExchange,
	prices protect.Prices,
	n notify.Notifier,
) *protect.Monitor {
	return protect.New(protect.Config{
		BEEnabled:     cfg.Trading.BEEnabled,
		BEBuffer:      cfg.Trading.BEBuffer,
		TrailEnabled:  cfg.Trading.TrailingEnabled,
		TrailDistance: cfg.Trading.TrailingDistance,
		Splits:        cfg.Trading.TPSplit,
		OrderTag:      fmt.Sprintf("%d", cfg.MT5.MagicNumber),
	}, tr, forex, crypto, prices, n)
}

func NewReconciler(
	cfg *config.Config,
	tr *tracker.Tracker,
	forex venue.ForexTerminal,
	crypto venue.CryptoExchange,
	n notify.Notifier,
) *reconcile.Engine {
	return reconcile.New(tr, forex, crypto, n, fmt.Sprintf("%d", cfg.MT5.MagicNumber))
}

func NewPerf(
	tr *tracker.Tracker,
	forex venue.ForexTerminal,
	crypto venue.CryptoExchange,
) *perf.Aggregator {
	return perf.New(tr, forex, crypto)
}

func NewEngine(
	cfg *config.Config,
	p *parser.Parser,
	sz *risk.Sizer,
	pl *planner.Planner,
	tr *tracker.Tracker,
	dd *tracker.DedupCache,
	mon *protect.Monitor,
	rec *reconcile.Engine,
	agg *perf.Aggregator,
	forex venue.ForexTerminal,
	crypto venue.CryptoExchange,
	prices protect.Prices,
	n notify.Notifier,
	h engine.Health,
) *engine.Engine {
	return engine.New(engine.Deps{
		Config:     cfg,
		Parser:     p,
		Sizer:      sz,
		Planner:    pl,
		Tracker:    tr,
		Dedup:      dd,
		Monitor:    mon,
		Reconciler: rec,
		Perf:       agg,
		Forex:      forex,
		Crypto:     crypto,
		Prices:     prices,
		Notifier:   n,
		Health:     h,
	})
}

// Run поднимает движок. Журнал позиций грузим синхронно: до него нет
// смысла стартовать ни сверку, ни приём алертов.
func Run(lc fx.Lifecycle, tr *tracker.Tracker, prices protect.Prices, eng *engine.Engine) {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := tr.Load(ctx); err != nil {
				cancel()
				return err
			}
			// Подписки на тикеры ведомых криптопозиций: промах кэша
			// сам ставит подписку, поэтому достаточно спросить цену.
			if prices != nil {
				for _, p := range tr.All() {
					if p.Venue == models.VenueCrypto {
						prices.LastPrice(p.Symbol)
					}
				}
			}
			go func() {
				defer close(done)
				eng.Run(runCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
