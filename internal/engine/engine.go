// Package engine — сердце сервиса: принимает алерты каналов, гонит их
// через конвейер до ордеров на площадках и крутит фоновые циклы защиты,
// сверки, статистики и проб задержки.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
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
	"github.com/jonkers71/unified-trading-system/pkg/logger"
	"github.com/jonkers71/unified-trading-system/pkg/tracing"
)

const alertQueueSize = 256

// Health — срез состояния сервиса, который движок держит актуальным.
// Реализация живёт в health-модуле на атомиках.
type Health interface {
	SetReady(ready bool)
	SetVenueUp(v models.Venue, up bool)
	SetLatency(v models.Venue, d time.Duration)
	AuthOK(v models.Venue) bool
	SetAuthOK(v models.Venue, ok bool)
	SetPerf(stats *models.PerformanceStats)
}

// Deps — всё, что нужно движку. Собирает fx-модуль.
type Deps struct {
	Config     *config.Config
	Parser     *parser.Parser
	Sizer      *risk.Sizer
	Planner    *planner.Planner
	Tracker    *tracker.Tracker
	Dedup      *tracker.DedupCache
	Monitor    *protect.Monitor
	Reconciler *reconcile.Engine
	Perf       *perf.Aggregator
	Forex      venue.ForexTerminal
	Crypto     venue.CryptoExchange
	Prices     protect.Prices
	Notifier   notify.Notifier
	Health     Health
}

type alert struct {
	text string
	chat int64
}

// Engine однопоточен по торговым решениям: алерты разбирает один воркер,
// циклы защиты и сверки ходят под тем же мьютексом. Гонок за позицию нет.
type Engine struct {
	cfg      *config.Config
	parser   *parser.Parser
	sizer    *risk.Sizer
	planner  *planner.Planner
	tracker  *tracker.Tracker
	dedup    *tracker.DedupCache
	monitor  *protect.Monitor
	rec      *reconcile.Engine
	perf     *perf.Aggregator
	forex    venue.ForexTerminal
	crypto   venue.CryptoExchange
	prices   protect.Prices
	notifier notify.Notifier
	health   Health

	channels map[int64]models.ChannelMeta
	orderTag string

	mu     sync.Mutex
	alerts chan alert

	newID func() string
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func New(d Deps) *Engine {
	e := &Engine{
		cfg:      d.Config,
		parser:   d.Parser,
		sizer:    d.Sizer,
		planner:  d.Planner,
		tracker:  d.Tracker,
		dedup:    d.Dedup,
		monitor:  d.Monitor,
		rec:      d.Reconciler,
		perf:     d.Perf,
		forex:    d.Forex,
		crypto:   d.Crypto,
		prices:   d.Prices,
		notifier: d.Notifier,
		health:   d.Health,
		channels: make(map[int64]models.ChannelMeta),
		orderTag: fmt.Sprintf("%d", d.Config.MT5.MagicNumber),
		alerts:   make(chan alert, alertQueueSize),
		newID:    uuid.NewString,
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, ch := range d.Config.Channels {
		e.channels[ch.ID] = models.ChannelMeta{ID: ch.ID, Name: ch.Name, Venue: models.Venue(ch.Type)}
	}
	if e.notifier == nil {
		e.notifier = notify.NewStdout()
	}
	return e
}

// OnAlert принимает сырой текст поста канала. Вызывающего не блокирует:
// обработка идёт в воркере, а при переполненной очереди алерт теряется
// с логом. Непрослушиваемые каналы отсекаются сразу.
func (e *Engine) OnAlert(text string, channelID int64) {
	if _, ok := e.channels[channelID]; !ok {
		return
	}
	select {
	case e.alerts <- alert{text: text, chat: channelID}:
	default:
		logger.Error("alert queue full, dropping message from channel %d", channelID)
	}
}

// Run блокируется до отмены контекста. Сначала стартовая сверка с
// площадками и первая проба связи, и только после этого сервис считается
// готовым и воркер начинает разбирать накопленные алерты.
func (e *Engine) Run(ctx context.Context) {
	e.rec.Run(ctx)
	e.probePass(ctx)
	e.health.SetReady(true)
	logger.Info("engine is live: %d channels monitored", len(e.channels))

	var wg sync.WaitGroup
	for _, loop := range []func(context.Context){
		e.alertWorker,
		e.protectionLoop,
		e.reconcileLoop,
		e.probeLoop,
		e.perfLoop,
	} {
		wg.Add(1)
		go func(fn func(context.Context)) {
			defer wg.Done()
			fn(ctx)
		}(loop)
	}
	wg.Wait()
	e.health.SetReady(false)
}

func (e *Engine) alertWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-e.alerts:
			e.handleAlert(ctx, a)
		}
	}
}

func (e *Engine) handleAlert(ctx context.Context, a alert) {
	meta, ok := e.channels[a.chat]
	if !ok {
		return
	}

	span, ctx := tracing.StartSpan(ctx, "engine.alert")
	defer span.Finish()

	sig := e.parser.Parse(a.text, meta)
	if sig == nil {
		// Канал шумит: не похоже на сигнал, молча мимо.
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if sig.IsUpdate() {
		e.applyUpdate(ctx, sig)
		return
	}
	e.placeSignal(ctx, sig)
}

func (e *Engine) protectionLoop(ctx context.Context) {
	if e.monitor == nil {
		return
	}
	ticker := time.NewTicker(e.cfg.ProtectionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			e.monitor.RunPass(ctx)
			e.mu.Unlock()
		}
	}
}

func (e *Engine) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			e.rec.Run(ctx)
			e.mu.Unlock()
		}
	}
}

// perfLoop не трогает позиции и поэтому не ходит под мьютексом:
// медленные выгрузки истории не должны тормозить защиту.
func (e *Engine) perfLoop(ctx context.Context) {
	if e.perf == nil {
		return
	}
	ticker := time.NewTicker(e.cfg.PerfInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := e.perf.Refresh(ctx)
			e.health.SetPerf(&stats)
		}
	}
}

func (e *Engine) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.LatencyInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.probePass(ctx)
		}
	}
}

// probePass меряет живость и задержку площадок. Здесь же снимается
// деградация авторизации: лёгкий приватный вызов прошёл — ордера
// снова разрешены.
func (e *Engine) probePass(ctx context.Context) {
	if e.forex != nil && e.cfg.MT5.Enabled {
		e.probeVenue(ctx, models.VenueForex, e.forex.Ping, e.forexAuthProbe)
	}
	if e.crypto != nil && e.cfg.Bybit.Enabled {
		e.probeVenue(ctx, models.VenueCrypto, e.crypto.Ping, e.cryptoAuthProbe)
	}
}

func (e *Engine) probeVenue(
	ctx context.Context,
	v models.Venue,
	ping func(context.Context) (time.Duration, error),
	auth func(context.Context) error,
) {
	lat, err := ping(ctx)
	if err != nil {
		logger.Error("%s ping: %v", venueName(v), err)
		e.health.SetVenueUp(v, false)
		return
	}
	e.health.SetVenueUp(v, true)
	e.health.SetLatency(v, lat)

	if !e.health.AuthOK(v) {
		if err := auth(ctx); err != nil {
			logger.Error("%s auth still degraded: %v", venueName(v), err)
			return
		}
		e.health.SetAuthOK(v, true)
		logger.Info("%s auth recovered", venueName(v))
		e.notifier.Sendf("🔑 [%s] Авторизация восстановлена, ордера снова идут", venueName(v))
	}
}

func (e *Engine) forexAuthProbe(ctx context.Context) error {
	_, err := e.forex.AccountBalance(ctx)
	return err
}

func (e *Engine) cryptoAuthProbe(ctx context.Context) error {
	_, err := e.crypto.WalletBalance(ctx)
	return err
}

func venueName(v models.Venue) string {
	if v == models.VenueCrypto {
		return "Bybit"
	}
	return "MT5"
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
