package protect

import (
	"context"
	"time"

	"github.com/jonkers71/unified-trading-system/internal/helper"
	"github.com/jonkers71/unified-trading-system/internal/models"
	"github.com/jonkers71/unified-trading-system/internal/notify"
	"github.com/jonkers71/unified-trading-system/internal/tracker"
	"github.com/jonkers71/unified-trading-system/internal/venue"
	"github.com/jonkers71/unified-trading-system/pkg/logger"
	"github.com/jonkers71/unified-trading-system/pkg/tracing"
)

// Prices — последняя цена криптоинструмента. Реализация — тикерный
// WebSocket-кэш Bybit с REST-фоллбэком внутри.
type Prices interface {
	LastPrice(symbol string) (float64, bool)
}

type Config struct {
	BEEnabled     bool
	BEBuffer      float64 // пункты терминала, для крипты — б.п. цены
	TrailEnabled  bool
	TrailDistance float64 // та же единица, что и BEBuffer
	Splits        []float64
	OrderTag      string // фильтр позиций терминала (magic)
}

// Monitor за один проход обслуживает все живые позиции обеих площадок:
// частичные фиксации, безубыток, трейлинг. Проходы сериализует движок,
// своих горутин монитор не держит.
type Monitor struct {
	cfg      Config
	tracker  *tracker.Tracker
	forex    venue.ForexTerminal
	crypto   venue.CryptoExchange
	prices   Prices
	notifier notify.Notifier

	lastNote map[string]time.Time
	now      func() time.Time
}

func New(
	cfg Config,
	tr *tracker.Tracker,
	forex venue.ForexTerminal,
	crypto venue.CryptoExchange,
	prices Prices,
	n notify.Notifier,
) *Monitor {
	if len(cfg.Splits) == 0 {
		cfg.Splits = []float64{33, 33, 34}
	}
	if n == nil {
		n = notify.NewStdout()
	}
	return &Monitor{
		cfg:      cfg,
		tracker:  tr,
		forex:    forex,
		crypto:   crypto,
		prices:   prices,
		notifier: n,
		lastNote: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *Monitor) RunPass(ctx context.Context) {
	span, ctx := tracing.StartSpan(ctx, "protect.pass")
	defer span.Finish()

	if m.forex != nil {
		m.forexPass(ctx)
	}
	if m.crypto != nil && m.prices != nil {
		m.cryptoPass(ctx)
	}
}

func (m *Monitor) forexPass(ctx context.Context) {
	positions, err := m.forex.OpenPositions(ctx, m.cfg.OrderTag)
	if err != nil {
		logger.Error("protection: forex positions unavailable: %v", err)
		return
	}
	for i := range positions {
		vp := positions[i]
		pos, ok := m.tracker.ByVenueRef(models.VenueForex, vp.Ref)
		if !ok {
			continue // чужая позиция либо ещё не принята реконсиляцией
		}
		m.protectForexOne(ctx, pos, vp)
	}
}

// protectForexOne — фиксированный порядок шагов на одну позицию:
// частичка TP1 → частичка TP2 → безубыток → трейлинг.
func (m *Monitor) protectForexOne(ctx context.Context, pos models.TrackedPosition, vp models.VenuePosition) {
	info, err := m.forex.SymbolInfo(ctx, vp.Symbol)
	if err != nil {
		logger.Error("protection: %s symbol info: %v", vp.Symbol, err)
		return
	}
	tick, err := m.forex.Tick(ctx, vp.Symbol)
	if err != nil {
		return
	}

	lv := Levels{Side: vp.Side, Entry: vp.Entry, Stop: vp.SL, Price: FavorablePrice(tick, vp.Side)}
	if lv.Price <= 0 {
		return
	}

	// До первой цели стопы не трогаем и прибыль не снимаем: цель must
	// подтвердить сигнал, иначе дёргаемся на шуме.
	tp1Hit := reached(lv.Side, lv.Price, levelAt(pos.TakeProfits, 0))
	remaining := vp.Size

	if pos.Mode == models.ModeProgressive && tp1Hit && !pos.TP1Done {
		remaining = m.takePartial(ctx, &pos, vp.Ref, remaining, info, 0)
	}
	if pos.Mode == models.ModeProgressive && !pos.TP2Done &&
		reached(lv.Side, lv.Price, levelAt(pos.TakeProfits, 1)) {
		m.takePartial(ctx, &pos, vp.Ref, remaining, info, 1)
	}

	if m.cfg.BEEnabled && tp1Hit && losingSide(lv.Side, lv.Stop, vp.Entry) {
		cand := BreakevenPrice(lv.Side, vp.Entry, m.cfg.BEBuffer*info.Point)
		if applied, ok := m.applyForexStop(ctx, pos.Symbol, vp.Ref, lv, cand, info, "BE"); ok {
			lv.Stop = applied
		}
	}

	if m.cfg.TrailEnabled {
		if cand, ok := trailStop(lv, m.cfg.TrailDistance*info.Point); ok {
			m.applyForexStop(ctx, pos.Symbol, vp.Ref, lv, cand, info, "TRAIL")
		}
	}
}

// takePartial закрывает одну прогрессивную долю. Флаг уровня встаёт
// только после успеха площадки, иначе повтор на следующем проходе.
func (m *Monitor) takePartial(
	ctx context.Context,
	pos *models.TrackedPosition,
	ref string,
	remaining float64,
	info models.SymbolInfo,
	level int,
) float64 {
	chunk := partialChunk(m.splitPct(level), pos.OriginalSize, remaining, info.SizeStep, info.SizeMin)
	if chunk <= 0 {
		return remaining
	}

	res, err := m.forex.ClosePartial(ctx, ref, chunk)
	if err != nil {
		logger.Error("partial close %s TP%d: %v", pos.Symbol, level+1, err)
		return remaining
	}
	if !res.Success {
		logger.Error("partial close %s TP%d rejected: %s", pos.Symbol, level+1, res.RejectReason)
		return remaining
	}

	if err := m.tracker.Mutate(ctx, pos.ID, func(p *models.TrackedPosition) {
		if level == 0 {
			p.TP1Done = true
		} else {
			p.TP2Done = true
		}
	}); err != nil {
		logger.Error("partial close %s: flag not persisted: %v", pos.Symbol, err)
	}
	if level == 0 {
		pos.TP1Done = true
	} else {
		pos.TP2Done = true
	}

	logger.Info("✅ partial close %s TP%d: %.2f of %.2f", pos.Symbol, level+1, chunk, pos.OriginalSize)
	if m.canSend("partial:"+ref, 30*time.Minute) {
		m.notifier.Sendf("💰 [%s] Частичная фиксация TP%d: закрыто %.2f", pos.Symbol, level+1, chunk)
	}
	return helper.Round2(remaining - chunk)
}

func (m *Monitor) applyForexStop(
	ctx context.Context,
	symbol, ref string,
	lv Levels,
	cand float64,
	info models.SymbolInfo,
	reason string,
) (float64, bool) {
	minDist := float64(info.StopLevelPoints) * info.Point
	final, ok := GuardStop(lv, cand, minDist, info.TickSize)
	if !ok {
		return 0, false
	}

	res, err := m.forex.ModifyStop(ctx, ref, final)
	if err != nil {
		logger.Error("modify stop %s: %v", ref, err)
		return 0, false
	}
	if !res.Success {
		logger.Error("modify stop %s rejected: %s", ref, res.RejectReason)
		return 0, false
	}

	logger.Info("✅ SL modified for %s to %.5f (%s)", ref, final, reason)
	if m.canSend("sl:"+reason+":"+ref, 15*time.Minute) {
		m.notifier.Sendf("🛡 [%s] SL → %.5f | %s", symbol, final, reason)
	}
	return final, true
}

func (m *Monitor) cryptoPass(ctx context.Context) {
	positions, err := m.crypto.OpenPositions(ctx)
	if err != nil {
		logger.Error("protection: crypto positions unavailable: %v", err)
		return
	}
	for i := range positions {
		vp := positions[i]
		pos, ok := m.tracker.ByVenueRef(models.VenueCrypto, vp.Ref)
		if !ok {
			continue
		}
		price, ok := m.prices.LastPrice(vp.Symbol)
		if !ok {
			continue // кэш котировок ещё не прогрет
		}

		lv := Levels{Side: vp.Side, Entry: vp.Entry, Stop: vp.SL, Price: price}
		tp1Hit := reached(lv.Side, lv.Price, levelAt(pos.TakeProfits, 0))

		if m.cfg.BEEnabled && tp1Hit && losingSide(lv.Side, lv.Stop, vp.Entry) {
			cand := BreakevenPrice(lv.Side, vp.Entry, BasisPoints(vp.Entry, m.cfg.BEBuffer))
			if applied, ok := m.applyCryptoStop(ctx, vp.Symbol, lv, cand, "BE"); ok {
				lv.Stop = applied
			}
		}
		if m.cfg.TrailEnabled {
			if cand, ok := trailStop(lv, BasisPoints(lv.Price, m.cfg.TrailDistance)); ok {
				m.applyCryptoStop(ctx, vp.Symbol, lv, cand, "TRAIL")
			}
		}
	}
}

func (m *Monitor) applyCryptoStop(
	ctx context.Context,
	symbol string,
	lv Levels,
	cand float64,
	reason string,
) (float64, bool) {
	final, ok := GuardStop(lv, cand, 0, 0)
	if !ok {
		return 0, false
	}
	final = helper.Round8(final)

	res, err := m.crypto.SetTradingStop(ctx, venue.TradingStopRequest{Symbol: symbol, StopLoss: final})
	if err != nil {
		logger.Error("trading stop %s: %v", symbol, err)
		return 0, false
	}
	if !res.Success {
		logger.Error("trading stop %s rejected: %s", symbol, res.RejectReason)
		return 0, false
	}

	logger.Info("✅ SL modified for %s to %.8g (%s)", symbol, final, reason)
	if m.canSend("sl:"+reason+":"+symbol, 15*time.Minute) {
		m.notifier.Sendf("🛡 [%s] SL → %.8g | %s", symbol, final, reason)
	}
	return final, true
}

func (m *Monitor) splitPct(level int) float64 {
	if level < 0 || level >= len(m.cfg.Splits) {
		return 0
	}
	return m.cfg.Splits[level]
}

// canSend — не чаще одного уведомления на ключ за окно.
func (m *Monitor) canSend(key string, every time.Duration) bool {
	now := m.now()
	if last, ok := m.lastNote[key]; ok && now.Sub(last) < every {
		return false
	}
	m.lastNote[key] = now
	return true
}

func levelAt(tps []float64, i int) float64 {
	if i < 0 || i >= len(tps) {
		return 0
	}
	return tps[i]
}

// BasisPoints — дистанция в базисных пунктах от цены (крипта не знает пунктов
// терминала, масштабируем от котировки).
func BasisPoints(px, units float64) float64 { return px * units / 10000 }
