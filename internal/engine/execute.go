package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonkers71/unified-trading-system/internal/models"
	"github.com/jonkers71/unified-trading-system/internal/venue"
	"github.com/jonkers71/unified-trading-system/pkg/logger"
	"github.com/pkg/errors"
)

const (
	tickRetries   = 5
	tickRetryWait = 200 * time.Millisecond
)

func (e *Engine) placeSignal(ctx context.Context, sig *models.Signal) {
	if !sig.Tradeable() {
		e.reject(ctx, sig, ErrParseRejected, "need side, stop and at least one target")
		return
	}
	if e.dedup.Duplicate(sig.Symbol, sig.Side) {
		e.reject(ctx, sig, ErrDuplicate, fmt.Sprintf("repeat within %s", e.cfg.DedupWindow))
		return
	}

	switch sig.Venue {
	case models.VenueCrypto:
		e.placeCrypto(ctx, sig)
	default:
		e.placeForex(ctx, sig)
	}
}

func (e *Engine) placeForex(ctx context.Context, sig *models.Signal) {
	if e.forex == nil || !e.cfg.MT5.Enabled {
		e.reject(ctx, sig, ErrVenueDisabled, "MT5 leg off")
		return
	}
	if !e.health.AuthOK(models.VenueForex) {
		e.reject(ctx, sig, ErrAuthDegraded, "MT5 orders blocked until auth probe passes")
		return
	}

	info, err := e.resolveForexSymbol(ctx, sig.Symbol)
	if err != nil {
		if errors.Is(err, ErrSymbolUnresolved) {
			e.reject(ctx, sig, ErrSymbolUnresolved, sig.Symbol)
		} else {
			e.venueFailure(ctx, sig, models.VenueForex, err, "symbol info")
		}
		return
	}

	if limit := e.spreadLimit(info.Symbol); info.SpreadPoints > limit {
		e.reject(ctx, sig, ErrSpreadTooWide, fmt.Sprintf("%d points, limit %d", info.SpreadPoints, limit))
		return
	}

	if err := e.forexRoom(ctx, info.Symbol); err != nil {
		if errors.Is(err, ErrPositionLimit) {
			e.reject(ctx, sig, ErrPositionLimit, err.Error())
		} else {
			e.venueFailure(ctx, sig, models.VenueForex, err, "positions")
		}
		return
	}

	tick, err := e.forexTick(ctx, info.Symbol)
	if err != nil {
		e.reject(ctx, sig, ErrQuoteUnavailable, err.Error())
		return
	}
	entry := sig.Entry
	if entry <= 0 {
		entry = entryPrice(tick, sig.Side)
	}

	balance, err := e.forex.AccountBalance(ctx)
	if err != nil {
		e.venueFailure(ctx, sig, models.VenueForex, err, "balance")
		return
	}

	lot, err := e.sizer.MT5Lot(info, entry, sig.StopLoss, balance)
	if err != nil {
		e.reject(ctx, sig, ErrSizingInvalid, err.Error())
		return
	}

	mode := models.Mode(e.cfg.Trading.TPMode)
	plan := e.planner.Build(sig, mode, lot, info.SizeMin)

	placed := 0
	for _, it := range plan.Orders {
		res, err := e.forex.PlaceMarketOrder(ctx, venue.MarketOrderRequest{
			Symbol:     info.Symbol,
			Side:       it.Side,
			Size:       it.Size,
			StopLoss:   sig.StopLoss,
			TakeProfit: it.TP,
			Comment:    it.Label,
		})
		if err != nil {
			e.venueFailure(ctx, sig, models.VenueForex, err, it.Label)
			continue
		}
		if !res.Success {
			logger.Error("order %s %s %.2f rejected: %s %s",
				sig.Side, info.Symbol, it.Size, res.RejectCode, res.RejectReason)
			e.record(ctx, models.TradeRecord{
				Time:   e.now(),
				Symbol: info.Symbol,
				Side:   sig.Side,
				Target: "Active",
				Status: fmt.Sprintf("Rejected | %s %s", res.RejectCode, res.RejectReason),
			})
			e.notifier.Sendf("⚠️ [%s] Ордер %s %s отклонён: %s", sig.Channel, sig.Side, info.Symbol, res.RejectReason)
			continue
		}

		pos := models.TrackedPosition{
			ID:           e.newID(),
			Symbol:       info.Symbol,
			Side:         sig.Side,
			Entry:        entry,
			StopLoss:     sig.StopLoss,
			TakeProfits:  append([]float64(nil), sig.TakeProfits...),
			Venue:        models.VenueForex,
			VenueRef:     res.Ticket,
			Mode:         mode,
			OriginalSize: it.Size,
			Channel:      sig.Channel,
			OpenedAt:     e.now(),
		}
		if err := e.tracker.Add(ctx, pos); err != nil {
			logger.Error("track position %s: %v", res.Ticket, err)
		}
		e.record(ctx, models.TradeRecord{
			Time:    e.now(),
			Symbol:  info.Symbol,
			Side:    sig.Side,
			Target:  "Active",
			Status:  fmt.Sprintf("Executed | %.2f lots", it.Size),
			Success: true,
		})
		logger.Info("✅ %s: ticket %s, %.2f lots at %.5f", it.Label, res.Ticket, it.Size, entry)
		placed++
	}

	if placed > 0 {
		e.notifier.Sendf("✅ [%s] %s %s: %d орд., объём %.2f, SL %.5f",
			sig.Channel, sig.Side, info.Symbol, placed, lot, sig.StopLoss)
	}
}

// Крипта всегда идёт одним ордером на первую цель: на линейном контракте
// все доливки сливаются в одну позицию, и лесенка целей душила бы сама себя.
func (e *Engine) placeCrypto(ctx context.Context, sig *models.Signal) {
	if e.crypto == nil || !e.cfg.Bybit.Enabled {
		e.reject(ctx, sig, ErrVenueDisabled, "Bybit leg off")
		return
	}
	if !e.health.AuthOK(models.VenueCrypto) {
		e.reject(ctx, sig, ErrAuthDegraded, "Bybit orders blocked until auth probe passes")
		return
	}

	rules, err := e.crypto.InstrumentRules(ctx, sig.Symbol)
	if err != nil {
		if errors.Is(err, venue.ErrSymbolNotFound) {
			e.reject(ctx, sig, ErrSymbolUnresolved, sig.Symbol)
		} else {
			e.venueFailure(ctx, sig, models.VenueCrypto, err, "instrument rules")
		}
		return
	}

	if err := e.cryptoRoom(ctx, rules.Symbol); err != nil {
		if errors.Is(err, ErrPositionLimit) {
			e.reject(ctx, sig, ErrPositionLimit, err.Error())
		} else {
			e.venueFailure(ctx, sig, models.VenueCrypto, err, "positions")
		}
		return
	}

	entry := sig.Entry
	if entry <= 0 {
		px, err := e.cryptoPrice(ctx, rules.Symbol)
		if err != nil {
			e.reject(ctx, sig, ErrQuoteUnavailable, err.Error())
			return
		}
		entry = px
	}

	balance, err := e.crypto.WalletBalance(ctx)
	if err != nil {
		e.venueFailure(ctx, sig, models.VenueCrypto, err, "balance")
		return
	}

	qty, err := e.sizer.BybitQty(rules, entry, sig.StopLoss, balance)
	if err != nil {
		e.reject(ctx, sig, ErrSizingInvalid, err.Error())
		return
	}

	res, err := e.crypto.PlaceMarketOrder(ctx, venue.CryptoOrderRequest{
		Symbol:     rules.Symbol,
		Side:       sig.Side,
		Qty:        qty,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfits[0],
	})
	if err != nil {
		e.venueFailure(ctx, sig, models.VenueCrypto, err, "place order")
		return
	}
	if !res.Success {
		logger.Error("bybit order %s %s %v rejected: %s %s",
			sig.Side, rules.Symbol, qty, res.RejectCode, res.RejectReason)
		e.record(ctx, models.TradeRecord{
			Time:   e.now(),
			Symbol: rules.Symbol,
			Side:   sig.Side,
			Target: "TP1",
			Status: fmt.Sprintf("Rejected | %s %s", res.RejectCode, res.RejectReason),
		})
		e.notifier.Sendf("⚠️ [%s] Ордер %s %s отклонён: %s", sig.Channel, sig.Side, rules.Symbol, res.RejectReason)
		return
	}

	// Bybit ведёт одну позицию на символ, поэтому её ref — сам символ:
	// orderId живёт только до филла и для сверки бесполезен.
	pos := models.TrackedPosition{
		ID:           e.newID(),
		Symbol:       rules.Symbol,
		Side:         sig.Side,
		Entry:        entry,
		StopLoss:     sig.StopLoss,
		TakeProfits:  append([]float64(nil), sig.TakeProfits...),
		Venue:        models.VenueCrypto,
		VenueRef:     rules.Symbol,
		Mode:         models.ModeScalper,
		OriginalSize: qty,
		Channel:      sig.Channel,
		OpenedAt:     e.now(),
	}
	if err := e.tracker.Add(ctx, pos); err != nil {
		logger.Error("track position %s: %v", rules.Symbol, err)
	}
	e.record(ctx, models.TradeRecord{
		Time:    e.now(),
		Symbol:  rules.Symbol,
		Side:    sig.Side,
		Target:  "TP1",
		Status:  fmt.Sprintf("Bybit: %v", qty),
		Success: true,
	})
	logger.Info("✅ bybit %s %s: qty %v at %.2f", sig.Side, rules.Symbol, qty, entry)
	e.notifier.Sendf("✅ [%s] %s %s: qty %v, SL %v, TP %v",
		sig.Channel, sig.Side, rules.Symbol, qty, sig.StopLoss, sig.TakeProfits[0])
}

// resolveForexSymbol: сырое имя годится, только если терминал знает его и
// торговля разрешена полностью. Иначе пробуем брокерский суффикс.
func (e *Engine) resolveForexSymbol(ctx context.Context, raw string) (models.SymbolInfo, error) {
	info, err := e.forex.SymbolInfo(ctx, raw)
	if err == nil && info.TradeMode == models.TradeModeFull {
		return info, nil
	}
	if err != nil && !errors.Is(err, venue.ErrSymbolNotFound) {
		return models.SymbolInfo{}, errors.Wrap(err, raw)
	}

	if sfx := e.cfg.MT5.SymbolSuffix; sfx != "" {
		info, err = e.forex.SymbolInfo(ctx, raw+sfx)
		if err == nil && info.TradeMode == models.TradeModeFull {
			return info, nil
		}
		if err != nil && !errors.Is(err, venue.ErrSymbolNotFound) {
			return models.SymbolInfo{}, errors.Wrap(err, raw+sfx)
		}
	}
	return models.SymbolInfo{}, errors.Wrap(ErrSymbolUnresolved, raw)
}

// spreadLimit: металлы ходят кратно шире мажоров, лимит для них отдельный.
func (e *Engine) spreadLimit(symbol string) int {
	up := strings.ToUpper(symbol)
	if strings.Contains(up, "XAU") || strings.Contains(up, "GOLD") {
		return e.cfg.Trading.MaxSpreadGold
	}
	return e.cfg.Trading.MaxSpreadForex
}

func (e *Engine) forexRoom(ctx context.Context, symbol string) error {
	limit := e.cfg.Trading.MaxPositionsPerSymbol
	if limit <= 0 {
		return nil
	}
	open, err := e.forex.OpenPositions(ctx, e.orderTag)
	if err != nil {
		return errors.Wrap(err, "open positions")
	}
	n := 0
	for _, vp := range open {
		if vp.Symbol == symbol {
			n++
		}
	}
	if n >= limit {
		return errors.Wrapf(ErrPositionLimit, "%d of %d for %s", n, limit, symbol)
	}
	return nil
}

// cryptoRoom: в one-way режиме у Bybit одна позиция на символ, повторный
// ордер молча долился бы в неё и сломал сопровождение.
func (e *Engine) cryptoRoom(ctx context.Context, symbol string) error {
	open, err := e.crypto.OpenPositions(ctx)
	if err != nil {
		return errors.Wrap(err, "open positions")
	}
	for _, vp := range open {
		if vp.Symbol == symbol && vp.Size > 0 {
			return errors.Wrapf(ErrPositionLimit, "%s already open", symbol)
		}
	}
	return nil
}

// forexTick опрашивает терминал до пяти раз: сразу после выходных или
// реконнекта котировка приезжает не с первой попытки.
func (e *Engine) forexTick(ctx context.Context, symbol string) (models.Tick, error) {
	var lastErr error
	for i := 0; i < tickRetries; i++ {
		if i > 0 {
			e.sleep(ctx, tickRetryWait)
		}
		tick, err := e.forex.Tick(ctx, symbol)
		if err == nil && (tick.Bid > 0 || tick.Ask > 0) {
			return tick, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = errors.Errorf("empty quote for %s", symbol)
	}
	return models.Tick{}, lastErr
}

// cryptoPrice берёт котировку из кэша тикер-стрима, давая холодному кэшу
// до секунды на прогрев.
func (e *Engine) cryptoPrice(ctx context.Context, symbol string) (float64, error) {
	if e.prices == nil {
		return 0, errors.New("no price source")
	}
	for i := 0; i < tickRetries; i++ {
		if i > 0 {
			e.sleep(ctx, tickRetryWait)
		}
		if px, ok := e.prices.LastPrice(symbol); ok && px > 0 {
			return px, nil
		}
	}
	return 0, errors.Errorf("no price for %s", symbol)
}

// entryPrice — вход по рынку: покупаем по ask, продаём по bid.
func entryPrice(t models.Tick, side models.Side) float64 {
	if side == models.SideBuy {
		return t.Ask
	}
	return t.Bid
}

// reject фиксирует отказ конвейера: одна строка журнала на алерт.
func (e *Engine) reject(ctx context.Context, sig *models.Signal, cause error, detail string) {
	logger.Info("signal %s %s rejected: %v (%s)", sig.Symbol, sig.Side, cause, detail)
	e.record(ctx, models.TradeRecord{
		Time:   e.now(),
		Symbol: sig.Symbol,
		Side:   sig.Side,
		Target: "Rejected",
		Status: fmt.Sprintf("%v | %s", cause, detail),
	})
}

// venueFailure — транспорт или авторизация площадки легли посреди
// конвейера. Авторизационный отказ дополнительно гейтит всю площадку.
func (e *Engine) venueFailure(ctx context.Context, sig *models.Signal, v models.Venue, err error, op string) {
	if errors.Is(err, venue.ErrAuth) {
		e.health.SetAuthOK(v, false)
		e.notifier.Sendf("🚫 [%s] Площадка не приняла авторизацию, новые ордера остановлены", venueName(v))
		e.reject(ctx, sig, ErrAuthDegraded, errors.Wrap(err, op).Error())
		return
	}
	e.reject(ctx, sig, ErrOrderRejected, errors.Wrap(err, op).Error())
}

func (e *Engine) record(ctx context.Context, rec models.TradeRecord) {
	if err := e.tracker.Record(ctx, rec); err != nil {
		logger.Error("trade record: %v", err)
	}
}
