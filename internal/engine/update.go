package engine

import (
	"context"
	"fmt"

	"github.com/jonkers71/unified-trading-system/internal/helper"
	"github.com/jonkers71/unified-trading-system/internal/models"
	"github.com/jonkers71/unified-trading-system/internal/protect"
	"github.com/jonkers71/unified-trading-system/internal/venue"
	"github.com/jonkers71/unified-trading-system/pkg/logger"
)

// applyUpdate — управляющий сигнал поверх открытых позиций: подвинуть
// стоп или закрыть. Применяется к отслеживаемым позициям того же символа
// на площадке канала.
func (e *Engine) applyUpdate(ctx context.Context, sig *models.Signal) {
	matches := e.matchPositions(sig)
	if len(matches) == 0 {
		logger.Info("update %s %s from %s: no tracked positions", sig.Action, sig.Symbol, sig.Channel)
		e.record(ctx, models.TradeRecord{
			Time:   e.now(),
			Symbol: sig.Symbol,
			Target: "Update",
			Status: fmt.Sprintf("%s | no tracked positions", sig.Action),
		})
		return
	}

	switch sig.Action {
	case models.ActionClose:
		e.closeOldest(ctx, sig, matches)
	case models.ActionMoveSL:
		e.moveStops(ctx, sig, matches)
	}
}

// matchPositions: непендящие позиции символа на площадке канала. Символ
// терминала может нести брокерский суффикс, учитываем оба написания.
func (e *Engine) matchPositions(sig *models.Signal) []models.TrackedPosition {
	sfx := e.cfg.MT5.SymbolSuffix
	return e.tracker.Find(func(p models.TrackedPosition) bool {
		if p.Venue != sig.Venue || p.Pending() {
			return false
		}
		return p.Symbol == sig.Symbol || (sfx != "" && p.Symbol == sig.Symbol+sfx)
	})
}

// closeOldest закрывает одну позицию — самую раннюю. Сигнал "close"
// обычно отменяет исходный вход, а не всю лесенку доливок.
func (e *Engine) closeOldest(ctx context.Context, sig *models.Signal, matches []models.TrackedPosition) {
	target := matches[0]
	for _, p := range matches[1:] {
		if p.OpenedAt.Before(target.OpenedAt) {
			target = p
		}
	}

	switch target.Venue {
	case models.VenueCrypto:
		e.closeCrypto(ctx, sig, target)
	default:
		e.closeForex(ctx, sig, target)
	}
}

func (e *Engine) closeForex(ctx context.Context, sig *models.Signal, p models.TrackedPosition) {
	open, err := e.forex.OpenPositions(ctx, e.orderTag)
	if err != nil {
		e.venueFailure(ctx, sig, models.VenueForex, err, "close")
		return
	}
	var vp *models.VenuePosition
	for i := range open {
		if open[i].Ref == p.VenueRef {
			vp = &open[i]
			break
		}
	}
	if vp == nil {
		// На площадке уже ничего нет, чистим только учёт.
		e.dropClosed(ctx, p, "Already flat on venue")
		return
	}

	res, err := e.forex.ClosePartial(ctx, p.VenueRef, vp.Size)
	if err != nil {
		e.venueFailure(ctx, sig, models.VenueForex, err, "close")
		return
	}
	if !res.Success {
		logger.Error("close %s (ticket %s) rejected: %s", p.Symbol, p.VenueRef, res.RejectReason)
		e.record(ctx, models.TradeRecord{
			Time:   e.now(),
			Symbol: p.Symbol,
			Side:   p.Side,
			Target: "Closed",
			Status: fmt.Sprintf("Rejected | %s", res.RejectReason),
		})
		return
	}
	e.dropClosed(ctx, p, fmt.Sprintf("Closed by signal | %.2f lots", vp.Size))
	e.notifier.Sendf("📤 [%s] %s %s закрыта по сигналу (%.2f lots)", p.Channel, p.Side, p.Symbol, vp.Size)
}

// closeCrypto гасит позицию встречным reduce-only ордером: отдельной
// операции закрытия у линейных контрактов нет.
func (e *Engine) closeCrypto(ctx context.Context, sig *models.Signal, p models.TrackedPosition) {
	open, err := e.crypto.OpenPositions(ctx)
	if err != nil {
		e.venueFailure(ctx, sig, models.VenueCrypto, err, "close")
		return
	}
	var vp *models.VenuePosition
	for i := range open {
		if open[i].Symbol == p.Symbol && open[i].Size > 0 {
			vp = &open[i]
			break
		}
	}
	if vp == nil {
		e.dropClosed(ctx, p, "Already flat on venue")
		return
	}

	res, err := e.crypto.PlaceMarketOrder(ctx, venue.CryptoOrderRequest{
		Symbol:     p.Symbol,
		Side:       p.Side.Opposite(),
		Qty:        vp.Size,
		ReduceOnly: true,
	})
	if err != nil {
		e.venueFailure(ctx, sig, models.VenueCrypto, err, "close")
		return
	}
	if !res.Success {
		logger.Error("close %s rejected: %s", p.Symbol, res.RejectReason)
		e.record(ctx, models.TradeRecord{
			Time:   e.now(),
			Symbol: p.Symbol,
			Side:   p.Side,
			Target: "Closed",
			Status: fmt.Sprintf("Rejected | %s", res.RejectReason),
		})
		return
	}
	e.dropClosed(ctx, p, fmt.Sprintf("Closed by signal | qty %v", vp.Size))
	e.notifier.Sendf("📤 [%s] %s %s закрыта по сигналу (qty %v)", p.Channel, p.Side, p.Symbol, vp.Size)
}

func (e *Engine) dropClosed(ctx context.Context, p models.TrackedPosition, status string) {
	if err := e.tracker.Remove(ctx, p.ID); err != nil {
		logger.Error("untrack %s: %v", p.ID, err)
	}
	e.record(ctx, models.TradeRecord{
		Time:    e.now(),
		Symbol:  p.Symbol,
		Side:    p.Side,
		Target:  "Closed",
		Status:  status,
		Success: true,
	})
}

// moveStops двигает стоп всем подходящим позициям: сплит-вход живёт
// несколькими тикетами, и команда канала касается каждого. Ручной стоп
// проходит того же стража, что и автоматика: назад не ходим.
func (e *Engine) moveStops(ctx context.Context, sig *models.Signal, matches []models.TrackedPosition) {
	var moved int
	if sig.Venue == models.VenueCrypto {
		moved = e.moveCryptoStops(ctx, sig, matches)
	} else {
		moved = e.moveForexStops(ctx, sig, matches)
	}

	e.record(ctx, models.TradeRecord{
		Time:    e.now(),
		Symbol:  sig.Symbol,
		Side:    matches[0].Side,
		Target:  "Update",
		Status:  fmt.Sprintf("SL moved | %d of %d", moved, len(matches)),
		Success: moved > 0,
	})
	if moved > 0 {
		e.notifier.Sendf("🛡 [%s] Стоп сдвинут по сигналу: %d поз.", sig.Channel, moved)
	}
}

func (e *Engine) moveForexStops(ctx context.Context, sig *models.Signal, matches []models.TrackedPosition) int {
	// Все совпадения одного символа, метаданные и котировку берём один раз.
	symbol := matches[0].Symbol
	info, err := e.forex.SymbolInfo(ctx, symbol)
	if err != nil {
		logger.Error("move SL %s: symbol info: %v", symbol, err)
		return 0
	}
	tick, err := e.forexTick(ctx, symbol)
	if err != nil {
		logger.Error("move SL %s: %v", symbol, err)
		return 0
	}
	open, err := e.forex.OpenPositions(ctx, e.orderTag)
	if err != nil {
		logger.Error("move SL %s: positions: %v", symbol, err)
		return 0
	}
	byRef := make(map[string]models.VenuePosition, len(open))
	for _, vp := range open {
		byRef[vp.Ref] = vp
	}

	minDist := float64(info.StopLevelPoints) * info.Point
	moved := 0
	for _, p := range matches {
		vp, ok := byRef[p.VenueRef]
		if !ok {
			continue
		}
		cand := sig.ActionPrice
		if sig.ToBreakeven {
			cand = protect.BreakevenPrice(p.Side, vp.Entry, e.cfg.Trading.BEBuffer*info.Point)
		}
		lv := protect.Levels{Side: p.Side, Entry: vp.Entry, Stop: vp.SL, Price: protect.FavorablePrice(tick, p.Side)}
		final, ok := protect.GuardStop(lv, cand, minDist, info.TickSize)
		if !ok {
			logger.Info("move SL %s (ticket %s): %.5f rejected by guard", symbol, p.VenueRef, cand)
			continue
		}
		res, err := e.forex.ModifyStop(ctx, p.VenueRef, final)
		if err != nil || !res.Success {
			logger.Error("move SL %s (ticket %s): err=%v reason=%s", symbol, p.VenueRef, err, res.RejectReason)
			continue
		}
		logger.Info("✅ manual SL for %s (ticket %s) → %.5f", symbol, p.VenueRef, final)
		moved++
	}
	return moved
}

func (e *Engine) moveCryptoStops(ctx context.Context, sig *models.Signal, matches []models.TrackedPosition) int {
	symbol := matches[0].Symbol
	open, err := e.crypto.OpenPositions(ctx)
	if err != nil {
		logger.Error("move SL %s: positions: %v", symbol, err)
		return 0
	}
	var vp *models.VenuePosition
	for i := range open {
		if open[i].Symbol == symbol && open[i].Size > 0 {
			vp = &open[i]
			break
		}
	}
	if vp == nil {
		return 0
	}
	px, err := e.cryptoPrice(ctx, symbol)
	if err != nil {
		logger.Error("move SL %s: %v", symbol, err)
		return 0
	}

	moved := 0
	for _, p := range matches {
		cand := sig.ActionPrice
		if sig.ToBreakeven {
			cand = protect.BreakevenPrice(p.Side, vp.Entry, protect.BasisPoints(vp.Entry, e.cfg.Trading.BEBuffer))
		}
		lv := protect.Levels{Side: p.Side, Entry: vp.Entry, Stop: vp.SL, Price: px}
		final, ok := protect.GuardStop(lv, cand, 0, 0)
		if !ok {
			logger.Info("move SL %s: %v rejected by guard", symbol, cand)
			continue
		}
		final = helper.Round8(final)
		res, err := e.crypto.SetTradingStop(ctx, venue.TradingStopRequest{Symbol: symbol, StopLoss: final})
		if err != nil || !res.Success {
			logger.Error("move SL %s: err=%v reason=%s", symbol, err, res.RejectReason)
			continue
		}
		logger.Info("✅ manual SL for %s → %v", symbol, final)
		moved++
	}
	return moved
}
