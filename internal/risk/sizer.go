package risk

import (
	"fmt"
	"math"

	"github.com/jonkers71/unified-trading-system/internal/helper"
	"github.com/jonkers71/unified-trading-system/internal/models"
)

// Sizer переводит баланс и дистанцию до стопа в размер ордера.
// Чистые вычисления: правила площадки приходят готовыми данными,
// никакого I/O здесь нет.
type Sizer struct {
	riskFraction float64
}

func NewSizer(riskFraction float64) *Sizer {
	if riskFraction <= 0 {
		riskFraction = 0.01
	}
	return &Sizer{riskFraction: riskFraction}
}

func (s *Sizer) RiskFraction() float64 { return s.riskFraction }

// MT5Lot считает лоты для тикового рынка:
//
//	risk = balance * riskFraction
//	lot  = risk / (dist / tickSize * tickValue)
//
// floor к шагу объёма, clamp в [min,max], округление до 2 знаков.
func (s *Sizer) MT5Lot(info models.SymbolInfo, entry, stop, balance float64) (float64, error) {
	if balance <= 0 {
		return 0, fmt.Errorf("balance <= 0")
	}

	dist := math.Abs(entry - stop)
	if dist == 0 {
		return 0, fmt.Errorf("zero stop distance")
	}
	if info.TickSize <= 0 || info.TickValue <= 0 {
		return 0, fmt.Errorf("tick meta missing for %s", info.Symbol)
	}

	riskAmount := balance * s.riskFraction
	lot := riskAmount / (dist / info.TickSize * info.TickValue)

	lot = helper.RoundDownToTick(lot, info.SizeStep)
	lot = math.Max(info.SizeMin, math.Min(info.SizeMax, lot))

	lot = helper.Round2(lot)
	if lot <= 0 || math.IsNaN(lot) || math.IsInf(lot, 0) {
		return 0, fmt.Errorf("lot invalid: %.10f", lot)
	}
	return lot, nil
}

// BybitQty считает количество для линейного USDT-контракта:
//
//	qty = risk / dist, floor к qtyStep
//
// Биржевой минимум — максимум из minQty и minNotional/entry, поднятый
// вверх к шагу. Если рисковое qty ниже минимума, берём минимум с запасом
// 1.5%, чтобы после внутреннего округления биржи ордер прошёл notional-фильтр.
func (s *Sizer) BybitQty(rules models.InstrumentRules, entry, stop, balance float64) (float64, error) {
	if balance <= 0 {
		return 0, fmt.Errorf("balance <= 0")
	}
	if entry <= 0 {
		return 0, fmt.Errorf("entry <= 0")
	}

	dist := math.Abs(entry - stop)
	if dist == 0 {
		return 0, fmt.Errorf("zero stop distance")
	}

	step := rules.QtyStep
	if step <= 0 {
		step = 0.001
	}
	minNotional := rules.MinNotional
	if minNotional <= 0 {
		minNotional = 5.0 // дефолт linear-контрактов
	}

	riskAmount := balance * s.riskFraction
	qty := helper.RoundDownToTick(riskAmount/dist, step)

	trueMin := math.Max(rules.MinQty, minNotional/entry)
	trueMin = helper.RoundUpToTick(trueMin, step)

	if qty < trueMin {
		padded := trueMin * 1.015
		qty = helper.RoundUpToTick(padded, step)
	}

	qty = helper.Round8(qty)
	if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 0, fmt.Errorf("qty invalid: %.10f", qty)
	}
	return qty, nil
}
