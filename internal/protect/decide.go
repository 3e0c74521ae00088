// Package protect двигает стопы и снимает частичную прибыль по живым
// позициям. Решения чистые, применение — отдельно в Monitor.
package protect

import (
	"github.com/jonkers71/unified-trading-system/internal/helper"
	"github.com/jonkers71/unified-trading-system/internal/models"
)

// trailFactor — гистерезис трейлинга: двигаем стоп, только когда цена
// ушла от него дальше, чем в полтора раза на дистанцию.
const trailFactor = 1.5

// Levels — всё, что известно о позиции на момент тика.
type Levels struct {
	Side  models.Side
	Entry float64
	Stop  float64 // текущий стоп площадки, 0 — не выставлен
	Price float64 // bid для BUY, ask для SELL
}

// FavorablePrice — цена, по которой позицию реально закрывать.
func FavorablePrice(t models.Tick, side models.Side) float64 {
	if side == models.SideBuy {
		return t.Bid
	}
	return t.Ask
}

// reached — цена дошла до цели в сторону профита.
func reached(side models.Side, price, target float64) bool {
	if target <= 0 || price <= 0 {
		return false
	}
	switch side {
	case models.SideBuy:
		return price >= target
	case models.SideSell:
		return price <= target
	}
	return false
}

// losingSide — стоп всё ещё на убыточной стороне от входа.
// Отсутствующий стоп (0) считается незащищённым для обеих сторон.
func losingSide(side models.Side, stop, entry float64) bool {
	if stop == 0 {
		return true
	}
	switch side {
	case models.SideBuy:
		return stop < entry
	case models.SideSell:
		return stop > entry
	}
	return false
}

// BreakevenPrice — кандидат стопа в безубыток: вход плюс-минус буфер.
func BreakevenPrice(side models.Side, entry, buffer float64) float64 {
	if side == models.SideBuy {
		return entry + buffer
	}
	return entry - buffer
}

// trailStop — кандидат трейлинг-стопа. Точка отсчёта — текущий стоп,
// без стопа — вход. Срабатывает только за гистерезисом.
func trailStop(lv Levels, dist float64) (float64, bool) {
	if dist <= 0 || lv.Price <= 0 {
		return 0, false
	}
	ref := lv.Stop
	if ref == 0 {
		ref = lv.Entry
	}
	if ref <= 0 {
		return 0, false
	}

	switch lv.Side {
	case models.SideBuy:
		if lv.Price-ref > trailFactor*dist {
			return lv.Price - dist, true
		}
	case models.SideSell:
		if ref-lv.Price > trailFactor*dist {
			return lv.Price + dist, true
		}
	}
	return 0, false
}

// partialChunk — размер частичного закрытия: процент от ИСХОДНОГО объёма,
// не больше остатка, вниз до шага. Меньше минимума — закрывать нечего.
func partialChunk(pct, original, remaining, step, min float64) float64 {
	if pct <= 0 || original <= 0 || remaining <= 0 {
		return 0
	}
	raw := original * pct / 100
	if raw > remaining {
		raw = remaining
	}
	chunk := helper.RoundDownToTick(raw, step)
	if chunk <= 0 || chunk < min {
		return 0
	}
	return chunk
}

// GuardStop — общий страж любой правки стопа: прижимает кандидата к
// минимальной дистанции площадки, округляет от цены и пропускает только
// строго более защитный уровень. Стопы назад не ходят.
func GuardStop(lv Levels, cand, minDist, tick float64) (float64, bool) {
	if cand <= 0 || lv.Price <= 0 {
		return 0, false
	}

	switch lv.Side {
	case models.SideBuy:
		if limit := lv.Price - minDist; cand > limit {
			cand = limit
		}
		cand = helper.RoundDownToTick(cand, tick)
		if cand <= 0 {
			return 0, false
		}
		if lv.Stop != 0 && cand <= lv.Stop {
			return 0, false
		}
	case models.SideSell:
		if limit := lv.Price + minDist; cand < limit {
			cand = limit
		}
		cand = helper.RoundUpToTick(cand, tick)
		if lv.Stop != 0 && cand >= lv.Stop {
			return 0, false
		}
	default:
		return 0, false
	}
	return cand, true
}
