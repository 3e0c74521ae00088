package planner

import (
	"fmt"
	"math"

	"github.com/jonkers71/unified-trading-system/internal/helper"
	"github.com/jonkers71/unified-trading-system/internal/models"
)

// Planner раскладывает общий размер позиции по ордерам согласно режиму.
// Чистая логика, без обращений к площадкам.
type Planner struct {
	splits      []float64 // проценты по целям, по умолчанию 33/33/34
	finalTarget string    // "tp2"|"tp3" — цель единого ордера в hybrid/sniper
}

func New(splits []float64, finalTarget string) *Planner {
	if len(splits) < 3 {
		splits = []float64{33, 33, 34}
	}
	return &Planner{splits: splits, finalTarget: finalTarget}
}

func (p *Planner) Splits() []float64 { return p.splits }

// Plan — итог планирования: ордера к выставлению и признак
// прогрессивного частичного закрытия для монитора защиты.
type Plan struct {
	Orders      []models.OrderIntent
	Progressive bool
}

// Build ожидает проверенный сигнал: сторона и хотя бы одна цель есть.
func (p *Planner) Build(sig *models.Signal, mode models.Mode, total, minSize float64) Plan {
	switch mode {
	case models.ModeSplit:
		return p.split(sig, total, minSize)

	case models.ModeScalper:
		return Plan{Orders: []models.OrderIntent{{
			Symbol: sig.Symbol,
			Side:   sig.Side,
			Size:   total,
			TP:     sig.TakeProfits[0],
			Label:  fmt.Sprintf("Scalper: %s", sig.Channel),
		}}}

	case models.ModeProgressive:
		last := sig.TakeProfits[len(sig.TakeProfits)-1]
		return Plan{
			Orders: []models.OrderIntent{{
				Symbol: sig.Symbol,
				Side:   sig.Side,
				Size:   total,
				TP:     last,
				Label:  fmt.Sprintf("Progressive: %s", sig.Channel),
			}},
			Progressive: true,
		}

	default: // hybrid и sniper: один ордер на финальную цель
		name := "Hybrid"
		if mode == models.ModeSniper {
			name = "Sniper"
		}
		idx := p.finalIndex(len(sig.TakeProfits))
		return Plan{Orders: []models.OrderIntent{{
			Symbol: sig.Symbol,
			Side:   sig.Side,
			Size:   total,
			TP:     sig.TakeProfits[idx],
			Label:  fmt.Sprintf("%s: %s", name, sig.Channel),
		}}}
	}
}

// finalIndex: tp2 — вторая цель, иначе третья; целей меньше — последняя.
func (p *Planner) finalIndex(n int) int {
	idx := 2
	if p.finalTarget == "tp2" {
		idx = 1
	}
	if n <= idx {
		idx = n - 1
	}
	return idx
}

func (p *Planner) split(sig *models.Signal, total, minSize float64) Plan {
	lot1 := math.Max(minSize, helper.Round2(total*p.splits[0]/100))
	lot2 := math.Max(minSize, helper.Round2(total*p.splits[1]/100))
	lot3 := helper.Round2(total - (lot1 + lot2))

	// Размера не хватает на три ордера, либо минималки раздули суммарный
	// риск — сворачиваемся в один ордер на первую цель.
	if lot3 <= 0 || lot1+lot2+lot3 > total*1.1 {
		return Plan{Orders: []models.OrderIntent{{
			Symbol: sig.Symbol,
			Side:   sig.Side,
			Size:   total,
			TP:     sig.TakeProfits[0],
			Label:  fmt.Sprintf("Split TP1: %s", sig.Channel),
		}}}
	}

	lots := [3]float64{lot1, lot2, lot3}
	var orders []models.OrderIntent
	for i, tp := range sig.TakeProfits {
		if i >= 3 {
			break
		}
		orders = append(orders, models.OrderIntent{
			Symbol: sig.Symbol,
			Side:   sig.Side,
			Size:   lots[i],
			TP:     tp,
			Label:  fmt.Sprintf("Split TP%d: %s", i+1, sig.Channel),
		})
	}
	return Plan{Orders: orders}
}
