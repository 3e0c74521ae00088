package planner

import (
	"math"
	"testing"

	"github.com/jonkers71/unified-trading-system/internal/models"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func sig(tps ...float64) *models.Signal {
	return &models.Signal{
		Symbol:      "XAUUSD",
		Side:        models.SideBuy,
		StopLoss:    2015,
		TakeProfits: tps,
		Channel:     "GoldVIP",
	}
}

func TestHybridTargetsFinalTP(t *testing.T) {
	p := New(nil, "tp3")

	plan := p.Build(sig(2025, 2030, 2040), models.ModeHybrid, 0.2, 0.01)
	if len(plan.Orders) != 1 || plan.Progressive {
		t.Fatalf("plan = %+v", plan)
	}
	o := plan.Orders[0]
	if !approx(o.Size, 0.2) || !approx(o.TP, 2040) {
		t.Fatalf("order = %+v", o)
	}
	if o.Label != "Hybrid: GoldVIP" {
		t.Fatalf("label = %q", o.Label)
	}

	// Второй целью, если так настроено.
	p2 := New(nil, "tp2")
	plan = p2.Build(sig(2025, 2030, 2040), models.ModeHybrid, 0.2, 0.01)
	if !approx(plan.Orders[0].TP, 2030) {
		t.Fatalf("tp2 target: %+v", plan.Orders[0])
	}

	// Целей меньше, чем настроенный индекс — берём последнюю.
	plan = p.Build(sig(2025, 2030), models.ModeSniper, 0.2, 0.01)
	if !approx(plan.Orders[0].TP, 2030) || plan.Orders[0].Label != "Sniper: GoldVIP" {
		t.Fatalf("clamped target: %+v", plan.Orders[0])
	}
}

func TestScalperTargetsFirstTP(t *testing.T) {
	p := New(nil, "tp3")
	plan := p.Build(sig(2025, 2030, 2040), models.ModeScalper, 0.15, 0.01)
	if len(plan.Orders) != 1 || !approx(plan.Orders[0].TP, 2025) {
		t.Fatalf("plan = %+v", plan)
	}
}

func TestProgressiveFlagsPlan(t *testing.T) {
	p := New(nil, "tp3")
	plan := p.Build(sig(2025, 2030, 2040), models.ModeProgressive, 0.3, 0.01)
	if !plan.Progressive {
		t.Fatal("progressive flag not set")
	}
	if len(plan.Orders) != 1 || !approx(plan.Orders[0].TP, 2040) {
		t.Fatalf("plan = %+v", plan)
	}
}

func TestSplitSumsExactly(t *testing.T) {
	p := New([]float64{33, 33, 34}, "tp3")
	plan := p.Build(sig(2025, 2030, 2040), models.ModeSplit, 1.00, 0.01)
	if len(plan.Orders) != 3 {
		t.Fatalf("orders = %+v", plan.Orders)
	}
	sum := 0.0
	for _, o := range plan.Orders {
		sum += o.Size
	}
	if !approx(sum, 1.00) {
		t.Fatalf("split sum = %v, want exactly 1.00", sum)
	}
	if plan.Orders[0].Label != "Split TP1: GoldVIP" || plan.Orders[2].Label != "Split TP3: GoldVIP" {
		t.Fatalf("labels: %q %q", plan.Orders[0].Label, plan.Orders[2].Label)
	}
	for i, tp := range []float64{2025, 2030, 2040} {
		if !approx(plan.Orders[i].TP, tp) {
			t.Fatalf("order %d tp = %v", i, plan.Orders[i].TP)
		}
	}
}

func TestSplitCollapsesWhenTooSmall(t *testing.T) {
	p := New([]float64{33, 33, 34}, "tp3")

	// 0.02 лота на три ордера не делится: min съедает остаток.
	plan := p.Build(sig(2025, 2030, 2040), models.ModeSplit, 0.02, 0.01)
	if len(plan.Orders) != 1 {
		t.Fatalf("expected collapse, got %+v", plan.Orders)
	}
	o := plan.Orders[0]
	if !approx(o.Size, 0.02) || !approx(o.TP, 2025) || o.Label != "Split TP1: GoldVIP" {
		t.Fatalf("collapsed order = %+v", o)
	}
}

func TestSplitWithTwoTargets(t *testing.T) {
	p := New([]float64{33, 33, 34}, "tp3")
	plan := p.Build(sig(2025, 2030), models.ModeSplit, 1.00, 0.01)
	if len(plan.Orders) != 2 {
		t.Fatalf("orders = %+v", plan.Orders)
	}
	if !approx(plan.Orders[0].Size, 0.33) || !approx(plan.Orders[1].Size, 0.33) {
		t.Fatalf("sizes: %+v", plan.Orders)
	}
}
