package risk

import (
	"math"
	"testing"

	"github.com/jonkers71/unified-trading-system/internal/models"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

var goldInfo = models.SymbolInfo{
	Symbol:    "XAUUSD",
	TickSize:  0.01,
	TickValue: 1,
	SizeStep:  0.01,
	SizeMin:   0.01,
	SizeMax:   50,
}

func TestMT5Lot(t *testing.T) {
	s := NewSizer(0.01)

	tests := []struct {
		name    string
		balance float64
		entry   float64
		stop    float64
		want    float64
		wantErr bool
	}{
		{"risk formula", 10000, 2020.00, 2015.00, 0.20, false},
		{"clamped to max", 10000000, 2020.00, 2015.00, 50, false},
		{"raised to min", 100, 2020.00, 2015.00, 0.01, false},
		{"zero stop distance", 10000, 2020.00, 2020.00, 0, true},
		{"zero balance", 0, 2020.00, 2015.00, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.MT5Lot(goldInfo, tt.entry, tt.stop, tt.balance)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got lot=%v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !approx(got, tt.want) {
				t.Fatalf("lot = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMT5LotMissingTickMeta(t *testing.T) {
	s := NewSizer(0.01)
	info := goldInfo
	info.TickSize = 0
	if _, err := s.MT5Lot(info, 2020, 2015, 10000); err == nil {
		t.Fatal("expected error on zero tick size")
	}
}

func TestBybitQty(t *testing.T) {
	s := NewSizer(0.01)
	rules := models.InstrumentRules{
		Symbol:      "BTCUSDT",
		QtyStep:     0.001,
		MinQty:      0.001,
		MinNotional: 5,
	}

	// Рисковое qty сильно выше notional-минимума: буфер не применяется.
	got, err := s.BybitQty(rules, 100, 99, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(got, 10.0) {
		t.Fatalf("qty = %v, want 10.0", got)
	}

	// Нулевая дистанция — отказ.
	if _, err := s.BybitQty(rules, 100, 100, 1000); err == nil {
		t.Fatal("expected error on zero stop distance")
	}
}

func TestBybitQtyNotionalFloor(t *testing.T) {
	// risk = 10 * 0.001 = 0.01 USDT, dist = 1 => qty 0.01.
	// Минимум по notional: 5/100 = 0.05, с буфером 1.5% => 0.051.
	s := NewSizer(0.001)
	rules := models.InstrumentRules{
		Symbol:      "BTCUSDT",
		QtyStep:     0.001,
		MinQty:      0.001,
		MinNotional: 5,
	}
	got, err := s.BybitQty(rules, 100, 99, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(got, 0.051) {
		t.Fatalf("qty = %v, want 0.051", got)
	}
	if got*100 < 5 {
		t.Fatalf("notional %.4f still below minimum", got*100)
	}
}
