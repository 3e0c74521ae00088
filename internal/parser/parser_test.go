package parser

import (
	"math"
	"testing"

	"github.com/jonkers71/unified-trading-system/internal/models"
)

var testMeta = models.ChannelMeta{ID: -100123, Name: "GoldVIP", Venue: models.VenueForex}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestParseLabeledSignal(t *testing.T) {
	p := New()
	msg := `🔥 GOLD BUY NOW 🔥
Entry: 2020.50
SL: 2015.00
TP1: 2025.00
TP2: 2030.00
TP3: 2040.00`

	sig := p.Parse(msg, testMeta)
	if sig == nil {
		t.Fatal("expected signal, got nil")
	}
	if sig.Symbol != "GOLD" || sig.Side != models.SideBuy {
		t.Fatalf("symbol/side: %s %s", sig.Symbol, sig.Side)
	}
	if !approx(sig.Entry, 2020.50) || !approx(sig.StopLoss, 2015.00) {
		t.Fatalf("entry/sl: %v %v", sig.Entry, sig.StopLoss)
	}
	want := []float64{2025.00, 2030.00, 2040.00}
	if len(sig.TakeProfits) != len(want) {
		t.Fatalf("tps: %v", sig.TakeProfits)
	}
	for i := range want {
		if !approx(sig.TakeProfits[i], want[i]) {
			t.Fatalf("tp[%d]: %v", i, sig.TakeProfits[i])
		}
	}
	if sig.Action != models.ActionNone {
		t.Fatalf("unexpected action %s", sig.Action)
	}
	if !sig.Tradeable() {
		t.Fatal("signal should be tradeable")
	}
}

func TestParseInlineEntryAfterSymbol(t *testing.T) {
	p := New()
	msg := `SIGNAL ALERT

BUY XAUUSD 5055.8

🤑TP1: 5057.8
🤑TP2: 5060.8
🤑TP3: 5069.8
🔴SL: 5041.8`

	sig := p.Parse(msg, testMeta)
	if sig == nil {
		t.Fatal("expected signal, got nil")
	}
	if sig.Symbol != "XAUUSD" {
		t.Fatalf("noise word won over ticker: %s", sig.Symbol)
	}
	if !approx(sig.Entry, 5055.8) {
		t.Fatalf("inline entry: %v", sig.Entry)
	}
	if !approx(sig.StopLoss, 5041.8) || len(sig.TakeProfits) != 3 {
		t.Fatalf("sl/tps: %v %v", sig.StopLoss, sig.TakeProfits)
	}
}

func TestParseInlineEntryAfterSide(t *testing.T) {
	p := New()
	sig := p.Parse("EURUSD SELL 1.0850 SL 1.0900 TP 1.0800", testMeta)
	if sig == nil {
		t.Fatal("expected signal")
	}
	if sig.Side != models.SideSell || !approx(sig.Entry, 1.0850) {
		t.Fatalf("side/entry: %s %v", sig.Side, sig.Entry)
	}
	if !approx(sig.StopLoss, 1.09) || len(sig.TakeProfits) != 1 || !approx(sig.TakeProfits[0], 1.08) {
		t.Fatalf("sl/tp: %v %v", sig.StopLoss, sig.TakeProfits)
	}
}

func TestTakeProfitFilterAndDedup(t *testing.T) {
	p := New()
	tests := []struct {
		name string
		text string
		want []float64
	}{
		{
			name: "index labels dropped",
			text: "GOLD BUY SL: 2015.00 TP1: 2025.00 TP2: 2030 TP 3",
			want: []float64{2025.00, 2030},
		},
		{
			name: "duplicates collapse",
			text: "EURUSD BUY SL 1.0800 TP 1.0900 TP 1.0900 TP2 1.0950",
			want: []float64{1.0900, 1.0950},
		},
		{
			name: "bare small ints never prices",
			text: "GOLD BUY SL 2015.00 TP 1 TP 2 TARGET 3",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := p.Parse(tt.text, testMeta)
			if sig == nil {
				t.Fatal("expected signal")
			}
			if len(sig.TakeProfits) != len(tt.want) {
				t.Fatalf("tps = %v, want %v", sig.TakeProfits, tt.want)
			}
			for i := range tt.want {
				if !approx(sig.TakeProfits[i], tt.want[i]) {
					t.Fatalf("tp[%d] = %v, want %v", i, sig.TakeProfits[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseUpdateActions(t *testing.T) {
	p := New()
	tests := []struct {
		name      string
		text      string
		action    models.UpdateAction
		price     float64
		breakeven bool
	}{
		{"move sl numeric", "GOLD MOVE SL TO 2020.5", models.ActionMoveSL, 2020.5, false},
		{"sl to numeric", "XAUUSD SL TO 2018", models.ActionMoveSL, 2018, false},
		{"move sl to be", "GOLD MOVE SL TO BE", models.ActionMoveSL, 0, true},
		{"bare be", "XAUUSD BE ✅", models.ActionMoveSL, 0, true},
		{"close now", "BTCUSDT CLOSE ALL NOW", models.ActionClose, 0, false},
		{"exit half", "GOLD EXIT HALF", models.ActionClose, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := p.Parse(tt.text, testMeta)
			if sig == nil {
				t.Fatal("expected update signal")
			}
			if sig.Action != tt.action {
				t.Fatalf("action = %s, want %s", sig.Action, tt.action)
			}
			if !approx(sig.ActionPrice, tt.price) || sig.ToBreakeven != tt.breakeven {
				t.Fatalf("price/be = %v/%v", sig.ActionPrice, sig.ToBreakeven)
			}
			if sig.Side != models.SideNone {
				t.Fatalf("update should carry no side, got %s", sig.Side)
			}
		})
	}
}

func TestBareBEIgnoredInProse(t *testing.T) {
	p := New()
	sig := p.Parse("GOLD WILL BE FLYING BUY @ 2020.50 SL 2015.00 TP 2025.00", testMeta)
	if sig == nil {
		t.Fatal("expected signal")
	}
	if sig.Action != models.ActionNone {
		t.Fatalf("prose BE misread as action %s", sig.Action)
	}
	if sig.Side != models.SideBuy || !approx(sig.Entry, 2020.50) {
		t.Fatalf("side/entry: %s %v", sig.Side, sig.Entry)
	}
}

func TestParseNoise(t *testing.T) {
	p := New()
	for _, text := range []string{
		"hello",
		"GOOD MORNING TRADERS",
		"результаты за неделю 👇",
	} {
		if sig := p.Parse(text, testMeta); sig != nil {
			t.Fatalf("noise %q parsed to %+v", text, sig)
		}
	}
}

func TestPartialSignalStillReturned(t *testing.T) {
	p := New()
	sig := p.Parse("GOLD SL: 2015.00 TP: 2025.00", testMeta)
	if sig == nil {
		t.Fatal("partial signal should not be dropped")
	}
	if sig.Side != models.SideNone || sig.Tradeable() {
		t.Fatal("partial signal must not be tradeable")
	}
}

func TestParseIdempotent(t *testing.T) {
	p := New()
	text := "BUY XAUUSD 5055.8 SL 5041.8 TP1 5057.8 TP2 5060.8"
	a := p.Parse(text, testMeta)
	b := p.Parse(text, testMeta)
	if a == nil || b == nil {
		t.Fatal("expected signals")
	}
	if a.Symbol != b.Symbol || a.Side != b.Side || !approx(a.Entry, b.Entry) ||
		!approx(a.StopLoss, b.StopLoss) || len(a.TakeProfits) != len(b.TakeProfits) {
		t.Fatalf("not idempotent: %+v vs %+v", a, b)
	}
}
