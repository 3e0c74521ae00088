package helper

import (
	"math"
	"strings"
	"time"
)

// NormSymbol чистит тикер: верхний регистр, без слэшей и пробелов.
func NormSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "/", "")
	return s
}

func DedupKey(symbol, side string) string { return symbol + "|" + side }

func DayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Floor(px/tick + 1e-12)
	return steps * tick
}

func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Ceil(px/tick - 1e-12)
	return steps * tick
}

// Round2 / Round8 — финальное округление размера: лоты MT5 и qty Bybit.
func Round2(v float64) float64 { return math.Round(v*100) / 100 }

func Round8(v float64) float64 { return math.Round(v*1e8) / 1e8 }
