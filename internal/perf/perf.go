// Package perf собирает закрытые сделки обеих площадок в дневную
// доходность и кривую капитала для статусной страницы.
package perf

import (
	"context"
	"sort"
	"time"

	"github.com/jonkers71/unified-trading-system/internal/helper"
	"github.com/jonkers71/unified-trading-system/internal/models"
	"github.com/jonkers71/unified-trading-system/internal/tracker"
	"github.com/jonkers71/unified-trading-system/internal/venue"
	"github.com/jonkers71/unified-trading-system/pkg/logger"
)

const (
	// окно дневной статистики
	window = 7 * 24 * time.Hour
	// сколько закрытых PnL-записей запрашиваем у криптобиржи
	pnlFetchLimit = 100
)

type Aggregator struct {
	tracker *tracker.Tracker
	forex   venue.ForexTerminal
	crypto  venue.CryptoExchange

	now func() time.Time
}

func New(tr *tracker.Tracker, forex venue.ForexTerminal, crypto venue.CryptoExchange) *Aggregator {
	return &Aggregator{tracker: tr, forex: forex, crypto: crypto, now: time.Now}
}

// Refresh пересобирает статистику за окно и фиксирует дневной профит
// в сторе. Недоступная площадка пропускается: лучше частичная
// статистика, чем никакой.
func (a *Aggregator) Refresh(ctx context.Context) models.PerformanceStats {
	now := a.now()
	since := now.Add(-window)

	var deals []models.ClosedDeal
	if a.forex != nil {
		got, err := a.forex.ClosedDeals(ctx, since)
		if err != nil {
			logger.Error("perf: forex deals unavailable: %v", err)
		} else {
			deals = append(deals, got...)
		}
	}
	if a.crypto != nil {
		got, err := a.crypto.ClosedPnl(ctx, pnlFetchLimit)
		if err != nil {
			logger.Error("perf: crypto pnl unavailable: %v", err)
		} else {
			deals = append(deals, got...)
		}
	}

	filtered := deals[:0]
	for _, d := range deals {
		if d.Time.Before(since) || d.Time.After(now) {
			continue
		}
		filtered = append(filtered, d)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Time.Before(filtered[j].Time) })

	stats := models.PerformanceStats{RefreshAt: now}
	byDay := make(map[string]float64)
	var cum float64
	for _, d := range filtered {
		byDay[helper.DayKey(d.Time)] += d.Profit
		cum = helper.Round2(cum + d.Profit)
		stats.Equity = append(stats.Equity, models.EquityPoint{Time: d.Time, Cum: cum})
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		stats.Daily = append(stats.Daily, models.DailyPnL{Day: day, PnL: helper.Round2(byDay[day])})
	}

	today := helper.Round2(byDay[helper.DayKey(now)])
	if err := a.tracker.SetDailyProfit(ctx, today); err != nil {
		logger.Error("perf: daily profit not persisted: %v", err)
	}

	return stats
}
