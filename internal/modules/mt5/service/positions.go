package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jonkers71/unified-trading-system/internal/models"
)

func (c *Client) OpenPositions(ctx context.Context, filterTag string) ([]models.VenuePosition, error) {
	path := "/positions"
	if filterTag != "" {
		path += "?magic=" + url.QueryEscape(filterTag)
	}

	var payload struct {
		Positions []struct {
			Ticket    int64   `json:"ticket"`
			Symbol    string  `json:"symbol"`
			Type      int     `json:"type"` // 0 — BUY, 1 — SELL
			Volume    float64 `json:"volume"`
			PriceOpen float64 `json:"price_open"`
			SL        float64 `json:"sl"`
			TP        float64 `json:"tp"`
		} `json:"positions"`
	}
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}

	out := make([]models.VenuePosition, 0, len(payload.Positions))
	for _, p := range payload.Positions {
		side := models.SideBuy
		if p.Type == 1 {
			side = models.SideSell
		}
		out = append(out, models.VenuePosition{
			Ref:    strconv.FormatInt(p.Ticket, 10),
			Symbol: p.Symbol,
			Side:   side,
			Size:   p.Volume,
			Entry:  p.PriceOpen,
			SL:     p.SL,
			TP:     p.TP,
		})
	}
	return out, nil
}

func (c *Client) ClosedDeals(ctx context.Context, since time.Time) ([]models.ClosedDeal, error) {
	var payload struct {
		Deals []struct {
			Time       int64   `json:"time"`
			Profit     float64 `json:"profit"`
			Commission float64 `json:"commission"`
			Swap       float64 `json:"swap"`
		} `json:"deals"`
	}
	path := fmt.Sprintf("/history_deals?from=%d&magic=%d", since.Unix(), c.magic)
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}

	out := make([]models.ClosedDeal, 0, len(payload.Deals))
	for _, d := range payload.Deals {
		// Чистый результат: комиссия и своп уже внутри.
		out = append(out, models.ClosedDeal{
			Time:   time.Unix(d.Time, 0),
			Profit: d.Profit + d.Commission + d.Swap,
		})
	}
	return out, nil
}
