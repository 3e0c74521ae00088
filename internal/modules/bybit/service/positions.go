package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonkers71/unified-trading-system/internal/models"
	"github.com/jonkers71/unified-trading-system/internal/venue"
)

// 34040 — not modified: уровень уже стоит там, куда просим.
const retNotModified = 34040

func (c *Client) SetTradingStop(ctx context.Context, req venue.TradingStopRequest) (venue.StopResult, error) {
	body := map[string]any{
		"category":    "linear",
		"symbol":      req.Symbol,
		"positionIdx": 0,
	}
	if req.StopLoss > 0 {
		body["stopLoss"] = formatPrice(req.StopLoss)
		body["slOrderType"] = "Market"
	}
	if req.TakeProfit > 0 {
		body["takeProfit"] = formatPrice(req.TakeProfit)
		body["tpOrderType"] = "Market"
	}
	if req.Size > 0 {
		body["tpslMode"] = "Partial"
		if req.StopLoss > 0 {
			body["slSize"] = formatQty(req.Size)
		}
		if req.TakeProfit > 0 {
			body["tpSize"] = formatQty(req.Size)
		}
	}

	var env envelope
	if err := c.signedPost(ctx, "/v5/position/trading-stop", body, &env); err != nil {
		return venue.StopResult{}, err
	}
	if env.RetCode == retNotModified {
		return venue.StopResult{Success: true}, nil
	}
	if env.RetCode != 0 {
		if err := c.check(env); errors.Is(err, venue.ErrAuth) {
			return venue.StopResult{}, err
		}
		return venue.StopResult{RejectReason: fmt.Sprintf("retCode %d: %s", env.RetCode, env.RetMsg)}, nil
	}
	return venue.StopResult{Success: true}, nil
}

func (c *Client) OpenPositions(ctx context.Context) ([]models.VenuePosition, error) {
	var env envelope
	if err := c.signedGet(ctx, "/v5/position/list", "category=linear&settleCoin=USDT", &env); err != nil {
		return nil, err
	}
	if err := c.check(env); err != nil {
		return nil, err
	}

	var result struct {
		List []struct {
			Symbol     string `json:"symbol"`
			Side       string `json:"side"`
			Size       string `json:"size"`
			AvgPrice   string `json:"avgPrice"`
			StopLoss   string `json:"stopLoss"`
			TakeProfit string `json:"takeProfit"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	out := make([]models.VenuePosition, 0, len(result.List))
	for _, p := range result.List {
		size, _ := strconv.ParseFloat(p.Size, 64)
		if size <= 0 {
			// пустой слот one-way режима
			continue
		}
		side := models.SideBuy
		if p.Side == "Sell" {
			side = models.SideSell
		}
		entry, _ := strconv.ParseFloat(p.AvgPrice, 64)
		sl, _ := strconv.ParseFloat(p.StopLoss, 64)
		tp, _ := strconv.ParseFloat(p.TakeProfit, 64)
		out = append(out, models.VenuePosition{
			// Позиция на символ одна, её ключ — сам символ.
			Ref:    p.Symbol,
			Symbol: p.Symbol,
			Side:   side,
			Size:   size,
			Entry:  entry,
			SL:     sl,
			TP:     tp,
		})
	}
	return out, nil
}

func (c *Client) ClosedPnl(ctx context.Context, limit int) ([]models.ClosedDeal, error) {
	if limit <= 0 {
		limit = 50
	}

	var env envelope
	if err := c.signedGet(ctx, "/v5/position/closed-pnl", fmt.Sprintf("category=linear&limit=%d", limit), &env); err != nil {
		return nil, err
	}
	if err := c.check(env); err != nil {
		return nil, err
	}

	var result struct {
		List []struct {
			UpdatedTime string `json:"updatedTime"` // unix ms строкой
			ClosedPnl   string `json:"closedPnl"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	out := make([]models.ClosedDeal, 0, len(result.List))
	for _, e := range result.List {
		ms, err := strconv.ParseInt(e.UpdatedTime, 10, 64)
		if err != nil {
			continue
		}
		pnl, err := strconv.ParseFloat(e.ClosedPnl, 64)
		if err != nil {
			continue
		}
		out = append(out, models.ClosedDeal{Time: time.UnixMilli(ms), Profit: pnl})
	}
	return out, nil
}
