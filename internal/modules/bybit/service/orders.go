package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jonkers71/unified-trading-system/internal/models"
	"github.com/jonkers71/unified-trading-system/internal/venue"
)

func (c *Client) PlaceMarketOrder(ctx context.Context, req venue.CryptoOrderRequest) (venue.OrderResult, error) {
	side := "Buy"
	if req.Side == models.SideSell {
		side = "Sell"
	}

	// positionIdx 0 — one-way режим, одна позиция на символ.
	body := map[string]any{
		"category":    "linear",
		"symbol":      req.Symbol,
		"side":        side,
		"orderType":   "Market",
		"qty":         formatQty(req.Qty),
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
	if req.ReduceOnly {
		body["reduceOnly"] = true
	}

	var env envelope
	if err := c.signedPost(ctx, "/v5/order/create", body, &env); err != nil {
		return venue.OrderResult{}, err
	}
	if env.RetCode != 0 {
		if err := c.check(env); errors.Is(err, venue.ErrAuth) {
			return venue.OrderResult{}, err
		}
		return venue.OrderResult{
			RejectCode:   strconv.Itoa(env.RetCode),
			RejectReason: env.RetMsg,
		}, nil
	}

	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return venue.OrderResult{}, fmt.Errorf("decode result: %w", err)
	}
	return venue.OrderResult{Success: true, Ticket: result.OrderID}, nil
}
