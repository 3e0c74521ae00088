package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jonkers71/unified-trading-system/internal/venue"
)

func (c *Client) PlaceMarketOrder(ctx context.Context, req venue.MarketOrderRequest) (venue.OrderResult, error) {
	body := map[string]any{
		"symbol":  req.Symbol,
		"side":    string(req.Side),
		"volume":  req.Size,
		"sl":      req.StopLoss,
		"tp":      req.TakeProfit,
		"comment": req.Comment,
		"magic":   c.magic,
	}

	var payload struct {
		Retcode int    `json:"retcode"`
		Order   int64  `json:"order"`
		Comment string `json:"comment"`
	}
	if err := c.post(ctx, "/order_send", body, &payload); err != nil {
		return venue.OrderResult{}, err
	}

	if payload.Retcode != retcodeDone {
		return venue.OrderResult{
			RejectCode:   strconv.Itoa(payload.Retcode),
			RejectReason: payload.Comment,
		}, nil
	}
	return venue.OrderResult{Success: true, Ticket: strconv.FormatInt(payload.Order, 10)}, nil
}

func (c *Client) ModifyStop(ctx context.Context, ticket string, newStop float64) (venue.StopResult, error) {
	id, err := strconv.ParseInt(ticket, 10, 64)
	if err != nil {
		return venue.StopResult{}, fmt.Errorf("ticket %q: %w", ticket, err)
	}

	var payload struct {
		Retcode int    `json:"retcode"`
		Comment string `json:"comment"`
	}
	body := map[string]any{"ticket": id, "sl": newStop}
	if err := c.post(ctx, "/position_modify", body, &payload); err != nil {
		return venue.StopResult{}, err
	}

	if payload.Retcode != retcodeDone {
		return venue.StopResult{RejectReason: fmt.Sprintf("retcode %d: %s", payload.Retcode, payload.Comment)}, nil
	}
	return venue.StopResult{Success: true}, nil
}

func (c *Client) ClosePartial(ctx context.Context, ticket string, size float64) (venue.StopResult, error) {
	id, err := strconv.ParseInt(ticket, 10, 64)
	if err != nil {
		return venue.StopResult{}, fmt.Errorf("ticket %q: %w", ticket, err)
	}

	var payload struct {
		Retcode int    `json:"retcode"`
		Comment string `json:"comment"`
	}
	body := map[string]any{"ticket": id, "volume": size}
	if err := c.post(ctx, "/position_close", body, &payload); err != nil {
		return venue.StopResult{}, err
	}

	if payload.Retcode != retcodeDone {
		return venue.StopResult{RejectReason: fmt.Sprintf("retcode %d: %s", payload.Retcode, payload.Comment)}, nil
	}
	return venue.StopResult{Success: true}, nil
}
