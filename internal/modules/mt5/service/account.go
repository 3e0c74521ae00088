package service

import (
	"context"
	"fmt"
	"time"
)

func (c *Client) AccountBalance(ctx context.Context) (float64, error) {
	var payload struct {
		Balance  float64 `json:"balance"`
		Equity   float64 `json:"equity"`
		Currency string  `json:"currency"`
	}
	if err := c.get(ctx, "/account_info", &payload); err != nil {
		return 0, err
	}
	if payload.Balance <= 0 {
		return 0, fmt.Errorf("terminal balance %v", payload.Balance)
	}
	return payload.Balance, nil
}

// Ping меряет круговой путь через мост вместе с его походом в терминал.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	var payload struct {
		Time int64 `json:"time"`
	}
	if err := c.get(ctx, "/ping", &payload); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}
