package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

func (c *Client) WalletBalance(ctx context.Context) (float64, error) {
	var env envelope
	if err := c.signedGet(ctx, "/v5/account/wallet-balance", "accountType=UNIFIED&coin=USDT", &env); err != nil {
		return 0, err
	}
	if err := c.check(env); err != nil {
		return 0, err
	}

	var result struct {
		List []struct {
			TotalEquity string `json:"totalEquity"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return 0, fmt.Errorf("decode result: %w", err)
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("empty wallet list")
	}
	eq, err := strconv.ParseFloat(result.List[0].TotalEquity, 64)
	if err != nil || eq <= 0 {
		return 0, fmt.Errorf("totalEquity parse: %v (%q)", err, result.List[0].TotalEquity)
	}
	return eq, nil
}
