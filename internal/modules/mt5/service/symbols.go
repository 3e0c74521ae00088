package service

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jonkers71/unified-trading-system/internal/models"
	"github.com/jonkers71/unified-trading-system/internal/venue"
)

func (c *Client) SymbolInfo(ctx context.Context, symbol string) (models.SymbolInfo, error) {
	var payload struct {
		Found      bool    `json:"found"`
		Name       string  `json:"name"`
		TickSize   float64 `json:"trade_tick_size"`
		TickValue  float64 `json:"trade_tick_value"`
		VolumeStep float64 `json:"volume_step"`
		VolumeMin  float64 `json:"volume_min"`
		VolumeMax  float64 `json:"volume_max"`
		Point      float64 `json:"point"`
		Digits     int     `json:"digits"`
		Spread     int     `json:"spread"`
		StopsLevel int     `json:"trade_stops_level"`
		TradeMode  int     `json:"trade_mode"`
	}
	if err := c.get(ctx, "/symbol_info?symbol="+url.QueryEscape(symbol), &payload); err != nil {
		return models.SymbolInfo{}, err
	}
	if !payload.Found {
		return models.SymbolInfo{}, fmt.Errorf("%s: %w", symbol, venue.ErrSymbolNotFound)
	}
	// Без этих трёх полей не посчитать лот, лучше упасть сразу.
	if payload.TickSize <= 0 || payload.TickValue <= 0 || payload.VolumeStep <= 0 {
		return models.SymbolInfo{}, fmt.Errorf("bad %s meta: tickSize=%v tickValue=%v volumeStep=%v",
			symbol, payload.TickSize, payload.TickValue, payload.VolumeStep)
	}

	return models.SymbolInfo{
		Symbol:          payload.Name,
		TickSize:        payload.TickSize,
		TickValue:       payload.TickValue,
		SizeStep:        payload.VolumeStep,
		SizeMin:         payload.VolumeMin,
		SizeMax:         payload.VolumeMax,
		Point:           payload.Point,
		Digits:          payload.Digits,
		SpreadPoints:    payload.Spread,
		StopLevelPoints: payload.StopsLevel,
		TradeMode:       models.SymbolTradeMode(payload.TradeMode),
	}, nil
}

func (c *Client) Tick(ctx context.Context, symbol string) (models.Tick, error) {
	var payload struct {
		Found bool    `json:"found"`
		Bid   float64 `json:"bid"`
		Ask   float64 `json:"ask"`
	}
	if err := c.get(ctx, "/symbol_info_tick?symbol="+url.QueryEscape(symbol), &payload); err != nil {
		return models.Tick{}, err
	}
	if !payload.Found {
		return models.Tick{}, fmt.Errorf("%s: %w", symbol, venue.ErrSymbolNotFound)
	}
	return models.Tick{Bid: payload.Bid, Ask: payload.Ask}, nil
}
