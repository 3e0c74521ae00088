package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jonkers71/unified-trading-system/internal/models"
	"github.com/jonkers71/unified-trading-system/internal/venue"
	"github.com/jonkers71/unified-trading-system/pkg/logger"
)

func (c *Client) InstrumentRules(ctx context.Context, symbol string) (models.InstrumentRules, error) {
	var env envelope
	if err := c.get(ctx, "/v5/market/instruments-info", "category=linear&symbol="+url.QueryEscape(symbol), &env); err != nil {
		return models.InstrumentRules{}, err
	}
	if err := c.check(env); err != nil {
		return models.InstrumentRules{}, err
	}

	var result struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Status        string `json:"status"`
			LotSizeFilter struct {
				QtyStep          string `json:"qtyStep"`
				MinOrderQty      string `json:"minOrderQty"`
				MinNotionalValue string `json:"minNotionalValue"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return models.InstrumentRules{}, fmt.Errorf("decode result: %w", err)
	}
	if len(result.List) == 0 {
		return models.InstrumentRules{}, fmt.Errorf("%s: %w", symbol, venue.ErrSymbolNotFound)
	}

	inst := result.List[0]
	if inst.Status != "" && inst.Status != "Trading" {
		return models.InstrumentRules{}, fmt.Errorf("%s status %s: %w", symbol, inst.Status, venue.ErrSymbolNotFound)
	}

	parsePos := func(name, s string) (float64, error) {
		if s == "" {
			return 0, fmt.Errorf("%s empty", name)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("%s parse: %v (%q)", name, err, s)
		}
		return v, nil
	}

	qtyStep, err := parsePos("qtyStep", inst.LotSizeFilter.QtyStep)
	if err != nil {
		return models.InstrumentRules{}, err
	}
	minQty, err := parsePos("minOrderQty", inst.LotSizeFilter.MinOrderQty)
	if err != nil {
		return models.InstrumentRules{}, err
	}
	// minNotionalValue у старых контрактов бывает пустым, это не ошибка.
	var minNotional float64
	if s := inst.LotSizeFilter.MinNotionalValue; s != "" {
		minNotional, _ = strconv.ParseFloat(s, 64)
	}

	return models.InstrumentRules{
		Symbol:      inst.Symbol,
		QtyStep:     qtyStep,
		MinQty:      minQty,
		MinNotional: minNotional,
	}, nil
}

// LastPriceREST — запасной путь за ценой, пока тикерный кэш холодный.
func (c *Client) LastPriceREST(ctx context.Context, symbol string) (float64, error) {
	var env envelope
	if err := c.get(ctx, "/v5/market/tickers", "category=linear&symbol="+url.QueryEscape(symbol), &env); err != nil {
		return 0, err
	}
	if err := c.check(env); err != nil {
		return 0, err
	}

	var result struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return 0, fmt.Errorf("decode result: %w", err)
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("%s: %w", symbol, venue.ErrSymbolNotFound)
	}
	px, err := strconv.ParseFloat(result.List[0].LastPrice, 64)
	if err != nil || px <= 0 {
		return 0, fmt.Errorf("lastPrice parse: %v (%q)", err, result.List[0].LastPrice)
	}
	return px, nil
}

// ServerTime — часы биржи с наносекундной меткой.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var env envelope
	if err := c.get(ctx, "/v5/market/time", "", &env); err != nil {
		return time.Time{}, err
	}
	if err := c.check(env); err != nil {
		return time.Time{}, err
	}

	var result struct {
		TimeNano string `json:"timeNano"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return time.Time{}, fmt.Errorf("decode result: %w", err)
	}
	ns, err := strconv.ParseInt(result.TimeNano, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeNano parse: %v (%q)", err, result.TimeNano)
	}
	return time.Unix(0, ns), nil
}

// Ping дергает серверное время. Заодно сверяет часы: дрейф больше
// recv_window развалит подпись любого приватного запроса.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()

	server, err := c.ServerTime(ctx)
	if err != nil {
		return 0, err
	}
	drift := time.Now().UnixMilli() - server.UnixMilli()
	if drift < 0 {
		drift = -drift
	}
	if drift > int64(c.recvWindow) {
		logger.Warn("bybit clock drift %dms exceeds recv_window %dms", drift, c.recvWindow)
	}
	return time.Since(start), nil
}
