package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jonkers71/unified-trading-system/internal/modules/config"
	"github.com/jonkers71/unified-trading-system/pkg/logger"
)

const (
	mainnetWS = "wss://stream.bybit.com/v5/public/linear"
	testnetWS = "wss://stream-testnet.bybit.com/v5/public/linear"
)

// TickerCache держит последние цены линейных контрактов из публичного
// тикерного потока. Подписки добавляются на лету: первый промах по
// символу ставит его в очередь и греет кэш REST-запросом в фоне.
type TickerCache struct {
	mu     sync.RWMutex
	prices map[string]float64
	subs   map[string]bool

	pending chan string
	dialer  *websocket.Dialer
	wsURL   string
	rest    *Client
}

func NewTickerCache(cfg *config.Config, rest *Client) *TickerCache {
	url := mainnetWS
	if cfg.Bybit.Testnet {
		url = testnetWS
	}
	return &TickerCache{
		prices:  make(map[string]float64),
		subs:    make(map[string]bool),
		pending: make(chan string, 64),
		dialer:  &websocket.Dialer{},
		wsURL:   url,
		rest:    rest,
	}
}

// LastPrice отдаёт кэш, не блокируясь. Промах запускает подписку
// и прогрев; вызывающий ретраит сам.
func (t *TickerCache) LastPrice(symbol string) (float64, bool) {
	t.mu.RLock()
	px, ok := t.prices[symbol]
	t.mu.RUnlock()
	if ok {
		return px, true
	}
	t.Subscribe(symbol)
	return 0, false
}

// Subscribe добавляет символ в поток. Повторные вызовы бесплатны.
func (t *TickerCache) Subscribe(symbol string) {
	t.mu.Lock()
	seen := t.subs[symbol]
	if !seen {
		t.subs[symbol] = true
	}
	t.mu.Unlock()
	if seen {
		return
	}

	go t.warm(symbol)
	select {
	case t.pending <- symbol:
	default:
		// очередь забита, символ уйдёт при следующем реконнекте
	}
}

// warm — одноразовый REST-прогрев, пока поток не принёс первую цену.
func (t *TickerCache) warm(symbol string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	px, err := t.rest.LastPriceREST(ctx, symbol)
	if err != nil {
		logger.Warn("ticker warmup %s: %v", symbol, err)
		return
	}
	t.mu.Lock()
	if _, ok := t.prices[symbol]; !ok {
		t.prices[symbol] = px
	}
	t.mu.Unlock()
}

func (t *TickerCache) setPrice(symbol string, px float64) {
	t.mu.Lock()
	t.prices[symbol] = px
	t.mu.Unlock()
}

func (t *TickerCache) topics() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.subs))
	for s := range t.subs {
		out = append(out, "tickers."+s)
	}
	return out
}

// Run держит соединение до отмены контекста: реконнект с нарастающей
// паузой, ping раз в 20 секунд, досылка набежавших подписок.
func (t *TickerCache) Run(ctx context.Context) {
	retry := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := t.dialer.Dial(t.wsURL, nil)
		if err != nil {
			retry++
			wait := time.Duration(300*retry) * time.Millisecond
			if wait > 5*time.Second {
				wait = 5 * time.Second
			}
			logger.Warn("bybit ws dial: %v (retry %d)", err, retry)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		retry = 0

		// Подписки шлём до запуска писателя, чтобы не писать в сокет с двух сторон.
		if topics := t.topics(); len(topics) > 0 {
			_ = conn.WriteJSON(map[string]any{"op": "subscribe", "args": topics})
		}

		stop := make(chan struct{})
		go t.writeLoop(ctx, conn, stop)

		t.readLoop(conn)
		close(stop)
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return
		default:
			time.Sleep(1 * time.Second)
		}
	}
}

// writeLoop — единственный писатель сокета: ping и новые подписки.
func (t *TickerCache) writeLoop(ctx context.Context, conn *websocket.Conn, stop chan struct{}) {
	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case sym := <-t.pending:
			_ = conn.WriteJSON(map[string]any{"op": "subscribe", "args": []string{"tickers." + sym}})
		case <-ping.C:
			_ = conn.WriteJSON(map[string]string{"op": "ping"})
		}
	}
}

func (t *TickerCache) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame struct {
			Topic string `json:"topic"`
			Data  struct {
				Symbol    string `json:"symbol"`
				LastPrice string `json:"lastPrice"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg, &frame); err != nil || !strings.HasPrefix(frame.Topic, "tickers.") {
			continue
		}
		// Дельта-кадры без lastPrice просто пропускаем.
		px, err := strconv.ParseFloat(frame.Data.LastPrice, 64)
		if err != nil || px <= 0 {
			continue
		}
		sym := frame.Data.Symbol
		if sym == "" {
			sym = strings.TrimPrefix(frame.Topic, "tickers.")
		}
		t.setPrice(sym, px)
	}
}
