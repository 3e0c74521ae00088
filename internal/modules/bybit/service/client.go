package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/time/rate"

	"github.com/jonkers71/unified-trading-system/internal/modules/config"
	"github.com/jonkers71/unified-trading-system/internal/venue"
)

const (
	mainnetURL = "https://api.bybit.com"
	testnetURL = "https://api-testnet.bybit.com"
)

// retCode, за которыми стоит не рынок, а учётные данные: ключ, подпись,
// права, срок ключа или разъехавшиеся часы.
var authRetCodes = map[int]bool{
	10002: true, // request expired: часы уехали дальше recv_window
	10003: true, // invalid api key
	10004: true, // sign error
	10005: true, // permission denied
	33004: true, // api key expired
}

type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	recvWindow int
	http       *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg *config.Config) *Client {
	base := mainnetURL
	if cfg.Bybit.Testnet {
		base = testnetURL
	}
	return &Client{
		baseURL:    base,
		apiKey:     cfg.Bybit.APIKey,
		apiSecret:  cfg.Bybit.APISecret,
		recvWindow: cfg.Bybit.RecvWindow,
		http:       &http.Client{Timeout: 10 * time.Second},
		// 10 rps — с запасом под лимиты частных ручек V5.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// wait вписывает запрос в лимит биржи. Ждём до подписи: метка времени
// не должна стареть в очереди.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

// envelope — общая обёртка ответов V5.
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// check превращает retCode в ошибку; коды учётных данных — в venue.ErrAuth.
func (c *Client) check(env envelope) error {
	if env.RetCode == 0 {
		return nil
	}
	if authRetCodes[env.RetCode] {
		return fmt.Errorf("bybit retCode %d: %s: %w", env.RetCode, env.RetMsg, venue.ErrAuth)
	}
	return fmt.Errorf("bybit retCode %d: %s", env.RetCode, env.RetMsg)
}

// sign — HMAC-SHA256(ts + key + recvWindow + params), hex.
// params — строка запроса для GET, тело для POST.
func (c *Client) sign(ts int64, params string) string {
	s := strconv.FormatInt(ts, 10) + c.apiKey + strconv.Itoa(c.recvWindow) + params
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) auth(req *http.Request, params string) {
	ts := time.Now().UnixMilli()
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-SIGN", c.sign(ts, params))
	req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(ts, 10))
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(c.recvWindow))
}

// get — публичные маркет-данные, подпись не нужна.
func (c *Client) get(ctx context.Context, path, query string, out *envelope) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	url := c.baseURL + path
	if query != "" {
		url += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) signedGet(ctx context.Context, path, query string, out *envelope) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	url := c.baseURL + path
	if query != "" {
		url += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.auth(req, query)
	return c.do(req, out)
}

func (c *Client) signedPost(ctx context.Context, path string, body any, out *envelope) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	payload, err := sonic.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req, string(payload))
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out *envelope) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("bybit %d: %w", resp.StatusCode, venue.ErrAuth)
	}
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("bybit http %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// Биржа принимает числа строками; -1 убирает хвостовые нули.
func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
