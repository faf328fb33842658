package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const tickerPath = "/api/v5/market/ticker"

// tickerResponse OKX 行情接口响应
type tickerResponse struct {
	Code string `json:"code"` // "0" 表示成功
	Msg  string `json:"msg"`
	Data []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"` // 最新成交价
	} `json:"data"`
}

type cachedPrice struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// OKXConverter prices symbols in USD from the OKX spot ticker of <SYMBOL>-USDT.
// Pegged symbols are 1:1 and never fetched.
type OKXConverter struct {
	baseURL string
	client  *http.Client
	ttl     time.Duration
	pegged  map[string]struct{}
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cachedPrice
}

func NewOKXConverter(baseURL string, timeout, ttl time.Duration, pegged []string, logger *zap.Logger) *OKXConverter {
	p := make(map[string]struct{}, len(pegged))
	for _, s := range pegged {
		p[strings.ToUpper(s)] = struct{}{}
	}
	return &OKXConverter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		ttl:     ttl,
		pegged:  p,
		logger:  logger,
		now:     time.Now,
		cache:   make(map[string]cachedPrice),
	}
}

// ToUSD converts amount of symbol to USD.
func (c *OKXConverter) ToUSD(ctx context.Context, symbol string, amount decimal.Decimal) (decimal.Decimal, error) {
	price, err := c.Price(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(price), nil
}

// Price returns the USD price of one unit of symbol.
func (c *OKXConverter) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return decimal.Zero, fmt.Errorf("symbol is required")
	}
	if _, ok := c.pegged[symbol]; ok {
		return decimal.NewFromInt(1), nil
	}

	c.mu.Lock()
	cached, ok := c.cache[symbol]
	c.mu.Unlock()
	if ok && c.now().Sub(cached.fetchedAt) < c.ttl {
		return cached.price, nil
	}

	price, err := c.fetch(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.cache[symbol] = cachedPrice{price: price, fetchedAt: c.now()}
	c.mu.Unlock()
	return price, nil
}

func (c *OKXConverter) fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{"instId": {symbol + "-USDT"}}
	fullURL := fmt.Sprintf("%s%s?%s", c.baseURL, tickerPath, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch OKX ticker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("OKX ticker HTTP error", zap.Int("status", resp.StatusCode), zap.String("symbol", symbol))
		return decimal.Zero, fmt.Errorf("OKX ticker returned non-200 status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read response body: %w", err)
	}
	var ticker tickerResponse
	if err := json.Unmarshal(body, &ticker); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if ticker.Code != "0" {
		return decimal.Zero, fmt.Errorf("OKX API error: code=%s, msg=%s", ticker.Code, ticker.Msg)
	}
	if len(ticker.Data) == 0 {
		return decimal.Zero, fmt.Errorf("no ticker for %s", symbol)
	}

	price, err := decimal.NewFromString(ticker.Data[0].Last)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q: %w", ticker.Data[0].Last, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive price for %s", symbol)
	}
	c.logger.Debug("fetched price", zap.String("symbol", symbol), zap.String("usd", price.String()))
	return price, nil
}
