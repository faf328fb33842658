package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTickerServer(t *testing.T, body string, status int, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, tickerPath, r.URL.Path)
		assert.Equal(t, "ETH-USDT", r.URL.Query().Get("instId"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestToUSDFetchesAndCaches(t *testing.T) {
	var hits int32
	srv := newTickerServer(t, `{"code":"0","msg":"","data":[{"instId":"ETH-USDT","last":"2500.5"}]}`, http.StatusOK, &hits)

	c := NewOKXConverter(srv.URL, time.Second, time.Minute, []string{"USDC"}, zap.NewNop())
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	usd, err := c.ToUSD(context.Background(), "eth", decimal.RequireFromString("2"))
	require.NoError(t, err)
	assert.Equal(t, "5001", usd.String())

	_, err = c.ToUSD(context.Background(), "ETH", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	now = now.Add(2 * time.Minute)
	_, err = c.ToUSD(context.Background(), "ETH", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestPeggedSymbolsSkipNetwork(t *testing.T) {
	c := NewOKXConverter("http://127.0.0.1:1", time.Second, time.Minute, []string{"USDC", "usdt"}, zap.NewNop())

	usd, err := c.ToUSD(context.Background(), "USDT", decimal.RequireFromString("12.34"))
	require.NoError(t, err)
	assert.Equal(t, "12.34", usd.String())
}

func TestToUSDErrors(t *testing.T) {
	var hits int32
	srv := newTickerServer(t, `{"code":"51001","msg":"Instrument ID does not exist","data":[]}`, http.StatusOK, &hits)
	c := NewOKXConverter(srv.URL, time.Second, time.Minute, nil, zap.NewNop())
	_, err := c.ToUSD(context.Background(), "ETH", decimal.NewFromInt(1))
	assert.ErrorContains(t, err, "51001")

	bad := newTickerServer(t, `oops`, http.StatusBadGateway, &hits)
	c = NewOKXConverter(bad.URL, time.Second, time.Minute, nil, zap.NewNop())
	_, err = c.ToUSD(context.Background(), "ETH", decimal.NewFromInt(1))
	assert.ErrorContains(t, err, "502")

	_, err = c.ToUSD(context.Background(), " ", decimal.NewFromInt(1))
	assert.Error(t, err)
}
