package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-executor/pkg/exchanges/common"
)

func TestRegistryLookup(t *testing.T) {
	r := DefaultRegistry(nil)

	for _, name := range []string{"binance", "BINANCE", " Kraken ", "coinbase", "Coinbase-Pro", "kucoin", "bybit", "mexc", "bingx", "coinex"} {
		_, err := r.Lookup(name)
		assert.NoError(t, err, name)
	}

	_, err := r.Lookup("ftx")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnsupportedExchange)
	assert.True(t, common.IsValidation(err))

	caps := r.List()
	require.Len(t, caps, 8)
	assert.Equal(t, "binance", caps[0].Name)
}

func TestRegistryBuildUsesCanonicalName(t *testing.T) {
	r := DefaultRegistry(nil)
	req, err := r.Build(common.SizedOrder{Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(2)},
		common.OrderIntent{Symbol: "BTCUSDT", Side: common.SideBuy, Exchange: "Coinbase"})
	require.NoError(t, err)
	assert.Equal(t, "coinbase-pro", req.Exchange)
	assert.Equal(t, "BTC-USDT", req.Body["product_id"])
}

func TestRegistryNormalizeUnknownExchange(t *testing.T) {
	out := DefaultRegistry(nil).Normalize(common.RawResponse{Exchange: "ftx", Body: []byte(`{}`)})
	assert.Equal(t, common.StatusUnknown, out.Status)
	assert.NotEmpty(t, out.Error)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchanges.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
exchanges:
  kraken:
    live: https://kraken.internal
    sandbox: https://kraken-sandbox.internal
    sandbox_verified: true
`), 0o600))

	r := DefaultRegistry(nil)
	require.NoError(t, r.LoadOverrides(path))
	a, err := r.Lookup("kraken")
	require.NoError(t, err)
	assert.Equal(t, "https://kraken-sandbox.internal", a.Endpoints.Resolve(true))
	assert.True(t, a.Endpoints.SandboxVerified)

	require.NoError(t, os.WriteFile(path, []byte("exchanges:\n  ftx:\n    live: https://x\n"), 0o600))
	assert.ErrorIs(t, r.LoadOverrides(path), common.ErrUnsupportedExchange)
}

func testRegistry(t *testing.T, url string) *Registry {
	t.Helper()
	r := DefaultRegistry(nil)
	require.NoError(t, r.SetEndpoints("binance", common.Endpoints{Live: url, Sandbox: url, SandboxVerified: true}))
	return r
}

func binanceRequest() common.OrderRequest {
	return common.OrderRequest{
		Exchange:      "binance",
		Path:          "/api/v3/order",
		ClientOrderID: "cid",
		Body:          map[string]any{"symbol": "BTCUSDT", "side": "buy"},
	}
}

func TestExecuteSendsHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
		assert.Equal(t, "secret", r.Header.Get("X-MBX-APISECRET"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "BTCUSDT", body["symbol"])

		w.Header().Set("X-MBX-USED-WEIGHT-1M", "600")
		_, _ = w.Write([]byte(`{"orderId":1,"status":"FILLED"}`))
	}))
	defer srv.Close()

	mgr := NewManager(DefaultConfig(), nil)
	c := NewClient(testRegistry(t, srv.URL), mgr, time.Second, nil)
	raw, err := c.Execute(context.Background(), binanceRequest(), common.Credentials{APIKey: "key", APISecret: "secret"}, true)
	require.NoError(t, err)
	assert.Equal(t, "binance", raw.Exchange)
	assert.Equal(t, http.StatusOK, raw.StatusCode)
	assert.JSONEq(t, `{"orderId":1,"status":"FILLED"}`, string(raw.Body))
	assert.False(t, raw.ReceivedAt.IsZero())

	stats := mgr.Stats()
	require.Len(t, stats.Exchanges, 1)
	require.NotNil(t, stats.Exchanges[0].Usage)
	assert.Equal(t, 600, stats.Exchanges[0].Usage.Used)
	assert.True(t, stats.Exchanges[0].Healthy)
}

func TestExecuteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1013,"msg":"Filter failure: LOT_SIZE"}`))
	}))
	defer srv.Close()

	c := NewClient(testRegistry(t, srv.URL), nil, time.Second, nil)
	_, err := c.Execute(context.Background(), binanceRequest(), common.Credentials{}, false)

	var httpErr *common.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "LOT_SIZE")
}

func TestExecuteTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(testRegistry(t, srv.URL), nil, 50*time.Millisecond, nil)
	_, err := c.Execute(context.Background(), binanceRequest(), common.Credentials{}, false)

	var netErr *common.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecuteUnsupportedExchange(t *testing.T) {
	c := NewClient(DefaultRegistry(nil), nil, time.Second, nil)
	req := binanceRequest()
	req.Exchange = "ftx"
	_, err := c.Execute(context.Background(), req, common.Credentials{}, false)
	assert.ErrorIs(t, err, common.ErrUnsupportedExchange)
}

func TestCircuitBreakerIsolatesExchange(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	mgr := NewManager(Config{FailureThreshold: 2, CircuitTimeout: time.Hour}, nil)
	c := NewClient(testRegistry(t, srv.URL), mgr, time.Second, nil)
	for i := 0; i < 2; i++ {
		_, err := c.Execute(context.Background(), binanceRequest(), common.Credentials{}, false)
		require.Error(t, err)
	}

	_, err := c.Execute(context.Background(), binanceRequest(), common.Credentials{}, false)
	assert.ErrorIs(t, err, ErrGatewayUnhealthy)
	assert.Equal(t, int32(2), calls.Load(), "open circuit must not reach the exchange")

	assert.NoError(t, mgr.Allow("kraken"), "other exchanges are unaffected")
	assert.Equal(t, 1, mgr.Stats().UnhealthyCount)
}

func TestCircuitHalfOpenTrial(t *testing.T) {
	now := time.Now()
	mgr := NewManager(Config{FailureThreshold: 1, CircuitTimeout: time.Minute}, nil)
	mgr.now = func() time.Time { return now }

	mgr.RecordFailure("bybit", errors.New("boom"))
	assert.ErrorIs(t, mgr.Allow("bybit"), ErrGatewayUnhealthy)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, mgr.Allow("bybit"), "one trial call after the timeout")
	assert.ErrorIs(t, mgr.Allow("bybit"), ErrGatewayUnhealthy, "only one trial at a time")

	mgr.RecordSuccess("bybit")
	assert.NoError(t, mgr.Allow("bybit"))
}
