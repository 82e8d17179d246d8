package common

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalDefensive(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "0"},
		{"string", "12.5", "12.5"},
		{"padded string", "  3 ", "3"},
		{"garbage", "abc", "0"},
		{"empty", "", "0"},
		{"float", 0.25, "0.25"},
		{"int", 7, "7"},
		{"json number", json.Number("1e2"), "100"},
		{"bool", true, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decimal(tt.in).String())
		})
	}
}

func TestSplitPair(t *testing.T) {
	tests := []struct {
		in          string
		base, quote string
	}{
		{"BTC/USDT", "BTC", "USDT"},
		{"eth-usd", "ETH", "USD"},
		{"SOL_USDC", "SOL", "USDC"},
		{"BTCUSDT", "BTC", "USDT"},
		{"ETHBTC", "ETH", "BTC"},
		{"XYZ", "XYZ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			base, quote := SplitPair(tt.in)
			assert.Equal(t, tt.base, base)
			assert.Equal(t, tt.quote, quote)
		})
	}
	assert.Equal(t, "BTC-USDT", JoinPair("BTC/USDT", "-"))
	assert.Equal(t, "XYZ", JoinPair("xyz", "-"))
}

func TestDecodeObject(t *testing.T) {
	obj, err := DecodeObject([]byte(`{"orderId": 12345678901234567, "nested": {"a": "b"}}`))
	require.NoError(t, err)
	assert.Equal(t, "12345678901234567", String(obj["orderId"]))
	assert.Equal(t, "b", Object(obj, "nested")["a"])

	_, err = DecodeObject([]byte(`null`))
	assert.Error(t, err)
	_, err = DecodeObject([]byte(`<html>`))
	assert.Error(t, err)
}

func TestMillis(t *testing.T) {
	fallback := time.Unix(100, 0)
	assert.Equal(t, time.UnixMilli(1700000000000), Millis(json.Number("1700000000000"), fallback))
	assert.Equal(t, fallback, Millis(nil, fallback))
	assert.Equal(t, fallback, Millis("0", fallback))
}

func TestEndpointsResolve(t *testing.T) {
	e := Endpoints{Live: "https://live", Sandbox: "https://sandbox"}
	assert.Equal(t, "https://sandbox", e.Resolve(true))
	assert.Equal(t, "https://live", e.Resolve(false))

	noSandbox := Endpoints{Live: "https://live"}
	assert.Equal(t, "https://live", noSandbox.Resolve(true))
}

func TestUsageMeter(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewUsageMeter(1200, time.Minute)
	m.now = func() time.Time { return now }

	assert.Equal(t, Usage{Limit: 1200}, m.Snapshot())
	assert.InDelta(t, 50.0, m.Observe("600"), 0.001)
	assert.InDelta(t, 1.0, m.Observe("12/1200"), 0.001)
	assert.Equal(t, 0.0, m.Observe("garbage"))

	u := m.Snapshot()
	assert.Equal(t, 12, u.Used)
	assert.Equal(t, 600, u.Peak)
	assert.Equal(t, 1200, u.Limit)

	now = now.Add(2 * time.Minute)
	u = m.Snapshot()
	assert.Zero(t, u.Used)
	assert.Zero(t, u.Peak)

	m.Observe("30")
	assert.Equal(t, 30, m.Snapshot().Peak)
}
