package binance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-executor/pkg/exchanges/common"
)

func TestBuild(t *testing.T) {
	b := Builder{NewID: func() string { return "cid-1" }}
	req, err := b.Build(common.SizedOrder{
		Quantity: decimal.RequireFromString("0.5"),
		Price:    decimal.RequireFromString("42000"),
	}, common.OrderIntent{Symbol: "btc/usdt", Side: common.SideSell})
	require.NoError(t, err)

	assert.Equal(t, "/api/v3/order", req.Path)
	assert.Equal(t, "cid-1", req.ClientOrderID)
	assert.Equal(t, "BTCUSDT", req.Body["symbol"])
	assert.Equal(t, "sell", req.Body["side"])
	assert.Equal(t, "0.5", req.Body["quantity"])
	assert.Equal(t, "42000", req.Body["price"])
	assert.Equal(t, "limit", req.Body["type"])
	assert.Equal(t, "GTC", req.Body["timeInForce"])
	assert.Equal(t, "cid-1", req.Body["newClientOrderId"])
}

func TestBuildUniqueClientIDs(t *testing.T) {
	b := Builder{}
	intent := common.OrderIntent{Symbol: "BTCUSDT", Side: common.SideBuy}
	r1, err := b.Build(common.SizedOrder{}, intent)
	require.NoError(t, err)
	r2, err := b.Build(common.SizedOrder{}, intent)
	require.NoError(t, err)
	assert.NotEqual(t, r1.ClientOrderID, r2.ClientOrderID)
}

func TestNormalize(t *testing.T) {
	at := time.Unix(1700000000, 0)
	tests := []struct {
		name       string
		body       string
		wantStatus common.OrderStatus
		wantID     string
		wantPrice  string
		wantErr    bool
	}{
		{
			name:       "filled full response",
			body:       `{"symbol":"BTCUSDT","orderId":28,"side":"BUY","origQty":"2","price":"100","executedQty":"2","cummulativeQuoteQty":"199","status":"FILLED","transactTime":1700000000123}`,
			wantStatus: common.StatusFilled,
			wantID:     "28",
			wantPrice:  "99.5",
		},
		{
			name:       "new is resting",
			body:       `{"symbol":"BTCUSDT","orderId":29,"status":"NEW","executedQty":"0"}`,
			wantStatus: common.StatusPartial,
			wantID:     "29",
			wantPrice:  "0",
		},
		{name: "canceled", body: `{"orderId":1,"status":"CANCELED"}`, wantStatus: common.StatusCancelled, wantID: "1", wantPrice: "0"},
		{name: "expired", body: `{"orderId":1,"status":"EXPIRED"}`, wantStatus: common.StatusCancelled, wantID: "1", wantPrice: "0"},
		{name: "rejected", body: `{"orderId":1,"status":"REJECTED"}`, wantStatus: common.StatusRejected, wantID: "1", wantPrice: "0"},
		{name: "unmapped status", body: `{"orderId":1,"status":"WEIRD"}`, wantStatus: common.StatusUnknown, wantID: "1", wantPrice: "0"},
		{name: "error body", body: `{"code":-2010,"msg":"Account has insufficient balance"}`, wantStatus: common.StatusRejected, wantErr: true, wantPrice: "0"},
		{name: "not json", body: `<html>oops</html>`, wantStatus: common.StatusUnknown, wantErr: true, wantPrice: "0"},
		{name: "no order id", body: `{"status":"FILLED"}`, wantStatus: common.StatusUnknown, wantErr: true, wantPrice: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalizer{}.Normalize(common.RawResponse{Body: []byte(tt.body), ReceivedAt: at})
			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Equal(t, tt.wantID, out.OrderID)
			assert.Equal(t, "binance", out.Exchange)
			assert.Equal(t, tt.wantPrice, out.ExecutedPrice.String())
			if tt.wantErr {
				assert.NotEmpty(t, out.Error)
			} else {
				assert.Empty(t, out.Error)
			}
		})
	}
}
