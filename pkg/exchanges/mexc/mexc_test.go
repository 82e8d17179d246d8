package mexc

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-executor/pkg/exchanges/common"
)

func TestNoSandbox(t *testing.T) {
	a := New()
	assert.False(t, a.Endpoints.SandboxVerified)
	assert.Equal(t, "https://api.mexc.com", a.Endpoints.Resolve(true))
}

func TestBuild(t *testing.T) {
	req, err := Builder{NewID: func() string { return "m1" }}.Build(common.SizedOrder{
		Quantity: decimal.RequireFromString("10"),
		Price:    decimal.RequireFromString("1.5"),
	}, common.OrderIntent{Symbol: "MX-USDT", Side: common.SideBuy})
	require.NoError(t, err)
	assert.Equal(t, "MXUSDT", req.Body["symbol"])
	assert.Equal(t, "m1", req.Body["newClientOrderId"])
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus common.OrderStatus
		wantErr    bool
	}{
		{name: "ack", body: `{"symbol":"MXUSDT","orderId":"06a480e69e604477bfb48dddd5f0b750","price":"1.5","origQty":"10","side":"BUY","transactTime":1666676533741}`, wantStatus: common.StatusPartial},
		{name: "filled", body: `{"orderId":"a","status":"FILLED","executedQty":"10","cummulativeQuoteQty":"15"}`, wantStatus: common.StatusFilled},
		{name: "canceled", body: `{"orderId":"a","status":"CANCELED"}`, wantStatus: common.StatusCancelled},
		{name: "error", body: `{"code":30004,"msg":"Insufficient position"}`, wantStatus: common.StatusRejected, wantErr: true},
		{name: "unmapped", body: `{"orderId":"a","status":"ODD"}`, wantStatus: common.StatusUnknown},
		{name: "empty", body: `{}`, wantStatus: common.StatusUnknown, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalizer{}.Normalize(common.RawResponse{Body: []byte(tt.body)})
			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Equal(t, tt.wantErr, out.Error != "")
		})
	}
}
