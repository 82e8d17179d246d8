// Package binance describes Binance spot: order body, status table and endpoints.
package binance

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"alert-executor/pkg/exchanges/common"
)

const (
	liveURL    = "https://api.binance.com"
	sandboxURL = "https://testnet.binance.vision"
	orderPath  = "/api/v3/order"
)

// New returns the Binance row of the capability table.
func New() common.Adapter {
	headers := common.HeaderNames{APIKey: "X-MBX-APIKEY", APISecret: "X-MBX-APISECRET"}
	return common.Adapter{
		Name:     "binance",
		Verified: true,
		Endpoints: common.Endpoints{
			Live:            liveURL,
			Sandbox:         sandboxURL,
			SandboxVerified: true,
		},
		Headers:     headers,
		UsageHeader: "X-MBX-USED-WEIGHT-1M",
		UsageLimit:  6000,
		Builder:     Builder{},
		Normalizer:  Normalizer{},
	}
}

// Builder produces /api/v3/order bodies.
type Builder struct {
	NewID func() string
}

func (b Builder) Build(order common.SizedOrder, intent common.OrderIntent) (common.OrderRequest, error) {
	symbol := FormatSymbol(intent.Symbol)
	if symbol == "" {
		return common.OrderRequest{}, common.Invalid("binance: empty symbol")
	}
	id := common.NewClientOrderID()
	if b.NewID != nil {
		id = b.NewID()
	}
	body := common.BaseBody(order, intent, symbol)
	body["newClientOrderId"] = id
	return common.OrderRequest{
		Exchange:      "binance",
		Path:          orderPath,
		ClientOrderID: id,
		Body:          body,
	}, nil
}

// FormatSymbol strips separators: BTC/USDT -> BTCUSDT.
func FormatSymbol(symbol string) string {
	return common.JoinPair(symbol, "")
}

// Normalizer reads Binance order acks (RESULT/FULL response types) and error bodies.
type Normalizer struct{}

func (Normalizer) Normalize(raw common.RawResponse) common.OrderResponse {
	out := common.OrderResponse{
		Exchange:  "binance",
		Status:    common.StatusUnknown,
		Timestamp: raw.ReceivedAt,
	}
	obj, err := common.DecodeObject(raw.Body)
	if err != nil {
		out.Error = (&common.NormalizationError{Exchange: "binance", Err: err}).Error()
		return out
	}
	if code, ok := obj["code"]; ok && obj["orderId"] == nil {
		out.Status = common.StatusRejected
		out.Error = fmt.Sprintf("binance error %s: %s", common.String(code), common.String(obj["msg"]))
		return out
	}
	if obj["orderId"] == nil {
		out.Error = (&common.NormalizationError{Exchange: "binance", Err: fmt.Errorf("missing orderId")}).Error()
		return out
	}

	out.OrderID = common.String(obj["orderId"])
	out.Symbol = common.String(obj["symbol"])
	out.Side = common.Side(strings.ToUpper(common.String(obj["side"])))
	out.Quantity = common.Decimal(obj["origQty"])
	out.Price = common.Decimal(obj["price"])
	out.ExecutedQuantity = common.Decimal(obj["executedQty"])
	out.Timestamp = common.Millis(obj["transactTime"], raw.ReceivedAt)
	out.Status = mapStatus(common.String(obj["status"]))

	// Average fill price: quote spent over base filled.
	quote := common.Decimal(obj["cummulativeQuoteQty"])
	if out.ExecutedQuantity.IsPositive() && quote.IsPositive() {
		out.ExecutedPrice = quote.Div(out.ExecutedQuantity)
	} else if out.ExecutedQuantity.IsPositive() {
		out.ExecutedPrice = out.Price
	} else {
		out.ExecutedPrice = decimal.Zero
	}
	return out
}

func mapStatus(s string) common.OrderStatus {
	switch strings.ToUpper(s) {
	case "FILLED":
		return common.StatusFilled
	case "PARTIALLY_FILLED", "NEW", "PENDING_NEW":
		return common.StatusPartial
	case "CANCELED", "PENDING_CANCEL", "EXPIRED", "EXPIRED_IN_MATCH":
		return common.StatusCancelled
	case "REJECTED":
		return common.StatusRejected
	default:
		return common.StatusUnknown
	}
}
