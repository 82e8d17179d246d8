// Package mexc describes MEXC spot v3, a Binance-compatible order API.
package mexc

import (
	"fmt"
	"strings"

	"alert-executor/pkg/exchanges/common"
)

const (
	liveURL   = "https://api.mexc.com"
	orderPath = "/api/v3/order"
)

// New returns the MEXC row of the capability table. MEXC offers no spot
// sandbox, so test mode resolves to the live host.
func New() common.Adapter {
	return common.Adapter{
		Name:     "mexc",
		Verified: false,
		Endpoints: common.Endpoints{
			Live: liveURL,
		},
		Headers:     common.HeaderNames{APIKey: "X-MEXC-APIKEY", APISecret: "X-MEXC-APISECRET"},
		UsageHeader: "X-MBX-USED-WEIGHT-1M",
		UsageLimit:  500,
		Builder:     Builder{},
		Normalizer:  Normalizer{},
	}
}

type Builder struct {
	NewID func() string
}

func (b Builder) Build(order common.SizedOrder, intent common.OrderIntent) (common.OrderRequest, error) {
	symbol := common.JoinPair(intent.Symbol, "")
	if symbol == "" {
		return common.OrderRequest{}, common.Invalid("mexc: empty symbol")
	}
	id := common.NewClientOrderID()
	if b.NewID != nil {
		id = b.NewID()
	}
	body := common.BaseBody(order, intent, symbol)
	body["newClientOrderId"] = id
	return common.OrderRequest{
		Exchange:      "mexc",
		Path:          orderPath,
		ClientOrderID: id,
		Body:          body,
	}, nil
}

type Normalizer struct{}

func (Normalizer) Normalize(raw common.RawResponse) common.OrderResponse {
	out := common.OrderResponse{
		Exchange:  "mexc",
		Status:    common.StatusUnknown,
		Timestamp: raw.ReceivedAt,
	}
	obj, err := common.DecodeObject(raw.Body)
	if err != nil {
		out.Error = (&common.NormalizationError{Exchange: "mexc", Err: err}).Error()
		return out
	}
	if obj["orderId"] == nil {
		if obj["code"] != nil {
			out.Status = common.StatusRejected
			out.Error = fmt.Sprintf("mexc error code %s: %s", common.String(obj["code"]), common.String(obj["msg"]))
			return out
		}
		out.Error = (&common.NormalizationError{Exchange: "mexc", Err: fmt.Errorf("missing orderId")}).Error()
		return out
	}
	out.OrderID = common.String(obj["orderId"])
	out.Symbol = common.String(obj["symbol"])
	out.Side = common.Side(strings.ToUpper(common.String(obj["side"])))
	out.Quantity = common.Decimal(obj["origQty"])
	out.Price = common.Decimal(obj["price"])
	out.ExecutedQuantity = common.Decimal(obj["executedQty"])
	if quote := common.Decimal(obj["cummulativeQuoteQty"]); quote.IsPositive() && out.ExecutedQuantity.IsPositive() {
		out.ExecutedPrice = quote.Div(out.ExecutedQuantity)
	}
	out.Timestamp = common.Millis(obj["transactTime"], raw.ReceivedAt)

	switch strings.ToUpper(common.String(obj["status"])) {
	case "FILLED":
		out.Status = common.StatusFilled
	case "", "NEW", "PARTIALLY_FILLED":
		// Placement acks omit status.
		out.Status = common.StatusPartial
	case "CANCELED", "PARTIALLY_CANCELED":
		out.Status = common.StatusCancelled
	case "REJECTED":
		out.Status = common.StatusRejected
	}
	return out
}
