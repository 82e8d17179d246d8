// Package bingx describes BingX spot order placement.
package bingx

import (
	"fmt"
	"strings"

	"alert-executor/pkg/exchanges/common"
)

const (
	liveURL = "https://open-api.bingx.com"
	// VST is BingX's virtual-funds host; it is not an officially documented spot sandbox.
	sandboxURL = "https://open-api-vst.bingx.com"
	orderPath  = "/openApi/spot/v1/trade/order"
)

// New returns the BingX row of the capability table.
func New() common.Adapter {
	return common.Adapter{
		Name:     "bingx",
		Verified: false,
		Endpoints: common.Endpoints{
			Live:    liveURL,
			Sandbox: sandboxURL,
		},
		Headers:    common.HeaderNames{APIKey: "X-BX-APIKEY", APISecret: "X-BX-APISECRET"},
		Builder:    Builder{},
		Normalizer: Normalizer{},
	}
}

type Builder struct {
	NewID func() string
}

func (b Builder) Build(order common.SizedOrder, intent common.OrderIntent) (common.OrderRequest, error) {
	symbol := common.JoinPair(intent.Symbol, "-")
	if symbol == "" {
		return common.OrderRequest{}, common.Invalid("bingx: empty symbol")
	}
	id := common.NewClientOrderID()
	if b.NewID != nil {
		id = b.NewID()
	}
	body := common.BaseBody(order, intent, symbol)
	body["clientOrderID"] = id
	return common.OrderRequest{
		Exchange:      "bingx",
		Path:          orderPath,
		ClientOrderID: id,
		Body:          body,
	}, nil
}

// Normalizer reads {"code": 0, "data": {...}} envelopes.
type Normalizer struct{}

func (Normalizer) Normalize(raw common.RawResponse) common.OrderResponse {
	out := common.OrderResponse{
		Exchange:  "bingx",
		Status:    common.StatusUnknown,
		Timestamp: raw.ReceivedAt,
	}
	obj, err := common.DecodeObject(raw.Body)
	if err != nil {
		out.Error = (&common.NormalizationError{Exchange: "bingx", Err: err}).Error()
		return out
	}
	if code := common.String(obj["code"]); code != "0" {
		out.Status = common.StatusRejected
		out.Error = fmt.Sprintf("bingx error code %s: %s", code, common.String(obj["msg"]))
		return out
	}
	data := common.Object(obj, "data")
	if data == nil || data["orderId"] == nil {
		out.Error = (&common.NormalizationError{Exchange: "bingx", Err: fmt.Errorf("missing data.orderId")}).Error()
		return out
	}
	out.OrderID = common.String(data["orderId"])
	out.Symbol = common.String(data["symbol"])
	out.Side = common.Side(strings.ToUpper(common.String(data["side"])))
	out.Quantity = common.Decimal(data["origQty"])
	out.Price = common.Decimal(data["price"])
	out.ExecutedQuantity = common.Decimal(data["executedQty"])
	if quote := common.Decimal(data["cummulativeQuoteQty"]); quote.IsPositive() && out.ExecutedQuantity.IsPositive() {
		out.ExecutedPrice = quote.Div(out.ExecutedQuantity)
	}
	out.Timestamp = common.Millis(data["transactTime"], raw.ReceivedAt)

	switch strings.ToUpper(common.String(data["status"])) {
	case "FILLED":
		out.Status = common.StatusFilled
	case "", "NEW", "PENDING", "PARTIALLY_FILLED":
		out.Status = common.StatusPartial
	case "CANCELED", "CANCELLED":
		out.Status = common.StatusCancelled
	case "FAILED", "REJECTED":
		out.Status = common.StatusRejected
	}
	return out
}
