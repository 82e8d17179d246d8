// Package coinex describes CoinEx v2 spot orders.
package coinex

import (
	"fmt"
	"strings"

	"alert-executor/pkg/exchanges/common"
)

const (
	liveURL   = "https://api.coinex.com"
	orderPath = "/v2/spot/order"
)

// New returns the CoinEx row of the capability table. There is no sandbox.
func New() common.Adapter {
	return common.Adapter{
		Name:     "coinex",
		Verified: false,
		Endpoints: common.Endpoints{
			Live: liveURL,
		},
		Headers:    common.HeaderNames{APIKey: "X-COINEX-KEY", APISecret: "X-COINEX-SECRET"},
		Builder:    Builder{},
		Normalizer: Normalizer{},
	}
}

type Builder struct {
	NewID func() string
}

func (b Builder) Build(order common.SizedOrder, intent common.OrderIntent) (common.OrderRequest, error) {
	market := common.JoinPair(intent.Symbol, "")
	if market == "" {
		return common.OrderRequest{}, common.Invalid("coinex: empty symbol")
	}
	id := common.NewClientOrderID()
	if b.NewID != nil {
		id = b.NewID()
	}
	body := common.BaseBody(order, intent, market)
	body["market"] = market
	body["market_type"] = "SPOT"
	body["amount"] = order.Quantity.String()
	body["client_id"] = id
	return common.OrderRequest{
		Exchange:      "coinex",
		Path:          orderPath,
		ClientOrderID: id,
		Body:          body,
	}, nil
}

// Normalizer reads {"code": 0, "data": {...}, "message": "OK"} envelopes.
type Normalizer struct{}

func (Normalizer) Normalize(raw common.RawResponse) common.OrderResponse {
	out := common.OrderResponse{
		Exchange:  "coinex",
		Status:    common.StatusUnknown,
		Timestamp: raw.ReceivedAt,
	}
	obj, err := common.DecodeObject(raw.Body)
	if err != nil {
		out.Error = (&common.NormalizationError{Exchange: "coinex", Err: err}).Error()
		return out
	}
	if code := common.String(obj["code"]); code != "0" {
		out.Status = common.StatusRejected
		out.Error = fmt.Sprintf("coinex error code %s: %s", code, common.String(obj["message"]))
		return out
	}
	data := common.Object(obj, "data")
	if data == nil || data["order_id"] == nil {
		out.Error = (&common.NormalizationError{Exchange: "coinex", Err: fmt.Errorf("missing data.order_id")}).Error()
		return out
	}
	out.OrderID = common.String(data["order_id"])
	out.Symbol = common.String(data["market"])
	out.Side = common.Side(strings.ToUpper(common.String(data["side"])))
	out.Quantity = common.Decimal(data["amount"])
	out.Price = common.Decimal(data["price"])
	out.ExecutedQuantity = common.Decimal(data["filled_amount"])
	if value := common.Decimal(data["filled_value"]); value.IsPositive() && out.ExecutedQuantity.IsPositive() {
		out.ExecutedPrice = value.Div(out.ExecutedQuantity)
	}
	out.Timestamp = common.Millis(data["created_at"], raw.ReceivedAt)

	switch strings.ToLower(common.String(data["status"])) {
	case "filled":
		out.Status = common.StatusFilled
	case "", "open", "part_filled":
		out.Status = common.StatusPartial
	case "canceled", "part_canceled":
		out.Status = common.StatusCancelled
	}
	return out
}
