// Package bybit describes Bybit v5 unified order creation.
package bybit

import (
	"fmt"
	"strings"

	"alert-executor/pkg/exchanges/common"
)

const (
	liveURL    = "https://api.bybit.com"
	sandboxURL = "https://api-testnet.bybit.com"
	orderPath  = "/v5/order/create"
)

// New returns the Bybit row of the capability table.
func New() common.Adapter {
	return common.Adapter{
		Name:     "bybit",
		Verified: true,
		Endpoints: common.Endpoints{
			Live:            liveURL,
			Sandbox:         sandboxURL,
			SandboxVerified: true,
		},
		Headers: common.HeaderNames{
			APIKey:    "X-BAPI-API-KEY",
			APISecret: "X-BAPI-API-SECRET",
		},
		Builder:    Builder{},
		Normalizer: Normalizer{},
	}
}

type Builder struct {
	NewID func() string
}

func (b Builder) Build(order common.SizedOrder, intent common.OrderIntent) (common.OrderRequest, error) {
	symbol := common.JoinPair(intent.Symbol, "")
	if symbol == "" {
		return common.OrderRequest{}, common.Invalid("bybit: empty symbol")
	}
	id := common.NewClientOrderID()
	if b.NewID != nil {
		id = b.NewID()
	}
	body := common.BaseBody(order, intent, symbol)
	body["category"] = "spot"
	body["side"] = titleSide(intent.Side)
	body["orderType"] = "Limit"
	body["qty"] = order.Quantity.String()
	body["orderLinkId"] = id
	return common.OrderRequest{
		Exchange:      "bybit",
		Path:          orderPath,
		ClientOrderID: id,
		Body:          body,
	}, nil
}

func titleSide(s common.Side) string {
	if s == common.SideSell {
		return "Sell"
	}
	return "Buy"
}

// Normalizer reads {"retCode": 0, "result": {...}} envelopes.
type Normalizer struct{}

func (Normalizer) Normalize(raw common.RawResponse) common.OrderResponse {
	out := common.OrderResponse{
		Exchange:  "bybit",
		Status:    common.StatusUnknown,
		Timestamp: raw.ReceivedAt,
	}
	obj, err := common.DecodeObject(raw.Body)
	if err != nil {
		out.Error = (&common.NormalizationError{Exchange: "bybit", Err: err}).Error()
		return out
	}
	if code := common.String(obj["retCode"]); code != "0" {
		out.Status = common.StatusRejected
		out.Error = fmt.Sprintf("bybit retCode %s: %s", code, common.String(obj["retMsg"]))
		return out
	}
	result := common.Object(obj, "result")
	if result == nil || common.String(result["orderId"]) == "" {
		out.Error = (&common.NormalizationError{Exchange: "bybit", Err: fmt.Errorf("missing result.orderId")}).Error()
		return out
	}
	out.OrderID = common.String(result["orderId"])
	out.Symbol = common.String(result["symbol"])
	out.Side = common.Side(strings.ToUpper(common.String(result["side"])))
	out.Quantity = common.Decimal(result["qty"])
	out.Price = common.Decimal(result["price"])
	out.ExecutedQuantity = common.Decimal(result["cumExecQty"])
	out.ExecutedPrice = common.Decimal(result["avgPrice"])
	out.Timestamp = common.Millis(obj["time"], raw.ReceivedAt)

	if status := common.String(result["orderStatus"]); status != "" {
		out.Status = mapStatus(status)
	} else {
		out.Status = common.StatusPartial
	}
	return out
}

func mapStatus(s string) common.OrderStatus {
	switch s {
	case "Filled":
		return common.StatusFilled
	case "New", "PartiallyFilled", "Untriggered", "Created":
		return common.StatusPartial
	case "Cancelled", "PartiallyFilledCanceled", "Deactivated":
		return common.StatusCancelled
	case "Rejected":
		return common.StatusRejected
	default:
		return common.StatusUnknown
	}
}
