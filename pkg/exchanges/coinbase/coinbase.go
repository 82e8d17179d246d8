// Package coinbase describes the Coinbase Pro (Exchange) order API.
package coinbase

import (
	"fmt"
	"strings"
	"time"

	"alert-executor/pkg/exchanges/common"
)

const (
	liveURL    = "https://api.pro.coinbase.com"
	sandboxURL = "https://api-public.sandbox.pro.coinbase.com"
	orderPath  = "/orders"
)

// New returns the Coinbase Pro row of the capability table.
func New() common.Adapter {
	return common.Adapter{
		Name:     "coinbase-pro",
		Aliases:  []string{"coinbase", "coinbasepro", "coinbase_pro", "coinbase pro"},
		Verified: true,
		Endpoints: common.Endpoints{
			Live:            liveURL,
			Sandbox:         sandboxURL,
			SandboxVerified: true,
		},
		Headers: common.HeaderNames{
			APIKey:     "CB-ACCESS-KEY",
			APISecret:  "CB-ACCESS-SECRET",
			Passphrase: "CB-ACCESS-PASSPHRASE",
		},
		Builder:    Builder{},
		Normalizer: Normalizer{},
	}
}

// Builder produces POST /orders bodies.
type Builder struct {
	NewID func() string
}

func (b Builder) Build(order common.SizedOrder, intent common.OrderIntent) (common.OrderRequest, error) {
	product := FormatSymbol(intent.Symbol)
	if product == "" {
		return common.OrderRequest{}, common.Invalid("coinbase-pro: empty symbol")
	}
	id := common.NewClientOrderID()
	if b.NewID != nil {
		id = b.NewID()
	}
	body := common.BaseBody(order, intent, product)
	body["product_id"] = product
	body["size"] = order.Quantity.String()
	body["time_in_force"] = string(common.TIFGTC)
	body["post_only"] = false
	body["client_oid"] = id
	return common.OrderRequest{
		Exchange:      "coinbase-pro",
		Path:          orderPath,
		ClientOrderID: id,
		Body:          body,
	}, nil
}

// FormatSymbol maps to product ids: BTC/USD -> BTC-USD.
func FormatSymbol(symbol string) string {
	return common.JoinPair(symbol, "-")
}

// Normalizer reads order objects returned by POST /orders.
type Normalizer struct{}

func (Normalizer) Normalize(raw common.RawResponse) common.OrderResponse {
	out := common.OrderResponse{
		Exchange:  "coinbase-pro",
		Status:    common.StatusUnknown,
		Timestamp: raw.ReceivedAt,
	}
	obj, err := common.DecodeObject(raw.Body)
	if err != nil {
		out.Error = (&common.NormalizationError{Exchange: "coinbase-pro", Err: err}).Error()
		return out
	}
	if obj["id"] == nil {
		if msg := common.String(obj["message"]); msg != "" {
			out.Status = common.StatusRejected
			out.Error = "coinbase-pro: " + msg
			return out
		}
		out.Error = (&common.NormalizationError{Exchange: "coinbase-pro", Err: fmt.Errorf("missing id")}).Error()
		return out
	}

	out.OrderID = common.String(obj["id"])
	out.Symbol = common.String(obj["product_id"])
	out.Side = common.Side(strings.ToUpper(common.String(obj["side"])))
	out.Quantity = common.Decimal(obj["size"])
	out.Price = common.Decimal(obj["price"])
	out.ExecutedQuantity = common.Decimal(obj["filled_size"])
	if value := common.Decimal(obj["executed_value"]); value.IsPositive() && out.ExecutedQuantity.IsPositive() {
		out.ExecutedPrice = value.Div(out.ExecutedQuantity)
	}
	if ts, err := time.Parse(time.RFC3339Nano, common.String(obj["created_at"])); err == nil {
		out.Timestamp = ts
	}
	out.Status = mapStatus(common.String(obj["status"]), common.String(obj["done_reason"]))
	if out.Status == common.StatusRejected {
		out.Error = "coinbase-pro: " + common.String(obj["reject_reason"])
	}
	return out
}

func mapStatus(status, doneReason string) common.OrderStatus {
	switch strings.ToLower(status) {
	case "pending", "open", "active", "received":
		return common.StatusPartial
	case "done", "settled":
		switch strings.ToLower(doneReason) {
		case "filled", "":
			return common.StatusFilled
		case "canceled", "cancelled":
			return common.StatusCancelled
		case "rejected":
			return common.StatusRejected
		}
		return common.StatusUnknown
	case "rejected":
		return common.StatusRejected
	default:
		return common.StatusUnknown
	}
}
