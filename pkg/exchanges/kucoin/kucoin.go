// Package kucoin describes KuCoin spot order placement.
package kucoin

import (
	"fmt"

	"alert-executor/pkg/exchanges/common"
)

const (
	liveURL     = "https://api.kucoin.com"
	sandboxURL  = "https://openapi-sandbox.kucoin.com"
	orderPath   = "/api/v1/orders"
	successCode = "200000"
)

// New returns the KuCoin row of the capability table.
func New() common.Adapter {
	return common.Adapter{
		Name:     "kucoin",
		Verified: true,
		Endpoints: common.Endpoints{
			Live:            liveURL,
			Sandbox:         sandboxURL,
			SandboxVerified: true,
		},
		Headers: common.HeaderNames{
			APIKey:     "KC-API-KEY",
			APISecret:  "KC-API-SECRET",
			Passphrase: "KC-API-PASSPHRASE",
		},
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
		return common.OrderRequest{}, common.Invalid("kucoin: empty symbol")
	}
	id := common.NewClientOrderID()
	if b.NewID != nil {
		id = b.NewID()
	}
	body := common.BaseBody(order, intent, symbol)
	body["size"] = order.Quantity.String()
	body["clientOid"] = id
	return common.OrderRequest{
		Exchange:      "kucoin",
		Path:          orderPath,
		ClientOrderID: id,
		Body:          body,
	}, nil
}

// Normalizer reads {"code": "...", "data": {...}} envelopes. A successful
// placement only acknowledges the order id, so the order is treated as resting.
type Normalizer struct{}

func (Normalizer) Normalize(raw common.RawResponse) common.OrderResponse {
	out := common.OrderResponse{
		Exchange:  "kucoin",
		Status:    common.StatusUnknown,
		Timestamp: raw.ReceivedAt,
	}
	obj, err := common.DecodeObject(raw.Body)
	if err != nil {
		out.Error = (&common.NormalizationError{Exchange: "kucoin", Err: err}).Error()
		return out
	}
	if code := common.String(obj["code"]); code != successCode {
		out.Status = common.StatusRejected
		out.Error = fmt.Sprintf("kucoin error code %s: %s", code, common.String(obj["msg"]))
		return out
	}
	data := common.Object(obj, "data")
	if data == nil || common.String(data["orderId"]) == "" {
		out.Error = (&common.NormalizationError{Exchange: "kucoin", Err: fmt.Errorf("missing data.orderId")}).Error()
		return out
	}
	out.OrderID = common.String(data["orderId"])
	out.Status = common.StatusPartial
	return out
}
