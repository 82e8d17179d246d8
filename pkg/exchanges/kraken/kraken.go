// Package kraken describes Kraken spot AddOrder.
package kraken

import (
	"fmt"
	"strings"

	"alert-executor/pkg/exchanges/common"
)

const (
	liveURL = "https://api.kraken.com"
	// Kraken has no public spot sandbox; the futures demo host is the closest thing.
	sandboxURL = "https://demo-futures.kraken.com"
	orderPath  = "/0/private/AddOrder"
)

// New returns the Kraken row of the capability table.
func New() common.Adapter {
	return common.Adapter{
		Name:     "kraken",
		Verified: true,
		Endpoints: common.Endpoints{
			Live:            liveURL,
			Sandbox:         sandboxURL,
			SandboxVerified: false,
		},
		Headers:    common.HeaderNames{APIKey: "API-Key", APISecret: "API-Secret"},
		Builder:    Builder{},
		Normalizer: Normalizer{},
	}
}

// Builder produces AddOrder bodies.
type Builder struct {
	NewID func() string
}

func (b Builder) Build(order common.SizedOrder, intent common.OrderIntent) (common.OrderRequest, error) {
	pair := FormatSymbol(intent.Symbol)
	if pair == "" {
		return common.OrderRequest{}, common.Invalid("kraken: empty symbol")
	}
	id := common.NewClientOrderID()
	if b.NewID != nil {
		id = b.NewID()
	}
	body := common.BaseBody(order, intent, pair)
	body["pair"] = pair
	body["ordertype"] = string(common.OrderTypeLimit)
	body["volume"] = order.Quantity.String()
	body["cl_ord_id"] = id
	return common.OrderRequest{
		Exchange:      "kraken",
		Path:          orderPath,
		ClientOrderID: id,
		Body:          body,
	}, nil
}

// FormatSymbol maps to Kraken pair names, which spell bitcoin XBT.
func FormatSymbol(symbol string) string {
	base, quote := common.SplitPair(symbol)
	if base == "BTC" {
		base = "XBT"
	}
	if quote == "BTC" {
		quote = "XBT"
	}
	return base + quote
}

// Normalizer reads {"error": [...], "result": {...}} envelopes.
type Normalizer struct{}

func (Normalizer) Normalize(raw common.RawResponse) common.OrderResponse {
	out := common.OrderResponse{
		Exchange:  "kraken",
		Status:    common.StatusUnknown,
		Timestamp: raw.ReceivedAt,
	}
	obj, err := common.DecodeObject(raw.Body)
	if err != nil {
		out.Error = (&common.NormalizationError{Exchange: "kraken", Err: err}).Error()
		return out
	}
	if errs, ok := obj["error"].([]any); ok && len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, common.String(e))
		}
		out.Status = common.StatusRejected
		out.Error = "kraken: " + strings.Join(msgs, "; ")
		return out
	}
	result := common.Object(obj, "result")
	if result == nil {
		out.Error = (&common.NormalizationError{Exchange: "kraken", Err: fmt.Errorf("missing result")}).Error()
		return out
	}
	if txids, ok := result["txid"].([]any); ok && len(txids) > 0 {
		out.OrderID = common.String(txids[0])
	}
	if descr := common.Object(result, "descr"); descr != nil {
		out.Symbol = common.String(descr["pair"])
		out.Side = common.Side(strings.ToUpper(common.String(descr["type"])))
	}
	out.Quantity = common.Decimal(result["vol"])
	out.Price = common.Decimal(result["price"])
	out.ExecutedQuantity = common.Decimal(result["vol_exec"])
	out.ExecutedPrice = common.Decimal(result["avg_price"])

	status := common.String(result["status"])
	switch {
	case status != "":
		out.Status = mapStatus(status)
	case out.OrderID != "":
		// AddOrder acks carry only txid: the order rests on the book.
		out.Status = common.StatusPartial
	}
	return out
}

func mapStatus(s string) common.OrderStatus {
	switch strings.ToLower(s) {
	case "closed":
		return common.StatusFilled
	case "open", "pending":
		return common.StatusPartial
	case "canceled", "expired":
		return common.StatusCancelled
	default:
		return common.StatusUnknown
	}
}
