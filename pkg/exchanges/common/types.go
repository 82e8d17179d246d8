package common

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Lower returns the lowercase wire form used by the base request.
func (s Side) Lower() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// OrderType denotes basic order types. Only LIMIT is submitted by the pipeline.
type OrderType string

const (
	OrderTypeLimit OrderType = "limit"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // Good Till Cancelled
)

// OrderStatus is the canonical outcome of a submission.
type OrderStatus string

const (
	StatusFilled    OrderStatus = "filled"
	StatusPartial   OrderStatus = "partial"
	StatusCancelled OrderStatus = "cancelled"
	StatusRejected  OrderStatus = "rejected"
	StatusUnknown   OrderStatus = "unknown"
)

// Failed reports whether the exchange refused or dropped the order.
func (s OrderStatus) Failed() bool {
	return s == StatusRejected || s == StatusCancelled
}

// Credentials is the resolved API key set for one exchange.
type Credentials struct {
	Exchange   string
	APIKey     string
	APISecret  string
	Passphrase string
}

// SizedOrder is the risk-bounded order for one execution attempt. It is never persisted.
type SizedOrder struct {
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	OrderValue  decimal.Decimal
	Credentials Credentials
}

// OrderIntent is the exchange-agnostic view of the alert the builders consume.
type OrderIntent struct {
	AlertID  string
	Symbol   string
	Side     Side
	Exchange string
}

// OrderRequest is an exchange-specific submission: the JSON body plus routing data.
type OrderRequest struct {
	Exchange      string
	Path          string
	ClientOrderID string
	Body          map[string]any
}

// RawResponse is what the exchange answered, before normalization.
type RawResponse struct {
	Exchange   string
	StatusCode int
	Body       []byte
	ReceivedAt time.Time
}

// OrderResponse is the canonical outcome handed back to the orchestrator.
type OrderResponse struct {
	OrderID          string          `json:"orderId"`
	Symbol           string          `json:"symbol"`
	Side             Side            `json:"side"`
	Quantity         decimal.Decimal `json:"quantity"`
	Price            decimal.Decimal `json:"price"`
	Status           OrderStatus     `json:"status"`
	ExecutedQuantity decimal.Decimal `json:"executedQuantity"`
	ExecutedPrice    decimal.Decimal `json:"executedPrice"`
	Timestamp        time.Time       `json:"timestamp"`
	Exchange         string          `json:"exchange"`
	Error            string          `json:"error,omitempty"`
}

// Endpoints is the live/sandbox base URL pair for one exchange.
type Endpoints struct {
	Live            string `json:"live" yaml:"live"`
	Sandbox         string `json:"sandbox" yaml:"sandbox"`
	SandboxVerified bool   `json:"sandbox_verified" yaml:"sandbox_verified"`
}

// Resolve picks the base URL for the requested mode. An exchange without a
// sandbox falls back to its live URL; the caller decides how loudly to warn.
func (e Endpoints) Resolve(testMode bool) string {
	if testMode && e.Sandbox != "" {
		return e.Sandbox
	}
	return e.Live
}

// HeaderNames names the custom headers carrying credentials.
type HeaderNames struct {
	APIKey     string
	APISecret  string
	Passphrase string
}
