// Package alert turns inbound push payloads into canonical trading alerts.
package alert

import (
	"time"

	"github.com/shopspring/decimal"

	"alert-executor/pkg/exchanges/common"
)

// Status is the persisted lifecycle state of an alert.
type Status string

const (
	StatusPending  Status = "pending"
	StatusExecuted Status = "executed"
	StatusIgnored  Status = "ignored"
	StatusFailed   Status = "failed"
)

// Terminal reports whether s is one of the end states.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusIgnored || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s.Terminal()
}

// Source records which entry point received the alert.
type Source string

const (
	SourceForeground Source = "foreground"
	SourceBackground Source = "background"
	SourceManual     Source = "manual"
)

// Alert is the canonical trading signal.
type Alert struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       common.Side     `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	StopLoss   decimal.Decimal `json:"stopLoss"`
	TakeProfit decimal.Decimal `json:"takeProfit"`
	Exchange   string          `json:"exchange"`
	Strategy   string          `json:"strategy"`
	Timestamp  time.Time       `json:"timestamp"`
	Status     Status          `json:"status"`

	ExecutedPrice decimal.NullDecimal `json:"executedPrice"`
	ExecutedAt    *time.Time          `json:"executedAt,omitempty"`
	OrderID       string              `json:"orderId,omitempty"`
	Error         string              `json:"error,omitempty"`

	Source        Source `json:"source,omitempty"`
	SideDefaulted bool   `json:"sideDefaulted"`
	// Raw is the inbound payload, kept for audit.
	Raw map[string]any `json:"raw,omitempty"`
}

// Intent returns the exchange-agnostic view consumed by order builders.
func (a Alert) Intent() common.OrderIntent {
	return common.OrderIntent{
		AlertID:  a.ID,
		Symbol:   a.Symbol,
		Side:     a.Side,
		Exchange: a.Exchange,
	}
}
