package ledger

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"alert-executor/internal/alert"
	"alert-executor/pkg/db"
	"alert-executor/pkg/exchanges/common"
)

// toRecord flattens an alert into the row shared by the SQL backends.
func toRecord(a alert.Alert) db.AlertRecord {
	r := db.AlertRecord{
		ID:            a.ID,
		Symbol:        a.Symbol,
		Side:          string(a.Side),
		Quantity:      a.Quantity.String(),
		Price:         a.Price.String(),
		StopLoss:      a.StopLoss.String(),
		TakeProfit:    a.TakeProfit.String(),
		Exchange:      a.Exchange,
		Strategy:      a.Strategy,
		Timestamp:     a.Timestamp.UnixMilli(),
		Status:        string(a.Status),
		ExecutedPrice: "0",
		OrderID:       a.OrderID,
		Error:         a.Error,
		Source:        string(a.Source),
		SideDefaulted: a.SideDefaulted,
	}
	if a.ExecutedPrice.Valid {
		r.ExecutedPrice = a.ExecutedPrice.Decimal.String()
	}
	if a.ExecutedAt != nil {
		r.ExecutedAt = a.ExecutedAt.UnixMilli()
	}
	if a.Raw != nil {
		if raw, err := json.Marshal(a.Raw); err == nil {
			r.Raw = string(raw)
		}
	}
	return r
}

func fromRecord(r db.AlertRecord) alert.Alert {
	a := alert.Alert{
		ID:            r.ID,
		Symbol:        r.Symbol,
		Side:          common.Side(r.Side),
		Quantity:      parse(r.Quantity),
		Price:         parse(r.Price),
		StopLoss:      parse(r.StopLoss),
		TakeProfit:    parse(r.TakeProfit),
		Exchange:      r.Exchange,
		Strategy:      r.Strategy,
		Timestamp:     time.UnixMilli(r.Timestamp),
		Status:        alert.Status(r.Status),
		OrderID:       r.OrderID,
		Error:         r.Error,
		Source:        alert.Source(r.Source),
		SideDefaulted: r.SideDefaulted,
	}
	if r.ExecutedAt > 0 {
		at := time.UnixMilli(r.ExecutedAt)
		a.ExecutedAt = &at
	}
	// Executed prices are only recorded when positive; 0 is the column default.
	if p := parse(r.ExecutedPrice); p.IsPositive() {
		a.ExecutedPrice = decimal.NewNullDecimal(p)
	}
	if r.Raw != "" {
		_ = json.Unmarshal([]byte(r.Raw), &a.Raw)
	}
	return a
}

func completion(u Update) db.AlertCompletion {
	c := db.AlertCompletion{
		Status:        string(u.Status),
		ExecutedPrice: "0",
		OrderID:       u.OrderID,
		Error:         u.Error,
	}
	if u.ExecutedPrice.Valid {
		c.ExecutedPrice = u.ExecutedPrice.Decimal.String()
	}
	if u.ExecutedAt != nil {
		c.ExecutedAt = u.ExecutedAt.UnixMilli()
	}
	return c
}

func parse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
