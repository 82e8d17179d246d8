// Package risk bounds every order by the user's sizing rules.
package risk

import (
	"github.com/shopspring/decimal"

	"alert-executor/internal/alert"
	"alert-executor/internal/settings"
	"alert-executor/pkg/exchanges/common"
)

var hundred = decimal.NewFromInt(100)

// Size turns an alert into a risk-bounded order using the settings snapshot.
// It touches neither network nor storage.
func Size(a alert.Alert, snap settings.Snapshot) (common.SizedOrder, error) {
	creds, ok := snap.ActiveCredentials(a.Exchange)
	if !ok {
		return common.SizedOrder{}, common.Invalid("no active credentials for exchange %q", a.Exchange)
	}
	cfg := snap.Config

	var qty, value decimal.Decimal
	switch cfg.OrderSizeType {
	case settings.SizePercentage:
		qty = a.Quantity.Mul(cfg.OrderSizeValue).Div(hundred)
		value = qty.Mul(a.Price)
	case settings.SizeFixed:
		if !a.Price.IsPositive() {
			return common.SizedOrder{}, common.Invalid("cannot size FIXED order for %s: price is %s", a.Symbol, a.Price)
		}
		qty = cfg.OrderSizeValue.Div(a.Price)
		value = cfg.OrderSizeValue
	default:
		return common.SizedOrder{}, common.Invalid("invalid orderSizeType %q", cfg.OrderSizeType)
	}

	// Ceiling only. Zero-priced PERCENTAGE orders have zero value and never clamp.
	if value.GreaterThan(cfg.MaxPositionSize) {
		qty = cfg.MaxPositionSize.Div(a.Price)
		value = cfg.MaxPositionSize
	}

	return common.SizedOrder{
		Quantity:    qty,
		Price:       a.Price,
		OrderValue:  value,
		Credentials: creds.Resolved(),
	}, nil
}
