package risk

import (
	"github.com/shopspring/decimal"

	"alert-executor/internal/alert"
	"alert-executor/internal/settings"
	"alert-executor/pkg/exchanges/common"
)

// Protection is the stop-loss / take-profit pair for an entry.
type Protection struct {
	StopLoss   decimal.Decimal `json:"stopLoss"`
	TakeProfit decimal.Decimal `json:"takeProfit"`
}

// ProtectionFor returns the alert's own levels, filling missing ones from the
// configured percentages around the entry price. Levels are reported, not
// submitted: only limit entries go to the exchange.
func ProtectionFor(a alert.Alert, cfg settings.TradingConfig) Protection {
	p := Protection{StopLoss: a.StopLoss, TakeProfit: a.TakeProfit}
	if !a.Price.IsPositive() {
		return p
	}
	slFrac := cfg.StopLossPercentage.Div(hundred)
	tpFrac := cfg.TakeProfitPercentage.Div(hundred)
	one := decimal.NewFromInt(1)

	if p.StopLoss.IsZero() && slFrac.IsPositive() {
		if a.Side == common.SideSell {
			p.StopLoss = a.Price.Mul(one.Add(slFrac))
		} else {
			p.StopLoss = a.Price.Mul(one.Sub(slFrac))
		}
	}
	if p.TakeProfit.IsZero() && tpFrac.IsPositive() {
		if a.Side == common.SideSell {
			p.TakeProfit = a.Price.Mul(one.Sub(tpFrac))
		} else {
			p.TakeProfit = a.Price.Mul(one.Add(tpFrac))
		}
	}
	return p
}
