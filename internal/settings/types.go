// Package settings owns the user-editable trading configuration and exchange credentials.
package settings

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"alert-executor/pkg/exchanges/common"
)

type Mode string

const (
	ModeAuto   Mode = "AUTO"
	ModeManual Mode = "MANUAL"
)

type SizeType string

const (
	SizePercentage SizeType = "PERCENTAGE"
	SizeFixed      SizeType = "FIXED"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

var hundred = decimal.NewFromInt(100)

// TradingConfig drives how alerts are handled and sized.
type TradingConfig struct {
	Mode                 Mode            `json:"mode"`
	TestMode             bool            `json:"testMode"`
	OrderSizeType        SizeType        `json:"orderSizeType"`
	OrderSizeValue       decimal.Decimal `json:"orderSizeValue"`
	MaxPositionSize      decimal.Decimal `json:"maxPositionSize"`
	StopLossPercentage   decimal.Decimal `json:"stopLossPercentage"`
	TakeProfitPercentage decimal.Decimal `json:"takeProfitPercentage"`
	RiskLevel            RiskLevel       `json:"riskLevel"`
	EnabledStrategies    []string        `json:"enabledStrategies"`
}

// DefaultTradingConfig is what a fresh install starts with: manual approval against sandboxes.
func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		Mode:                 ModeManual,
		TestMode:             true,
		OrderSizeType:        SizePercentage,
		OrderSizeValue:       hundred,
		MaxPositionSize:      decimal.NewFromInt(1000),
		StopLossPercentage:   decimal.NewFromInt(2),
		TakeProfitPercentage: decimal.NewFromInt(4),
		RiskLevel:            RiskMedium,
		EnabledStrategies:    []string{},
	}
}

// Validate checks enum values and the size value against its type.
func (c TradingConfig) Validate() error {
	switch c.Mode {
	case ModeAuto, ModeManual:
	default:
		return common.Invalid("invalid mode %q", c.Mode)
	}
	switch c.OrderSizeType {
	case SizePercentage:
		if c.OrderSizeValue.IsNegative() || c.OrderSizeValue.GreaterThan(hundred) {
			return common.Invalid("orderSizeValue must be within [0, 100] for PERCENTAGE, got %s", c.OrderSizeValue)
		}
	case SizeFixed:
		if !c.OrderSizeValue.IsPositive() {
			return common.Invalid("orderSizeValue must be > 0 for FIXED, got %s", c.OrderSizeValue)
		}
	default:
		return common.Invalid("invalid orderSizeType %q", c.OrderSizeType)
	}
	if !c.MaxPositionSize.IsPositive() {
		return common.Invalid("maxPositionSize must be > 0, got %s", c.MaxPositionSize)
	}
	if c.StopLossPercentage.IsNegative() || c.TakeProfitPercentage.IsNegative() {
		return common.Invalid("stop loss and take profit percentages must not be negative")
	}
	switch c.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		return common.Invalid("invalid riskLevel %q", c.RiskLevel)
	}
	return nil
}

// StrategyEnabled reports whether alerts from strategy may auto-execute.
// An empty set enables every strategy.
func (c TradingConfig) StrategyEnabled(strategy string) bool {
	if len(c.EnabledStrategies) == 0 {
		return true
	}
	for _, s := range c.EnabledStrategies {
		if strings.EqualFold(s, strategy) {
			return true
		}
	}
	return false
}

func (c TradingConfig) clone() TradingConfig {
	c.EnabledStrategies = slices.Clone(c.EnabledStrategies)
	return c
}

// normalize uppercases enums and dedupes strategies.
func (c TradingConfig) normalize() TradingConfig {
	c.Mode = Mode(strings.ToUpper(string(c.Mode)))
	c.OrderSizeType = SizeType(strings.ToUpper(string(c.OrderSizeType)))
	c.RiskLevel = RiskLevel(strings.ToUpper(string(c.RiskLevel)))
	seen := make(map[string]bool, len(c.EnabledStrategies))
	out := make([]string, 0, len(c.EnabledStrategies))
	for _, s := range c.EnabledStrategies {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	c.EnabledStrategies = out
	return c
}

// ExchangeCredentials is one API key set. Several sets may exist per exchange;
// only the active one is ever used.
type ExchangeCredentials struct {
	Exchange   string `json:"exchange"`
	APIKey     string `json:"apiKey"`
	APISecret  string `json:"apiSecret"`
	Passphrase string `json:"passphrase,omitempty"`
	IsActive   bool   `json:"isActive"`
}

// Masked hides secrets for display.
func (c ExchangeCredentials) Masked() ExchangeCredentials {
	c.APIKey = mask(c.APIKey)
	c.APISecret = mask(c.APISecret)
	c.Passphrase = mask(c.Passphrase)
	return c
}

// Resolved converts to the form carried by a sized order.
func (c ExchangeCredentials) Resolved() common.Credentials {
	return common.Credentials{
		Exchange:   c.Exchange,
		APIKey:     c.APIKey,
		APISecret:  c.APISecret,
		Passphrase: c.Passphrase,
	}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// Snapshot is an immutable copy of settings handed to one execution.
type Snapshot struct {
	Config      TradingConfig
	Credentials []ExchangeCredentials
}

// ActiveCredentials finds the active set for exchange, ignoring case.
func (s Snapshot) ActiveCredentials(exchange string) (ExchangeCredentials, bool) {
	for _, c := range s.Credentials {
		if c.IsActive && strings.EqualFold(c.Exchange, exchange) {
			return c, true
		}
	}
	return ExchangeCredentials{}, false
}
