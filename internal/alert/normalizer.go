package alert

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"alert-executor/pkg/exchanges/common"
)

const (
	TypeTradingAlert = "trading_alert"
	UnknownStrategy  = "Unknown"
)

var defaultQuantity = decimal.NewFromInt(1)

// Primary key first, then fallback.
var (
	symbolKeys     = []string{"pair", "symbol"}
	sideKeys       = []string{"side", "action"}
	priceKeys      = []string{"price", "close"}
	quantityKeys   = []string{"quantity", "qty"}
	exchangeKeys   = []string{"exchange", "broker"}
	strategyKeys   = []string{"strategy", "strategyName"}
	stopLossKeys   = []string{"stopLoss", "sl"}
	takeProfitKeys = []string{"takeProfit", "tp"}
	timestampKeys  = []string{"timestamp", "time"}
)

// Transport delivery identity only. A bare "id" is often a reused strategy
// or order label and must not collapse distinct alerts.
var messageIDKeys = []string{"messageId", "alertId"}

var tradingFieldKeys = [][]string{
	symbolKeys, sideKeys, priceKeys, quantityKeys,
	exchangeKeys, strategyKeys, stopLossKeys, takeProfitKeys,
}

var sideCodes = map[string]common.Side{
	"L":  common.SideBuy,
	"S":  common.SideSell,
	"C":  common.SideSell,
	"CL": common.SideSell,
	"CS": common.SideBuy,
}

// Normalizer maps loosely-typed payloads onto Alerts. It never fails.
type Normalizer struct {
	DefaultExchange string
	Now             func() time.Time
}

// NewNormalizer returns a Normalizer using the wall clock.
func NewNormalizer(defaultExchange string) *Normalizer {
	return &Normalizer{DefaultExchange: defaultExchange, Now: time.Now}
}

// Normalize builds a pending Alert from payload.
func (n *Normalizer) Normalize(payload map[string]any) Alert {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	received := now()

	side, defaulted := resolveSide(payload)
	a := Alert{
		ID:            messageID(payload),
		Symbol:        strings.ToUpper(strings.TrimSpace(lookupString(payload, symbolKeys...))),
		Side:          side,
		SideDefaulted: defaulted,
		Quantity:      positiveOr(lookup(payload, quantityKeys...), defaultQuantity),
		Price:         positiveOr(lookup(payload, priceKeys...), decimal.Zero),
		StopLoss:      positiveOr(lookup(payload, stopLossKeys...), decimal.Zero),
		TakeProfit:    positiveOr(lookup(payload, takeProfitKeys...), decimal.Zero),
		Exchange:      strings.ToLower(strings.TrimSpace(lookupString(payload, exchangeKeys...))),
		Strategy:      strings.TrimSpace(lookupString(payload, strategyKeys...)),
		Timestamp:     parseTime(lookup(payload, timestampKeys...), received),
		Status:        StatusPending,
		Raw:           payload,
	}
	if a.ID == "" {
		a.ID = NewID(received)
	}
	if a.Exchange == "" {
		a.Exchange = strings.ToLower(n.DefaultExchange)
	}
	if a.Strategy == "" {
		a.Strategy = UnknownStrategy
	}
	return a
}

// IsTradingAlert reports whether payload is meant for the pipeline: an explicit
// trading_alert type, or no type at all and at least one trading field.
func IsTradingAlert(payload map[string]any) bool {
	if t := lookupString(payload, "type"); t != "" {
		return strings.EqualFold(strings.TrimSpace(t), TypeTradingAlert)
	}
	for _, keys := range tradingFieldKeys {
		if lookup(payload, keys...) != nil {
			return true
		}
	}
	return false
}

// NewID returns base36 milliseconds plus a random suffix.
func NewID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return strconv.FormatInt(at.UnixMilli(), 36) + suffix
}

// resolveSide applies the side code table, then literal BUY/SELL, then the
// action field. Anything else is BUY with defaulted set.
func resolveSide(payload map[string]any) (common.Side, bool) {
	code := strings.ToUpper(strings.TrimSpace(lookupString(payload, sideKeys...)))
	if s, ok := sideCodes[code]; ok {
		return s, false
	}
	if s, ok := literalSide(code); ok {
		return s, false
	}
	action := strings.ToUpper(strings.TrimSpace(lookupString(payload, "action")))
	if s, ok := literalSide(action); ok {
		return s, false
	}
	return common.SideBuy, true
}

func literalSide(s string) (common.Side, bool) {
	switch s {
	case "BUY":
		return common.SideBuy, true
	case "SELL":
		return common.SideSell, true
	}
	return "", false
}

func messageID(payload map[string]any) string {
	return strings.TrimSpace(lookupString(payload, messageIDKeys...))
}

// lookup returns the first present value among keys. Keys compare ignoring
// case, '_' and '-'.
func lookup(payload map[string]any, keys ...string) any {
	for _, key := range keys {
		want := foldKey(key)
		if v, ok := payload[key]; ok && v != nil {
			return v
		}
		for k, v := range payload {
			if v != nil && foldKey(k) == want {
				return v
			}
		}
	}
	return nil
}

func lookupString(payload map[string]any, keys ...string) string {
	return common.String(lookup(payload, keys...))
}

func foldKey(k string) string {
	k = strings.ToLower(k)
	if !strings.ContainsAny(k, "_-") {
		return k
	}
	return strings.NewReplacer("_", "", "-", "").Replace(k)
}

func positiveOr(v any, def decimal.Decimal) decimal.Decimal {
	d, ok := common.ParseDecimal(cleanNumber(v))
	if !ok || !d.IsPositive() {
		return def
	}
	return d
}

// cleanNumber strips thousands separators and a leading currency sign from text.
func cleanNumber(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	return strings.ReplaceAll(s, ",", "")
}

// parseTime accepts epoch seconds, epoch milliseconds or RFC 3339.
func parseTime(v any, fallback time.Time) time.Time {
	if v == nil {
		return fallback
	}
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s)); err == nil {
			return t
		}
	}
	d, ok := common.ParseDecimal(v)
	if !ok || !d.IsPositive() {
		return fallback
	}
	n := d.IntPart()
	if n < 1e12 {
		return time.Unix(n, 0)
	}
	return time.UnixMilli(n)
}
