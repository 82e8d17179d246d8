package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Decimal parses loosely-typed numbers. Anything it cannot read becomes zero.
func Decimal(v any) decimal.Decimal {
	d, _ := ParseDecimal(v)
	return d
}

// ParseDecimal is Decimal with a flag telling whether a value was actually read.
func ParseDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return n, true
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

// String renders scalar JSON values as text; ids come back as numbers on some venues.
func String(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// Millis converts an epoch-millisecond field to time; zero or unreadable yields fallback.
func Millis(v any, fallback time.Time) time.Time {
	d, ok := ParseDecimal(v)
	if !ok || d.IsZero() {
		return fallback
	}
	return time.UnixMilli(d.IntPart())
}

// DecodeObject unmarshals a JSON object keeping numbers as json.Number.
func DecodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errEmptyObject
	}
	return out, nil
}

// Object returns a nested object field or nil.
func Object(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	if o, ok := m[key].(map[string]any); ok {
		return o
	}
	return nil
}

// SplitPair splits exchange-agnostic pair notation ("BTC/USDT", "BTC-USDT",
// "BTC_USDT" or "BTCUSDT") into base and quote. Unseparated pairs are split on a
// known quote suffix; if none matches, quote is empty.
func SplitPair(symbol string) (base, quote string) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexAny(s, "/-_:"); i > 0 {
		return s[:i], s[i+1:]
	}
	for _, q := range knownQuotes {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			return s[:len(s)-len(q)], q
		}
	}
	return s, ""
}

// JoinPair rebuilds a pair with the given separator.
func JoinPair(symbol, sep string) string {
	base, quote := SplitPair(symbol)
	if quote == "" {
		return base
	}
	return base + sep + quote
}

var errEmptyObject = errors.New("empty response object")

var knownQuotes = []string{"USDT", "USDC", "BUSD", "FDUSD", "TUSD", "USD", "EUR", "GBP", "BTC", "ETH", "BNB"}
