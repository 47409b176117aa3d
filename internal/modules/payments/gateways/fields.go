package gateways

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// String tries each key in turn and returns the first non-empty string.
// Keys may be dotted paths into nested objects ("data.reference").
func String(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := lookup(m, k)
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case json.Number:
			return t.String()
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(t)
		default:
			if s := fmt.Sprint(t); s != "" {
				return s
			}
		}
	}
	return ""
}

func Map(m map[string]any, key string) map[string]any {
	v, ok := lookup(m, key)
	if !ok {
		return nil
	}
	out, _ := v.(map[string]any)
	return out
}

// Amount parses a numeric or numeric-string field. A missing or
// unparseable value is reported as absent, never as zero.
func Amount(m map[string]any, key string) decimal.NullDecimal {
	s := String(m, key)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"2006-01-02",
}

// Time parses the common provider timestamp formats; nil when absent.
func Time(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// MinorUnits converts a payer-facing amount to the provider's unit.
func MinorUnits(amount, multiplier decimal.Decimal) int64 {
	return amount.Mul(multiplier).Round(0).IntPart()
}

func lookup(m map[string]any, key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	if v, ok := m[key]; ok {
		return v, true
	}
	parts := strings.Split(key, ".")
	if len(parts) == 1 {
		return nil, false
	}
	var cur any = m
	for _, p := range parts {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = mm[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
