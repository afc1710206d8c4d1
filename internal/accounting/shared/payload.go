package shared

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Payload is the business event body supplied by a domain module.
type Payload map[string]any

// Lookup resolves a dotted path such as "totals.net" through nested maps.
func (p Payload) Lookup(path string) (any, bool) {
	if p == nil || path == "" {
		return nil, false
	}
	var current any = map[string]any(p)
	for _, part := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			current = v
		case Payload:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
	}
	return current, true
}

// Decimal returns the numeric value at path. Strings are not coerced.
func (p Payload) Decimal(path string) (decimal.Decimal, bool) {
	v, ok := p.Lookup(path)
	if !ok {
		return decimal.Zero, false
	}
	return ToDecimal(v)
}

// String returns the string value at path or "".
func (p Payload) String(path string) string {
	v, ok := p.Lookup(path)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprint(v)
}

// Date parses the value at key as a calendar date. Missing keys report
// false; malformed values return ErrInvalidPayload.
func (p Payload) Date(key string) (time.Time, bool, error) {
	v, ok := p.Lookup(key)
	if !ok || v == nil {
		return time.Time{}, false, nil
	}
	switch d := v.(type) {
	case time.Time:
		return DateOnly(d), true, nil
	case *time.Time:
		if d == nil {
			return time.Time{}, false, nil
		}
		return DateOnly(*d), true, nil
	case string:
		if strings.TrimSpace(d) == "" {
			return time.Time{}, false, nil
		}
		t, err := ParseDate(d)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, key, err)
		}
		return t, true, nil
	default:
		return time.Time{}, false, fmt.Errorf("%w: %s is not a date", ErrInvalidPayload, key)
	}
}

// EventDateKey is the payload key any event may use for its posting date.
const EventDateKey = "date"

// FirstDate returns the first date present among keys, in order.
func (p Payload) FirstDate(keys ...string) (time.Time, bool, error) {
	for _, key := range keys {
		date, ok, err := p.Date(key)
		if err != nil || ok {
			return date, ok, err
		}
	}
	return time.Time{}, false, nil
}

// ToDecimal converts Go and JSON numeric values. NaN and infinities are rejected.
func ToDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, false
		}
		return *n, true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		f := float64(n)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(n)), 0), true
	case uint32:
		return decimal.NewFromInt(int64(n)), true
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0), true
	default:
		return decimal.Zero, false
	}
}
