package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrNotNumeric = errors.New("value is not numeric")

// Attributes is an untyped attribute payload as returned by Home Assistant.
type Attributes map[string]any

// Key chains accepted for each field, checked in order.
var (
	TemperatureKeys = []string{"temperature", "temp", "current_temperature"}
	HumidityKeys    = []string{"humidity", "relative_humidity", "hum"}
	TimestampKeys   = []string{"datetime", "time", "dt"}
	ConditionKeys   = []string{"condition", "state"}
)

// First returns the value of the first key that is present and non-null.
func (a Attributes) First(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := a[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (a Attributes) Float(keys ...string) Optional[float64] {
	v, ok := a.First(keys...)
	if !ok {
		return None[float64]()
	}
	return ToFloat(v)
}

func (a Attributes) Text(keys ...string) Optional[string] {
	v, ok := a.First(keys...)
	if !ok {
		return None[string]()
	}
	if s, ok := v.(string); ok {
		return Some(s)
	}
	return Some(fmt.Sprint(v))
}

// ParseFloat accepts numbers and numeric strings. Anything else, including
// booleans, is ErrNotNumeric.
func ParseFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrNotNumeric, v)
	}
}

// ToFloat is the permissive form of ParseFloat: it never fails, it returns
// None instead.
func ToFloat(v any) Optional[float64] {
	if v == nil {
		return None[float64]()
	}
	f, err := ParseFloat(v)
	if err != nil {
		return None[float64]()
	}
	return Some(f)
}
