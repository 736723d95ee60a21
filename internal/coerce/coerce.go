// Package coerce turns raw observation results into numbers.
package coerce

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnconvertible marks a result with no numeric meaning. Callers drop
// such observations.
var ErrUnconvertible = errors.New("unconvertible observation result")

// Charger status vocabulary.
var statusValues = map[string]float64{
	"charging":   1,
	"available":  0,
	"outoforder": -1,
}

// Result converts a decoded JSON result. Numbers pass through, numeric
// strings are parsed and the charger status words map to 1, 0 and -1.
func Result(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return finite(v, raw)
	case float32:
		return finite(float64(v), raw)
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrUnconvertible, v.String())
		}
		return finite(f, raw)
	case string:
		return fromString(v)
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnconvertible, raw)
	}
}

func fromString(s string) (float64, error) {
	trimmed := strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return finite(f, s)
	}
	if v, ok := statusValues[strings.ToLower(trimmed)]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnconvertible, s)
}

func finite(f float64, raw any) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrUnconvertible, raw)
	}
	return f, nil
}
