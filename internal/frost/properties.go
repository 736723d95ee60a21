package frost

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// Properties is the free-form "properties" bag SensorThings attaches to
// Things and Datastreams. Keys are matched exactly first, then
// case-insensitively, because the upstream mixes "FahrspurID" and
// "fahrspurId" for the same field. Every accessor reports presence and
// never panics on a nil bag.
type Properties map[string]any

// UnmarshalJSON accepts any JSON value. Only objects populate the bag;
// arrays, scalars and null leave it empty instead of failing the record.
func (p *Properties) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			*p = nil
			return nil
		}
		return err
	}
	*p = m
	return nil
}

// Lookup returns the raw value stored under key. JSON null counts as absent.
func (p Properties) Lookup(key string) (any, bool) {
	if len(p) == 0 {
		return nil, false
	}
	if v, ok := p[key]; ok {
		return v, v != nil
	}
	match, found := "", false
	for k := range p {
		if strings.EqualFold(k, key) && (!found || k < match) {
			match, found = k, true
		}
	}
	if !found {
		return nil, false
	}
	v := p[match]
	return v, v != nil
}

// Has reports whether key holds a non-null value.
func (p Properties) Has(key string) bool {
	_, ok := p.Lookup(key)
	return ok
}

// String returns a trimmed, non-empty textual value. Numbers are rendered
// in their shortest form.
func (p Properties) String(key string) (string, bool) {
	v, ok := p.Lookup(key)
	if !ok {
		return "", false
	}
	return asString(v)
}

// Int returns an integral value. Floats with a fractional part and
// non-numeric strings are rejected.
func (p Properties) Int(key string) (int64, bool) {
	v, ok := p.Lookup(key)
	if !ok {
		return 0, false
	}
	return asInt(v)
}

// Float returns a finite numeric value.
func (p Properties) Float(key string) (float64, bool) {
	v, ok := p.Lookup(key)
	if !ok {
		return 0, false
	}
	return asFloat(v)
}

// Object returns a nested bag. The returned bag is safe to query even when
// ok is false.
func (p Properties) Object(key string) (Properties, bool) {
	v, ok := p.Lookup(key)
	if !ok {
		return nil, false
	}
	switch obj := v.(type) {
	case map[string]any:
		return Properties(obj), true
	case Properties:
		return obj, true
	default:
		return nil, false
	}
}

// Slice returns a nested JSON array.
func (p Properties) Slice(key string) ([]any, bool) {
	v, ok := p.Lookup(key)
	if !ok {
		return nil, false
	}
	s, ok := v.([]any)
	return s, ok
}

func asString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		return s, s != ""
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return "", false
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case json.Number:
		return val.String(), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return "", false
	}
}

func asFloat(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asInt(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int64:
		return val, true
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return i, true
		}
	}
	f, ok := asFloat(v)
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if !ok || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
