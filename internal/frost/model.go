// Package frost is a client for OGC SensorThings ("FROST") servers: entity
// models, query builders and a paginated crawl over @iot.nextLink.
package frost

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Datastream is one measurable output of a Thing as returned by the
// Datastreams entity set, with the owning Thing expanded inline.
type Datastream struct {
	ID           int64           `json:"@iot.id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Properties   Properties      `json:"properties"`
	ObservedArea json.RawMessage `json:"observedArea,omitempty"`
	// ChargePointLocation is only populated by some charger feeds.
	ChargePointLocation Properties `json:"chargePointLocation,omitempty"`
	Thing               *Thing     `json:"Thing,omitempty"`
}

// Thing is the physical device or site owning one or more datastreams.
type Thing struct {
	ID          int64      `json:"@iot.id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Properties  Properties `json:"properties"`
}

// Observation is one reading. Result is left as decoded JSON (number,
// string, bool, ...) for the coercer to interpret.
type Observation struct {
	ID             int64  `json:"@iot.id"`
	PhenomenonTime string `json:"phenomenonTime"`
	Result         any    `json:"result"`
}

// Page is one response of a collection request. Records that do not
// decode into T are skipped and counted in Malformed, so one odd record
// never costs the rest of the page.
type Page[T any] struct {
	Value     []T    `json:"value"`
	NextLink  string `json:"@iot.nextLink,omitempty"`
	Malformed int    `json:"-"`
}

// UnmarshalJSON decodes the envelope strictly and each record on its own.
func (p *Page[T]) UnmarshalJSON(data []byte) error {
	var raw struct {
		Value    []json.RawMessage `json:"value"`
		NextLink string            `json:"@iot.nextLink"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.NextLink = raw.NextLink
	p.Value = make([]T, 0, len(raw.Value))
	p.Malformed = 0
	for _, rec := range raw.Value {
		var v T
		if err := json.Unmarshal(rec, &v); err != nil {
			p.Malformed++
			continue
		}
		p.Value = append(p.Value, v)
	}
	return nil
}

// Next returns the continuation link, if the server sent one.
func (p Page[T]) Next() (string, bool) {
	link := strings.TrimSpace(p.NextLink)
	return link, link != ""
}

// ParsePhenomenonTime parses an ISO 8601 instant or interval. Intervals
// ("start/end") resolve to their start.
func ParsePhenomenonTime(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if start, _, ok := strings.Cut(value, "/"); ok {
		value = start
	}
	if value == "" {
		return time.Time{}, fmt.Errorf("empty phenomenon time")
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse phenomenon time %q: %w", raw, err)
	}
	return ts.UTC(), nil
}
