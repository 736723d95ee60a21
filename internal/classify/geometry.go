package classify

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/verkehr-aachen/frost-crawler/internal/frost"
)

// Location is a resolved geometry and its representative point: the point
// itself, or the planar centroid of a polygon's outer ring or a line.
type Location struct {
	Geometry orb.Geometry
	Point    orb.Point
}

// Longitude of the representative point.
func (l Location) Longitude() float64 { return l.Point.Lon() }

// Latitude of the representative point.
func (l Location) Latitude() float64 { return l.Point.Lat() }

// ResolveLocation prefers the datastream's observedArea and falls back to
// the chargePointLocation some charger feeds carry. Anything else, or
// anything malformed, stays unresolved.
func ResolveLocation(ds frost.Datastream) (Location, bool) {
	if loc, ok := fromObservedArea(ds.ObservedArea); ok {
		return loc, true
	}
	return fromChargePointLocation(ds)
}

func fromObservedArea(raw json.RawMessage) (Location, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Location{}, false
	}
	g, err := geojson.UnmarshalGeometry(trimmed)
	if err != nil || g == nil {
		return Location{}, false
	}
	return locate(g.Geometry())
}

func locate(g orb.Geometry) (Location, bool) {
	var center orb.Point
	switch shape := g.(type) {
	case orb.Point:
		center = shape
	case orb.Polygon:
		if len(shape) == 0 || len(shape[0]) < 3 {
			return Location{}, false
		}
		center, _ = planar.CentroidArea(orb.Polygon{shape[0]})
	case orb.LineString:
		if len(shape) < 2 {
			return Location{}, false
		}
		center, _ = planar.CentroidArea(shape)
	default:
		return Location{}, false
	}
	if !finite(center) {
		return Location{}, false
	}
	return Location{Geometry: g, Point: center}, true
}

// fromChargePointLocation reads chargePointLocation.coordinates.{lon,lat},
// either top-level or inside properties. Only charger feeds send it.
func fromChargePointLocation(ds frost.Datastream) (Location, bool) {
	cpl := ds.ChargePointLocation
	if len(cpl) == 0 {
		cpl, _ = ds.Properties.Object("chargePointLocation")
	}
	coords, ok := cpl.Object("coordinates")
	if !ok {
		return Location{}, false
	}
	lon, okLon := coords.Float("lon")
	lat, okLat := coords.Float("lat")
	if !okLon || !okLat {
		return Location{}, false
	}
	p := orb.Point{lon, lat}
	return Location{Geometry: p, Point: p}, true
}

func finite(p orb.Point) bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
