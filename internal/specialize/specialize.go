// Package specialize maps classified upstream records onto the lane,
// charger and parking tables. Mappers are pure; absent optional values are
// left nil, never guessed.
package specialize

import (
	"github.com/verkehr-aachen/frost-crawler/internal/classify"
	"github.com/verkehr-aachen/frost-crawler/internal/frost"
	"github.com/verkehr-aachen/frost-crawler/internal/store"
)

// Lane maps a lane datastream. ok is false unless the datastream carries a
// fahrspur property. The speed limit falls back to the Thing's
// props.speedLimit.
func Lane(ds frost.Datastream) (store.Fahrspur, bool) {
	if !ds.Properties.Has("fahrspur") {
		return store.Fahrspur{}, false
	}
	lane := store.Fahrspur{
		DatastreamID: ds.ID,
		FahrspurID:   intPtr(ds.Properties, "fahrspurId"),
		Fahrspur:     stringPtr(ds.Properties, "fahrspur"),
		Speedlimit:   intPtr(ds.Properties, "speedlimit"),
		Aggregation:  stringPtr(ds.Properties, "aggregation"),
	}
	if lane.Speedlimit == nil && ds.Thing != nil {
		props, _ := ds.Thing.Properties.Object("props")
		lane.Speedlimit = intPtr(props, "speedLimit")
	}
	return lane, true
}

// Charger maps a charging-point Thing.
func Charger(thing frost.Thing) store.Ladestation {
	props, _ := thing.Properties.Object("props")
	ratings, _ := props.Object("ratings")
	return store.Ladestation{
		ThingID:  thing.ID,
		MaxPower: floatPtr(ratings, "maximumPower"),
		Type:     stringPtr(props, "chargePointType"),
	}
}

// Parking maps a parking Thing. Capacity is read directly, else derived
// from the number of sub-locations.
func Parking(thing frost.Thing) store.Parkobjekt {
	props, _ := thing.Properties.Object("props")
	p := store.Parkobjekt{
		ThingID:  thing.ID,
		Capacity: intPtr(props, "capacity"),
		Type:     stringPtr(thing.Properties, "species"),
	}
	if p.Capacity == nil {
		p.Capacity = intPtr(thing.Properties, "capacity")
	}
	if p.Capacity == nil {
		if ids, ok := props.Slice("subLocationIds"); ok {
			n := int64(len(ids))
			p.Capacity = &n
		}
	}
	if p.Type == nil {
		p.Type = stringPtr(thing.Properties, "type")
	}
	return p
}

// For returns every specialization row that applies to ds given its
// classification.
func For(ds frost.Datastream, res classify.Result) []store.Specialization {
	var out []store.Specialization
	if lane, ok := Lane(ds); ok {
		out = append(out, lane)
	}
	switch classify.ThingKind(ds.Thing, res.Klasse) {
	case classify.KindCharger:
		out = append(out, Charger(*ds.Thing))
	case classify.KindParking:
		out = append(out, Parking(*ds.Thing))
	}
	return out
}

func stringPtr(p frost.Properties, key string) *string {
	v, ok := p.String(key)
	if !ok {
		return nil
	}
	return &v
}

func intPtr(p frost.Properties, key string) *int64 {
	v, ok := p.Int(key)
	if !ok {
		return nil
	}
	return &v
}

func floatPtr(p frost.Properties, key string) *float64 {
	v, ok := p.Float(key)
	if !ok {
		return nil
	}
	return &v
}
