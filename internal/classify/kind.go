package classify

import (
	"slices"

	"github.com/verkehr-aachen/frost-crawler/internal/frost"
)

// Kind is the specialization a Thing routes to.
type Kind string

// Thing kinds.
const (
	KindOther    Kind = "other"
	KindCharger  Kind = "charger"
	KindParking  Kind = "parking"
	KindCounting Kind = "counting_site"
)

type kindRule struct {
	kind  Kind
	match func(species, typ, klasse string) bool
}

var kindRules = []kindRule{
	{KindCharger, func(species, _, klasse string) bool {
		return species == "Ladestation" || klasse == "E-Ladepunkt"
	}},
	{KindParking, func(species, typ, klasse string) bool {
		return slices.Contains([]string{"Parkhaus", "Parkplatz", "Parkfläche"}, species) ||
			typ == "ParkingLocation" ||
			slices.Contains([]string{"Parkobjekt", "ParkingArea", "ParkingLocation"}, klasse)
	}},
	{KindCounting, func(species, _, _ string) bool {
		return species == "Zaehlstelle"
	}},
}

// ThingKind routes a Thing to its specialization using its species and
// type properties and the datastream's klasse. A nil Thing is KindOther.
func ThingKind(thing *frost.Thing, klasse string) Kind {
	if thing == nil {
		return KindOther
	}
	species, _ := thing.Properties.String("species")
	typ, _ := thing.Properties.String("type")
	for _, r := range kindRules {
		if r.match(species, typ, klasse) {
			return r.kind
		}
	}
	return KindOther
}
