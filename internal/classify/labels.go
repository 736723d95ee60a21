package classify

import (
	"slices"

	"github.com/verkehr-aachen/frost-crawler/internal/frost"
	"github.com/verkehr-aachen/frost-crawler/internal/store"
)

// Labels name the unit and kind of measurement a datastream reports.
type Labels struct {
	Unit            string
	MeasurementType string
}

var unknownLabels = Labels{Unit: store.LabelUnknown, MeasurementType: store.LabelUnknown}

type labelRule struct {
	klassen []string
	labels  func(klasse string) Labels
}

var labelRules = []labelRule{
	{[]string{"E-Ladepunkt"}, func(k string) Labels {
		return Labels{Unit: "Occupancy status", MeasurementType: k}
	}},
	{[]string{"Parkobjekt", "ParkingArea", "ParkingLocation"}, func(k string) Labels {
		return Labels{Unit: "Vacant Spaces", MeasurementType: k}
	}},
	{[]string{"cC1", "cC2", "cC3", "vC1", "vC2", "vC3"}, func(string) Labels {
		return Labels{Unit: "Vehicles Counted", MeasurementType: "motor traffic measurement"}
	}},
	{[]string{"Bike"}, func(string) Labels {
		return Labels{Unit: "Bikes counted", MeasurementType: "bike traffic measurement"}
	}},
}

// LabelsFor maps a klasse to its unit and measurement type. Klassen
// without a known meaning get "unknown" for both.
func LabelsFor(klasse string) Labels {
	for _, r := range labelRules {
		if slices.Contains(r.klassen, klasse) {
			return r.labels(klasse)
		}
	}
	return unknownLabels
}

// Public Thing species. Everything else, including a missing Thing, is
// treated as confidential.
var publicSpecies = []string{"Zaehlstelle", "Parkplatz", "Parkfläche"}

// Confidential reports whether readings of thing's datastreams may only be
// shown to privileged API users.
func Confidential(thing *frost.Thing) bool {
	if thing == nil {
		return true
	}
	species, _ := thing.Properties.String("species")
	switch {
	case species == "Ladestation", species == "Parkhaus":
		return true
	case slices.Contains(publicSpecies, species):
		return false
	}
	typ, _ := thing.Properties.String("type")
	return typ != "ParkingLocation"
}
