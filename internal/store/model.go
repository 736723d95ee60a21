package store

import (
	"time"

	"github.com/paulmach/orb"
)

// KlasseUnknown is the classification assigned when no rule matches. It is
// a valid terminal value, not an error.
const KlasseUnknown = "unknown"

// LabelUnknown fills the unit and measurement type of datastreams whose
// klasse has no known meaning.
const LabelUnknown = "unknown"

// Datastream models one row of the datastreams table.
type Datastream struct {
	// ID is the upstream @iot.id and the table's primary key.
	ID int64
	// Klasse is the derived category; never empty.
	Klasse string
	// Beschreibung is the upstream free-text description.
	Beschreibung string
	// ThingID references the owning upstream Thing when known.
	ThingID *int64
	// Geometry is the resolved point, polygon or line; nil when unresolved.
	Geometry orb.Geometry
	// Longitude and Latitude hold the point or centroid; nil with Geometry.
	Longitude *float64
	Latitude  *float64
	// Unit and MeasurementType describe the readings; "unknown" when the
	// klasse carries no meaning.
	Unit            string
	MeasurementType string
	// Confidential readings are reserved for privileged API users.
	Confidential bool
}

// Klasse maps an upstream klasse id to its canonical label.
type Klasse struct {
	Klasse   string
	KlasseID int64
}

// Observation is one coerced reading.
type Observation struct {
	ID           int64
	DatastreamID int64
	Timestamp    time.Time
	Result       float64
}

// Specialization is a row of one of the per-kind tables. Rows are keyed
// replaces: the last crawl wins.
type Specialization interface {
	Table() string
	Key() int64
}

// Fahrspur is a traffic-counting lane attached to one datastream.
type Fahrspur struct {
	DatastreamID int64
	// FahrspurID is only unique within one counting site.
	FahrspurID  *int64
	Fahrspur    *string
	Speedlimit  *int64
	Aggregation *string
}

// Table implements Specialization.
func (Fahrspur) Table() string { return "fahrspuren" }

// Key implements Specialization.
func (f Fahrspur) Key() int64 { return f.DatastreamID }

// Ladestation is one EV charging point.
type Ladestation struct {
	ThingID  int64
	MaxPower *float64
	// Type is AC/DC as reported upstream; nil when absent.
	Type *string
}

// Table implements Specialization.
func (Ladestation) Table() string { return "ladestationen" }

// Key implements Specialization.
func (l Ladestation) Key() int64 { return l.ThingID }

// Parkobjekt is a parking facility.
type Parkobjekt struct {
	ThingID  int64
	Capacity *int64
	Type     *string
}

// Table implements Specialization.
func (Parkobjekt) Table() string { return "parkobjekte" }

// Key implements Specialization.
func (p Parkobjekt) Key() int64 { return p.ThingID }

// Entity bundles everything discovery learned about one datastream so it
// can be written in a single transaction.
type Entity struct {
	Datastream Datastream
	// Klasse is nil when the upstream carried no authoritative klasse id.
	Klasse          *Klasse
	Specializations []Specialization
}
