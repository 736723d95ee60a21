package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrWriteFailed wraps every failed write; the enclosing transaction
	// has been rolled back.
	ErrWriteFailed = errors.New("store write failed")
)

// EntityWriter persists classified metadata.
type EntityWriter interface {
	UpsertDatastream(ctx context.Context, ds Datastream) error
	UpsertKlasse(ctx context.Context, k Klasse) error
	UpsertSpecialization(ctx context.Context, s Specialization) error
	// SaveEntity writes the datastream, its klasse mapping and all
	// specializations atomically.
	SaveEntity(ctx context.Context, e Entity) error
}

// ObservationStore appends readings and reports resume points.
type ObservationStore interface {
	// LatestTimestamp returns the newest stored timestamp for a datastream
	// or ErrNotFound when none exists.
	LatestTimestamp(ctx context.Context, dsID int64) (time.Time, error)
	// AppendObservations inserts rows in one transaction. Rows whose
	// (ds_id, timestamp) already exists are skipped. It returns the number
	// of rows actually inserted.
	AppendObservations(ctx context.Context, rows []Observation) (int64, error)
}

// DatastreamLister enumerates known datastreams.
type DatastreamLister interface {
	DatastreamIDs(ctx context.Context) ([]int64, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	EntityWriter
	ObservationStore
	DatastreamLister
	Ping(ctx context.Context) error
	Close()
}
