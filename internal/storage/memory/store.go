package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/verkehr-aachen/frost-crawler/internal/store"
)

type obsKey struct {
	dsID int64
	ts   int64
}

type specKey struct {
	table string
	key   int64
}

// Store implements store.Store in memory for development and tests. It
// enforces the same uniqueness as the Postgres schema.
type Store struct {
	mu           sync.RWMutex
	datastreams  map[int64]store.Datastream
	klassen      map[string]int64
	specs        map[specKey]store.Specialization
	observations map[int64][]store.Observation
	seen         map[obsKey]struct{}
	obsIDs       map[int64]struct{}
}

var _ store.Store = (*Store)(nil)

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		datastreams:  make(map[int64]store.Datastream),
		klassen:      make(map[string]int64),
		specs:        make(map[specKey]store.Specialization),
		observations: make(map[int64][]store.Observation),
		seen:         make(map[obsKey]struct{}),
		obsIDs:       make(map[int64]struct{}),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// UpsertDatastream stores or replaces a datastream.
func (s *Store) UpsertDatastream(_ context.Context, ds store.Datastream) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putDatastream(ds)
	return nil
}

// UpsertKlasse records a non-zero klasse id.
func (s *Store) UpsertKlasse(_ context.Context, k store.Klasse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putKlasse(k)
	return nil
}

// UpsertSpecialization stores or replaces a specialization row.
func (s *Store) UpsertSpecialization(_ context.Context, spec store.Specialization) error {
	if spec == nil {
		return fmt.Errorf("%w: nil specialization", store.ErrWriteFailed)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[specKey{spec.Table(), spec.Key()}] = spec
	return nil
}

// SaveEntity applies all parts of e under one lock.
func (s *Store) SaveEntity(_ context.Context, e store.Entity) error {
	if slices.Contains(e.Specializations, nil) {
		return fmt.Errorf("%w: nil specialization for datastream %d", store.ErrWriteFailed, e.Datastream.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putDatastream(e.Datastream)
	if e.Klasse != nil {
		s.putKlasse(*e.Klasse)
	}
	for _, spec := range e.Specializations {
		s.specs[specKey{spec.Table(), spec.Key()}] = spec
	}
	return nil
}

// LatestTimestamp returns the newest stored timestamp for dsID.
func (s *Store) LatestTimestamp(_ context.Context, dsID int64) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	for _, o := range s.observations[dsID] {
		if o.Timestamp.After(latest) {
			latest = o.Timestamp
		}
	}
	if latest.IsZero() {
		return time.Time{}, store.ErrNotFound
	}
	return latest, nil
}

// DatastreamIDs lists stored datastream ids in ascending order.
func (s *Store) DatastreamIDs(context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.datastreams))
	for id := range s.datastreams {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// AppendObservations inserts rows whose (datastream, timestamp) and id are
// both new.
func (s *Store) AppendObservations(_ context.Context, rows []store.Observation) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted int64
	for _, o := range rows {
		o.Timestamp = o.Timestamp.UTC()
		key := obsKey{o.DatastreamID, o.Timestamp.UnixNano()}
		if _, dup := s.seen[key]; dup {
			continue
		}
		if _, dup := s.obsIDs[o.ID]; dup {
			continue
		}
		s.seen[key] = struct{}{}
		s.obsIDs[o.ID] = struct{}{}
		s.observations[o.DatastreamID] = append(s.observations[o.DatastreamID], o)
		inserted++
	}
	return inserted, nil
}

// Datastream returns a stored datastream.
func (s *Store) Datastream(id int64) (store.Datastream, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.datastreams[id]
	return ds, ok
}

// KlasseID returns the recorded id for a klasse label.
func (s *Store) KlasseID(klasse string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.klassen[klasse]
	return id, ok
}

// Specialization returns the row stored under table and key.
func (s *Store) Specialization(table string, key int64) (store.Specialization, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.specs[specKey{table, key}]
	return spec, ok
}

// Observations returns a datastream's rows ordered by timestamp.
func (s *Store) Observations(dsID int64) []store.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.observations[dsID])
	slices.SortFunc(out, func(a, b store.Observation) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}

func (s *Store) putDatastream(ds store.Datastream) {
	if ds.Klasse == "" {
		ds.Klasse = store.KlasseUnknown
	}
	if ds.Unit == "" {
		ds.Unit = store.LabelUnknown
	}
	if ds.MeasurementType == "" {
		ds.MeasurementType = store.LabelUnknown
	}
	s.datastreams[ds.ID] = ds
}

func (s *Store) putKlasse(k store.Klasse) {
	if k.KlasseID == 0 || k.Klasse == "" {
		return
	}
	s.klassen[k.Klasse] = k.KlasseID
}
