// Package postgres implements the store contracts on PostgreSQL with
// PostGIS geometry columns.
package postgres

import (
	"cmp"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb/encoding/ewkb"

	"github.com/verkehr-aachen/frost-crawler/internal/store"
)

//go:embed schema.sql
var schemaSQL string

const (
	srid = 4326
	// observationChunk bounds the array parameters of one insert.
	observationChunk = 5000
)

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pool interface {
	execer
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// Store is the Postgres-backed store.Store.
type Store struct {
	pool pool
}

var _ store.Store = (*Store)(nil)

// New connects a pgx pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool wraps an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// UpsertDatastream inserts or replaces one datastream row.
func (s *Store) UpsertDatastream(ctx context.Context, ds store.Datastream) error {
	if err := upsertDatastream(ctx, s.pool, ds); err != nil {
		return fmt.Errorf("%w: %w", store.ErrWriteFailed, err)
	}
	return nil
}

// UpsertKlasse records a klasse id mapping. Zero ids are not authoritative
// and are skipped.
func (s *Store) UpsertKlasse(ctx context.Context, k store.Klasse) error {
	if err := upsertKlasse(ctx, s.pool, k); err != nil {
		return fmt.Errorf("%w: %w", store.ErrWriteFailed, err)
	}
	return nil
}

// UpsertSpecialization inserts or replaces one lane, charger or parking row.
func (s *Store) UpsertSpecialization(ctx context.Context, spec store.Specialization) error {
	if err := upsertSpecialization(ctx, s.pool, spec); err != nil {
		return fmt.Errorf("%w: %w", store.ErrWriteFailed, err)
	}
	return nil
}

// SaveEntity writes a datastream with its klasse and specializations in one
// transaction.
func (s *Store) SaveEntity(ctx context.Context, e store.Entity) error {
	err := s.inTx(ctx, func(tx execer) error {
		if err := upsertDatastream(ctx, tx, e.Datastream); err != nil {
			return err
		}
		if e.Klasse != nil {
			if err := upsertKlasse(ctx, tx, *e.Klasse); err != nil {
				return err
			}
		}
		for _, spec := range e.Specializations {
			if err := upsertSpecialization(ctx, tx, spec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: save datastream %d: %w", store.ErrWriteFailed, e.Datastream.ID, err)
	}
	return nil
}

// LatestTimestamp returns the newest stored observation time for dsID.
func (s *Store) LatestTimestamp(ctx context.Context, dsID int64) (time.Time, error) {
	const query = `SELECT "timestamp" FROM observations WHERE ds_id = $1 ORDER BY "timestamp" DESC LIMIT 1`
	var ts time.Time
	if err := s.pool.QueryRow(ctx, query, dsID).Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, store.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("latest timestamp for %d: %w", dsID, err)
	}
	return ts.UTC(), nil
}

// DatastreamIDs lists every known datastream id in ascending order.
func (s *Store) DatastreamIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT ds_id FROM datastreams ORDER BY ds_id`)
	if err != nil {
		return nil, fmt.Errorf("list datastreams: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("list datastreams: %w", err)
	}
	return ids, nil
}

// AppendObservations inserts rows in one transaction, skipping any whose
// (ds_id, timestamp) or obs_id already exists.
func (s *Store) AppendObservations(ctx context.Context, rows []store.Observation) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	const query = `
INSERT INTO observations (obs_id, ds_id, "timestamp", result)
SELECT * FROM unnest($1::bigint[], $2::bigint[], $3::timestamptz[], $4::double precision[])
ON CONFLICT DO NOTHING`

	var inserted int64
	err := s.inTx(ctx, func(tx execer) error {
		for start := 0; start < len(rows); start += observationChunk {
			chunk := rows[start:min(start+observationChunk, len(rows))]
			ids := make([]int64, len(chunk))
			dsIDs := make([]int64, len(chunk))
			stamps := make([]time.Time, len(chunk))
			results := make([]float64, len(chunk))
			for i, o := range chunk {
				ids[i] = o.ID
				dsIDs[i] = o.DatastreamID
				stamps[i] = o.Timestamp.UTC()
				results[i] = o.Result
			}
			tag, err := tx.Exec(ctx, query, ids, dsIDs, stamps, results)
			if err != nil {
				return fmt.Errorf("insert observations: %w", err)
			}
			inserted += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", store.ErrWriteFailed, err)
	}
	return inserted, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx execer) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func upsertDatastream(ctx context.Context, db execer, ds store.Datastream) error {
	const query = `
INSERT INTO datastreams (ds_id, klasse, beschreibung, thing_id, geometry, longitude, latitude, unit, measurement_type, confidential)
VALUES ($1, $2, $3, $4, ST_GeomFromEWKB($5), $6, $7, $8, $9, $10)
ON CONFLICT (ds_id) DO UPDATE SET
	klasse = EXCLUDED.klasse,
	beschreibung = EXCLUDED.beschreibung,
	thing_id = EXCLUDED.thing_id,
	geometry = EXCLUDED.geometry,
	longitude = EXCLUDED.longitude,
	latitude = EXCLUDED.latitude,
	unit = EXCLUDED.unit,
	measurement_type = EXCLUDED.measurement_type,
	confidential = EXCLUDED.confidential`

	klasse := ds.Klasse
	if klasse == "" {
		klasse = store.KlasseUnknown
	}
	geom, err := encodeGeometry(ds)
	if err != nil {
		return err
	}
	unit := cmp.Or(ds.Unit, store.LabelUnknown)
	measurementType := cmp.Or(ds.MeasurementType, store.LabelUnknown)
	if _, err := db.Exec(ctx, query,
		ds.ID, klasse, ds.Beschreibung, ds.ThingID, geom, ds.Longitude, ds.Latitude,
		unit, measurementType, ds.Confidential,
	); err != nil {
		return fmt.Errorf("upsert datastream %d: %w", ds.ID, err)
	}
	return nil
}

func encodeGeometry(ds store.Datastream) ([]byte, error) {
	if ds.Geometry == nil {
		return nil, nil
	}
	b, err := ewkb.Marshal(ds.Geometry, srid)
	if err != nil {
		return nil, fmt.Errorf("encode geometry of datastream %d: %w", ds.ID, err)
	}
	return b, nil
}

func upsertKlasse(ctx context.Context, db execer, k store.Klasse) error {
	if k.KlasseID == 0 || k.Klasse == "" {
		return nil
	}
	const query = `
INSERT INTO klassen (klasse, klasse_id) VALUES ($1, $2)
ON CONFLICT (klasse) DO UPDATE SET klasse_id = EXCLUDED.klasse_id`
	if _, err := db.Exec(ctx, query, k.Klasse, k.KlasseID); err != nil {
		return fmt.Errorf("upsert klasse %q: %w", k.Klasse, err)
	}
	return nil
}

func upsertSpecialization(ctx context.Context, db execer, spec store.Specialization) error {
	var (
		query string
		args  []any
	)
	switch v := spec.(type) {
	case store.Fahrspur:
		query = `
INSERT INTO fahrspuren (ds_id, fahrspur_id, fahrspur, speedlimit, aggregation)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (ds_id) DO UPDATE SET
	fahrspur_id = EXCLUDED.fahrspur_id,
	fahrspur = EXCLUDED.fahrspur,
	speedlimit = EXCLUDED.speedlimit,
	aggregation = EXCLUDED.aggregation`
		args = []any{v.DatastreamID, v.FahrspurID, v.Fahrspur, v.Speedlimit, v.Aggregation}
	case store.Ladestation:
		query = `
INSERT INTO ladestationen (thing_id, max_power, type)
VALUES ($1, $2, $3)
ON CONFLICT (thing_id) DO UPDATE SET
	max_power = EXCLUDED.max_power,
	type = EXCLUDED.type`
		args = []any{v.ThingID, v.MaxPower, v.Type}
	case store.Parkobjekt:
		query = `
INSERT INTO parkobjekte (thing_id, capacity, type)
VALUES ($1, $2, $3)
ON CONFLICT (thing_id) DO UPDATE SET
	capacity = EXCLUDED.capacity,
	type = EXCLUDED.type`
		args = []any{v.ThingID, v.Capacity, v.Type}
	default:
		return fmt.Errorf("unsupported specialization %T", spec)
	}
	if _, err := db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s %d: %w", spec.Table(), spec.Key(), err)
	}
	return nil
}
