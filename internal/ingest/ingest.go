// Package ingest pulls new observations for one datastream and appends them
// to the store. A datastream either commits its whole delta or nothing, so
// a failed run resumes from the same point next cycle.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/verkehr-aachen/frost-crawler/internal/coerce"
	"github.com/verkehr-aachen/frost-crawler/internal/frost"
	"github.com/verkehr-aachen/frost-crawler/internal/metrics"
	"github.com/verkehr-aachen/frost-crawler/internal/store"
)

// State is a step of one datastream's ingest.
type State string

// Ingest states.
const (
	StateResuming   State = "resuming"
	StateFetching   State = "fetching"
	StateCommitting State = "committing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Source yields a datastream's observations newest first.
type Source interface {
	Observations(ctx context.Context, dsID int64, since time.Time) iter.Seq2[frost.Page[frost.Observation], error]
}

// Config tunes the controller.
type Config struct {
	// StartTime bounds the first crawl of a datastream with no stored
	// observations. Zero means from the beginning.
	StartTime time.Time
	// CommitTimeout bounds the final append, which is not cancelled by
	// shutdown.
	CommitTimeout time.Duration
}

// Result reports one datastream's ingest.
type Result struct {
	DatastreamID int64     `json:"ds_id"`
	State        State     `json:"state"`
	Since        time.Time `json:"since,omitzero"`
	Fetched      int       `json:"fetched"`
	Dropped      int       `json:"dropped"`
	Duplicates   int       `json:"duplicates"`
	Stored       int64     `json:"stored"`
	Err          error     `json:"-"`
}

// Controller runs the per-datastream state machine.
type Controller struct {
	source Source
	store  store.ObservationStore
	cfg    Config
	logger *zap.Logger
}

// New builds a Controller.
func New(source Source, st store.ObservationStore, cfg Config, logger *zap.Logger) *Controller {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = 30 * time.Second
	}
	return &Controller{
		source: source,
		store:  st,
		cfg:    cfg,
		logger: logger.Named("ingest"),
	}
}

// Ingest fetches every observation newer than the stored resume point and
// appends them in one transaction. It never panics on bad upstream data;
// failures are reported in the Result.
func (c *Controller) Ingest(ctx context.Context, dsID int64) Result {
	res := Result{DatastreamID: dsID}
	log := c.logger.With(zap.Int64("ds_id", dsID))

	c.enter(log, &res, StateResuming)
	since, err := c.resumePoint(ctx, dsID)
	if err != nil {
		return c.fail(log, res, err)
	}
	res.Since = since

	c.enter(log, &res, StateFetching)
	rows, err := c.fetch(ctx, dsID, since, &res)
	if err != nil {
		return c.fail(log, res, err)
	}

	c.enter(log, &res, StateCommitting)
	if len(rows) > 0 {
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CommitTimeout)
		stored, err := c.store.AppendObservations(commitCtx, rows)
		cancel()
		if err != nil {
			return c.fail(log, res, err)
		}
		res.Stored = stored
		res.Duplicates += len(rows) - int(stored)
	}

	c.enter(log, &res, StateDone)
	c.observe(res)
	log.Info("datastream ingested",
		zap.Int("fetched", res.Fetched),
		zap.Int64("stored", res.Stored),
		zap.Int("dropped", res.Dropped),
		zap.Int("duplicates", res.Duplicates),
	)
	return res
}

func (c *Controller) resumePoint(ctx context.Context, dsID int64) (time.Time, error) {
	latest, err := c.store.LatestTimestamp(ctx, dsID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.cfg.StartTime, nil
	case err != nil:
		return time.Time{}, fmt.Errorf("read resume point: %w", err)
	}
	return latest, nil
}

// fetch collects the delta. Pages arrive newest first, so the first
// observation at or before since ends the crawl without requesting further
// pages.
func (c *Controller) fetch(ctx context.Context, dsID int64, since time.Time, res *Result) ([]store.Observation, error) {
	var rows []store.Observation
	seen := make(map[int64]struct{})
	for page, err := range c.source.Observations(ctx, dsID, since) {
		if err != nil {
			return nil, err
		}
		res.Fetched += page.Malformed
		res.Dropped += page.Malformed
		for _, obs := range page.Value {
			res.Fetched++
			ts, err := frost.ParsePhenomenonTime(obs.PhenomenonTime)
			if err != nil {
				res.Dropped++
				continue
			}
			if !since.IsZero() && !ts.After(since) {
				return rows, nil
			}
			value, err := coerce.Result(obs.Result)
			if err != nil {
				res.Dropped++
				continue
			}
			key := ts.UnixNano()
			if _, dup := seen[key]; dup {
				res.Duplicates++
				continue
			}
			seen[key] = struct{}{}
			rows = append(rows, store.Observation{
				ID:           obs.ID,
				DatastreamID: dsID,
				Timestamp:    ts,
				Result:       value,
			})
		}
	}
	return rows, nil
}

func (c *Controller) enter(log *zap.Logger, res *Result, s State) {
	res.State = s
	log.Debug("ingest state", zap.String("state", string(s)))
}

func (c *Controller) fail(log *zap.Logger, res Result, err error) Result {
	failedIn := res.State
	res.State = StateFailed
	res.Err = err
	res.Stored = 0
	c.observe(res)
	log.Warn("datastream ingest failed",
		zap.String("during", string(failedIn)),
		zap.Error(err),
	)
	return res
}

func (c *Controller) observe(res Result) {
	metrics.ObserveIngest(string(res.State))
	metrics.ObserveObservations("fetched", res.Fetched)
	metrics.ObserveObservations("dropped", res.Dropped)
	metrics.ObserveObservations("duplicate", res.Duplicates)
	metrics.ObserveObservations("stored", int(res.Stored))
}
