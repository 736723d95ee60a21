// Package service runs the crawl cycle: discovery, then one ingest per
// stored datastream, then a pause until the next interval.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/verkehr-aachen/frost-crawler/internal/discovery"
	"github.com/verkehr-aachen/frost-crawler/internal/ingest"
	"github.com/verkehr-aachen/frost-crawler/internal/metrics"
	"github.com/verkehr-aachen/frost-crawler/internal/store"
)

// Discoverer runs one discovery pass.
type Discoverer interface {
	Run(ctx context.Context) (discovery.Result, error)
}

// Dispatcher ingests a set of datastreams.
type Dispatcher interface {
	Run(ctx context.Context, ids []int64) []ingest.Result
}

// Publisher announces finished cycles.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator names cycles.
type IDGenerator interface {
	NewID() (string, error)
}

// Config controls cycle pacing.
type Config struct {
	Interval      time.Duration
	RetryInterval time.Duration
	// Topic receives a CycleSummary after every cycle when a publisher is
	// configured.
	Topic string
}

// CycleSummary describes one finished cycle.
type CycleSummary struct {
	CycleID      string           `json:"cycle_id"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Discovery    discovery.Result `json:"discovery"`
	DiscoveryErr string           `json:"discovery_error,omitempty"`
	Datastreams  int              `json:"datastreams"`
	Done         int              `json:"done"`
	Failed       []int64          `json:"failed"`
	Fetched      int              `json:"fetched"`
	Stored       int64            `json:"stored"`
	Dropped      int              `json:"dropped"`
	Duplicates   int              `json:"duplicates"`
}

// Service owns the cycle loop.
type Service struct {
	discovery  Discoverer
	lister     store.DatastreamLister
	dispatcher Dispatcher
	publisher  Publisher
	ids        IDGenerator
	clock      clockwork.Clock
	cfg        Config
	logger     *zap.Logger

	mu   sync.RWMutex
	last *CycleSummary
}

// Option customizes a Service.
type Option func(*Service)

// WithPublisher announces cycles on cfg.Topic.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// New builds a Service.
func New(
	disc Discoverer,
	lister store.DatastreamLister,
	dispatcher Dispatcher,
	ids IDGenerator,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 90 * time.Second
	}
	s := &Service{
		discovery:  disc,
		lister:     lister,
		dispatcher: dispatcher,
		ids:        ids,
		clock:      clockwork.NewRealClock(),
		cfg:        cfg,
		logger:     logger.Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run repeats cycles until ctx ends. A cycle that cannot list datastreams is
// retried after RetryInterval; otherwise the next cycle starts Interval
// after the previous one began.
func (s *Service) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		started := s.clock.Now()
		wait := s.cfg.Interval
		if _, err := s.RunCycle(ctx); err != nil {
			s.logger.Error("cycle aborted", zap.Error(err), zap.Duration("retry_in", s.cfg.RetryInterval))
			wait = s.cfg.RetryInterval
		} else {
			wait -= s.clock.Since(started)
		}
		if wait < 0 {
			wait = 0
		}
		s.logger.Info("sleeping until next cycle", zap.Duration("wait", wait))
		select {
		case <-ctx.Done():
		case <-s.clock.After(wait):
		}
	}
	s.logger.Info("service stopped")
	return nil
}

// RunCycle performs one discovery and ingest pass. Per-datastream failures
// are recorded in the summary; only an unreadable datastream list aborts the
// cycle.
func (s *Service) RunCycle(ctx context.Context) (CycleSummary, error) {
	cycleID, err := s.ids.NewID()
	if err != nil {
		return CycleSummary{}, fmt.Errorf("new cycle id: %w", err)
	}
	log := s.logger.With(zap.String("cycle_id", cycleID))
	summary := CycleSummary{CycleID: cycleID, StartedAt: s.clock.Now().UTC(), Failed: []int64{}}
	log.Info("cycle started")

	disc, err := s.discovery.Run(ctx)
	summary.Discovery = disc
	if err != nil {
		summary.DiscoveryErr = err.Error()
		log.Warn("discovery incomplete", zap.Error(err))
	}

	ids, err := s.lister.DatastreamIDs(ctx)
	if err != nil {
		return CycleSummary{}, fmt.Errorf("list datastreams: %w", err)
	}
	summary.Datastreams = len(ids)

	for _, r := range s.dispatcher.Run(ctx, ids) {
		summary.Fetched += r.Fetched
		summary.Stored += r.Stored
		summary.Dropped += r.Dropped
		summary.Duplicates += r.Duplicates
		if r.State == ingest.StateDone {
			summary.Done++
		} else {
			summary.Failed = append(summary.Failed, r.DatastreamID)
		}
	}
	summary.FinishedAt = s.clock.Now().UTC()
	duration := summary.FinishedAt.Sub(summary.StartedAt)
	metrics.ObserveCycle(duration, summary.FinishedAt)

	log.Info("cycle finished",
		zap.Duration("duration", duration),
		zap.Int("datastreams", summary.Datastreams),
		zap.Int("done", summary.Done),
		zap.Int("failed", len(summary.Failed)),
		zap.Int64("stored", summary.Stored),
		zap.Int("dropped", summary.Dropped),
		zap.Int("duplicates", summary.Duplicates),
	)

	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()
	s.publish(ctx, log, summary)
	return summary, nil
}

// LastCycle returns the most recent finished cycle.
func (s *Service) LastCycle() (CycleSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return CycleSummary{}, false
	}
	return *s.last, true
}

func (s *Service) publish(ctx context.Context, log *zap.Logger, summary CycleSummary) {
	if s.publisher == nil || s.cfg.Topic == "" {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	id, err := s.publisher.Publish(pubCtx, s.cfg.Topic, summary)
	if err != nil {
		log.Warn("publish cycle summary failed", zap.Error(err))
		return
	}
	log.Debug("published cycle summary", zap.String("message_id", id))
}
