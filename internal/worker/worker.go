// Package worker runs per-datastream ingests pulled from a queue.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/verkehr-aachen/frost-crawler/internal/ingest"
	"github.com/verkehr-aachen/frost-crawler/internal/metrics"
	"github.com/verkehr-aachen/frost-crawler/internal/queue"
)

// Ingester processes one datastream.
type Ingester interface {
	Ingest(ctx context.Context, dsID int64) ingest.Result
}

// Worker consumes datastream ids and reports each result.
type Worker struct {
	id       int
	queue    queue.Queue[int64]
	ingester Ingester
	report   func(ingest.Result)
	logger   *zap.Logger
}

// New constructs a Worker. report is called once per processed id and must
// be safe for concurrent use.
func New(id int, q queue.Queue[int64], ingester Ingester, report func(ingest.Result), logger *zap.Logger) *Worker {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	if report == nil {
		report = func(ingest.Result) {}
	}
	return &Worker{
		id:       id,
		queue:    q,
		ingester: ingester,
		report:   report,
		logger:   logger.With(zap.Int("worker", id)),
	}
}

// Run blocks until the queue is drained and closed or the context ends.
func (w *Worker) Run(ctx context.Context) {
	for {
		dsID, err := w.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrClosed) && ctx.Err() == nil {
				w.logger.Error("dequeue failed", zap.Error(err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		w.logger.Debug("dequeued datastream", zap.Int64("ds_id", dsID))
		w.process(ctx, dsID)
	}
}

func (w *Worker) process(ctx context.Context, dsID int64) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	w.report(w.ingester.Ingest(ctx, dsID))
}
