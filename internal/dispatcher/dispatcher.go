// Package dispatcher fans datastream ids out to a fixed pool of workers.
package dispatcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/verkehr-aachen/frost-crawler/internal/ingest"
	"github.com/verkehr-aachen/frost-crawler/internal/queue/memory"
	"github.com/verkehr-aachen/frost-crawler/internal/worker"
)

// Dispatcher runs one ingest per datastream id with bounded parallelism.
type Dispatcher struct {
	workers  int
	ingester worker.Ingester
	logger   *zap.Logger
}

// New creates a Dispatcher with n workers (at least one).
func New(n int, ingester worker.Ingester, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		workers:  max(n, 1),
		ingester: ingester,
		logger:   logger.Named("dispatcher"),
	}
}

// Run hands every id to exactly one worker and waits for all of them. When
// ctx ends no further ids are handed out; ingests already running finish.
// Results are returned in completion order.
func (d *Dispatcher) Run(ctx context.Context, ids []int64) []ingest.Result {
	q := memory.NewQueue[int64](d.workers)

	var (
		mu      sync.Mutex
		results = make([]ingest.Result, 0, len(ids))
	)
	report := func(r ingest.Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := range d.workers {
		w := worker.New(i+1, q, d.ingester, report, d.logger)
		wg.Go(func() { w.Run(ctx) })
	}

	for _, id := range ids {
		if err := q.Enqueue(ctx, id); err != nil {
			d.logger.Info("stopped handing out datastreams", zap.Error(err))
			break
		}
	}
	q.Close()
	wg.Wait()
	return results
}
