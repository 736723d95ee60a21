package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verkehr-aachen/frost-crawler/internal/ingest"
	"github.com/verkehr-aachen/frost-crawler/internal/queue/memory"
)

type fakeIngester struct {
	mu   sync.Mutex
	seen []int64
}

func (f *fakeIngester) Ingest(_ context.Context, dsID int64) ingest.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, dsID)
	return ingest.Result{DatastreamID: dsID, State: ingest.StateDone}
}

func TestWorkerDrainsClosedQueue(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue[int64](3)
	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, q.Enqueue(context.Background(), id))
	}
	q.Close()

	ing := &fakeIngester{}
	var got []ingest.Result
	w := New(1, q, ing, func(r ingest.Result) { got = append(got, r) }, zap.NewNop())
	w.Run(context.Background())

	assert.Equal(t, []int64{1, 2, 3}, ing.seen)
	require.Len(t, got, 3)
	assert.Equal(t, ingest.StateDone, got[2].State)
}

func TestWorkerStopsOnCancel(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue[int64](1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(1, q, &fakeIngester{}, nil, nil).Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}
