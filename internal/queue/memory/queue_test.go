package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verkehr-aachen/frost-crawler/internal/queue"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue[int64](0)
	result := make(chan int64, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	require.NoError(t, q.Enqueue(context.Background(), 42))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		assert.Equal(t, int64(42), got)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewQueue[int64](1).Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")

	full := NewQueue[int64](1)
	require.NoError(t, full.Enqueue(context.Background(), 1))
	err = full.Enqueue(ctx, 2)
	require.EqualError(t, err, "enqueue canceled: context canceled")
}

func TestQueueCloseDrainsBufferedItems(t *testing.T) {
	t.Parallel()

	q := NewQueue[int64](2)
	require.NoError(t, q.Enqueue(context.Background(), 1))
	q.Close()
	q.Close()

	require.ErrorIs(t, q.Enqueue(context.Background(), 2), queue.ErrClosed)

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, queue.ErrClosed)
}
