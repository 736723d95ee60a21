// Package queue defines the work queue contract between the dispatcher and
// its workers.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by Dequeue once a closed queue is drained.
var ErrClosed = errors.New("queue closed")

// Queue hands items of type T from one producer to many consumers.
type Queue[T any] interface {
	Enqueue(ctx context.Context, item T) error
	Dequeue(ctx context.Context) (T, error)
	Close()
}
