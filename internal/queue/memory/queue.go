// Package memory provides the bounded in-memory intake queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
var ErrQueueFull = errors.New("intake queue full")

// ErrQueueClosed is returned once the queue has been shut down.
var ErrQueueClosed = errors.New("intake queue closed")

// Queue is a bounded FIFO channel queue. Enqueue blocks when full, giving
// submitters backpressure instead of unbounded buffering. Shutdown is
// signalled through a dedicated done channel; the task channel itself is
// never closed, so a producer parked in Enqueue unblocks with ErrQueueClosed
// instead of panicking on a closed channel.
type Queue struct {
	ch        chan harvest.Task
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan harvest.Task, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a task, blocking until space frees up, the queue closes, or
// the context ends.
func (q *Queue) Enqueue(ctx context.Context, task harvest.Task) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrQueueClosed
	case q.ch <- task:
		return nil
	}
}

// TryEnqueue pushes a task without blocking. A full queue returns
// ErrQueueFull so callers can surface backpressure to the submitter.
func (q *Queue) TryEnqueue(task harvest.Task) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue pops the next task, respecting context cancellation. After Close,
// remaining buffered tasks are still handed out before ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (harvest.Task, error) {
	select {
	case <-ctx.Done():
		return harvest.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task := <-q.ch:
		return task, nil
	case <-q.done:
		select {
		case task := <-q.ch:
			return task, nil
		default:
			return harvest.Task{}, ErrQueueClosed
		}
	}
}

// Len reports the number of buffered tasks.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close signals shutdown. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
