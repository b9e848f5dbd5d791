// Package limiter caps the number of simultaneously in-flight pipelines.
package limiter

import "context"

// Limiter is a counting semaphore over a buffered channel.
type Limiter struct {
	slots chan struct{}
}

// New constructs a limiter admitting at most n holders.
func New(n int) *Limiter {
	if n <= 0 {
		n = 1
	}
	return &Limiter{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or the context ends.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case l.slots <- struct{}{}:
		return nil
	}
}

// Release frees a previously acquired slot. Releasing without a matching
// Acquire is a programming error and panics.
func (l *Limiter) Release() {
	select {
	case <-l.slots:
	default:
		panic("limiter: release without acquire")
	}
}

// InFlight reports the number of currently held slots.
func (l *Limiter) InFlight() int {
	return len(l.slots)
}
