package sinks

import (
	"context"
	"sync"

	"github.com/JakeFAU/harvester/internal/progress"
)

// MemorySink retains the most recent events in a bounded ring. It backs the
// debug endpoint and keeps tests free of external dependencies.
type MemorySink struct {
	mu     sync.Mutex
	buf    []progress.Event
	next   int
	filled bool
}

// NewMemorySink constructs a sink retaining up to capacity events.
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemorySink{buf: make([]progress.Event, capacity)}
}

// Consume appends the batch, overwriting the oldest events when full.
func (s *MemorySink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.buf[s.next] = evt
		s.next++
		if s.next == len(s.buf) {
			s.next = 0
			s.filled = true
		}
	}
	return nil
}

// Recent returns retained events from oldest to newest.
func (s *MemorySink) Recent() []progress.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.filled {
		return append([]progress.Event(nil), s.buf[:s.next]...)
	}
	out := make([]progress.Event, 0, len(s.buf))
	out = append(out, s.buf[s.next:]...)
	out = append(out, s.buf[:s.next]...)
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *MemorySink) Close(context.Context) error {
	return nil
}
