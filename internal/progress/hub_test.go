package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/harvester/internal/harvest"
)

type recordingSink struct {
	mu       sync.Mutex
	events   []Event
	consumes int
	closed   bool
}

func (s *recordingSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	s.consumes++
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func validEvent(id harvest.JobID) Event {
	return Event{
		JobID: id,
		TS:    time.Now().UTC(),
		Kind:  KindJobStart,
		Stage: harvest.StageQueued,
	}
}

func TestHubDeliversBatches(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)

	for i := 1; i <= 5; i++ {
		hub.Emit(validEvent(harvest.JobID(i)))
	}

	require.Eventually(t, func() bool {
		return sink.count() == 5
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Close(context.Background()))
	require.True(t, sink.closed)
}

func TestHubFlushesOnBatchSize(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 2, MaxBatchWait: time.Hour}, sink)

	hub.Emit(validEvent(1))
	hub.Emit(validEvent(2))

	require.Eventually(t, func() bool {
		return sink.count() == 2
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Close(context.Background()))
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)

	hub.Emit(Event{}) // missing job id and timestamp
	hub.Emit(validEvent(1))

	require.Eventually(t, func() bool {
		return sink.count() == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Close(context.Background()))
}

func TestHubCloseDrainsPending(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchWait: time.Hour}, sink)

	for i := 1; i <= 10; i++ {
		hub.Emit(validEvent(harvest.JobID(i)))
	}
	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 10, sink.count())

	// Emits after close are ignored.
	hub.Emit(validEvent(11))
	require.Equal(t, 10, sink.count())
}

type gatedSink struct {
	recordingSink
	entered chan struct{}
	release chan struct{}
}

func (s *gatedSink) Consume(ctx context.Context, batch []Event) error {
	s.entered <- struct{}{}
	<-s.release
	return s.recordingSink.Consume(ctx, batch)
}

func TestHubCountsDropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	sink := &gatedSink{entered: make(chan struct{}, 4), release: make(chan struct{})}
	hub := NewHub(Config{BufferSize: 1, MaxBatchEvents: 1, MaxBatchWait: time.Hour}, sink)

	hub.Emit(validEvent(1))
	<-sink.entered // flush goroutine is now parked inside the sink

	hub.Emit(validEvent(2)) // fills the buffer
	hub.Emit(validEvent(3)) // no room left, dropped
	require.Equal(t, int64(1), hub.Dropped())

	close(sink.release)
	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 2, sink.count())
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, Status2xx, ClassifyStatus(200))
	require.Equal(t, Status3xx, ClassifyStatus(302))
	require.Equal(t, Status4xx, ClassifyStatus(404))
	require.Equal(t, Status5xx, ClassifyStatus(502))
	require.Equal(t, StatusOther, ClassifyStatus(42))
}
