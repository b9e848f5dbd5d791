package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering and flushing for the Hub.
//   - BufferSize: size of the internal channel (default 1024; one session's
//     worth of in-flight jobs, not a fleet).
//   - MaxBatchEvents: flush once this many events are pending (default 256).
//   - MaxBatchWait: flush cadence for small batches (default 250ms, aligned
//     with the render ticker so sinks and the view advance together).
//   - SinkTimeout: per-sink timeout while flushing (default 5s).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 1024
	defaultMaxBatchEvents = 256
	defaultMaxBatchWait   = 250 * time.Millisecond
	defaultSinkTimeout    = 5 * time.Second
	dropWarnInterval      = 5 * time.Second
)

// Hub collects pipeline Events and fans them out to registered sinks in
// batches. Emit never blocks the pipeline: when the buffer is full the event
// is counted as dropped and forgotten. Session state is unaffected either
// way; it travels through the reducer's lossless message channel.
type Hub struct {
	cfg     Config
	sinks   []Sink
	events  chan Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger
	dropped atomic.Int64
	warnAt  atomic.Int64
	closed  atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the flush goroutine over the supplied sinks. The returned
// Hub accepts events immediately.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		events: make(chan Event, cfg.BufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger,
	}
	go h.run()
	return h
}

// Emit enqueues an Event. It never blocks; invalid events are discarded and
// buffer-full drops are counted and logged at a throttled rate.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		total := h.dropped.Add(1)
		if h.allowDropWarn(time.Now()) {
			h.logger.Warn("progress events dropped due to backpressure",
				zap.Int64("dropped_total", total))
		}
	}
}

// Dropped reports how many events have been discarded since the hub started.
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

// Close drains pending events, flushes and closes the sinks, and blocks
// until the flush goroutine exits. Safe to call more than once.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		if d := h.dropped.Load(); d > 0 {
			h.logger.Warn("progress hub closed with dropped events", zap.Int64("dropped_total", d))
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	ticker := time.NewTicker(h.cfg.MaxBatchWait)
	defer ticker.Stop()

	pending := make([]Event, 0, h.cfg.MaxBatchEvents)
	for {
		select {
		case evt := <-h.events:
			pending = append(pending, evt)
			if len(pending) >= h.cfg.MaxBatchEvents {
				h.flush(pending)
				pending = pending[:0]
			}
		case <-ticker.C:
			if len(pending) > 0 {
				h.flush(pending)
				pending = pending[:0]
			}
		case <-h.stopCh:
			h.drain(pending)
			return
		}
	}
}

// drain empties the buffer after stop, flushing full batches as it goes,
// then closes the sinks.
func (h *Hub) drain(pending []Event) {
	for {
		select {
		case evt := <-h.events:
			pending = append(pending, evt)
			if len(pending) >= h.cfg.MaxBatchEvents {
				h.flush(pending)
				pending = pending[:0]
			}
		default:
			h.flush(pending)
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}
	// Sinks may retain the slice; hand each flush its own copy.
	shared := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, shared); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}

func (h *Hub) allowDropWarn(now time.Time) bool {
	nano := now.UnixNano()
	last := h.warnAt.Load()
	if nano-last < dropWarnInterval.Nanoseconds() {
		return false
	}
	return h.warnAt.CompareAndSwap(last, nano)
}
