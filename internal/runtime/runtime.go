// Package runtime hosts the session reducer loop and executes the effects it
// emits. It owns the intake queue, the pipeline worker pool, the render
// ticker, and snapshot persistence; every state mutation flows through a
// single goroutine consuming one message channel, so job updates stay ordered
// and the reducer stays free of locks.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/archive"
	"github.com/JakeFAU/harvester/internal/cancel"
	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/pipeline"
	"github.com/JakeFAU/harvester/internal/progress"
	queuememory "github.com/JakeFAU/harvester/internal/queue/memory"
	"github.com/JakeFAU/harvester/internal/session"
	"github.com/JakeFAU/harvester/internal/snapshot"
)

const (
	defaultQueueCapacity  = 256
	defaultTickEvery      = 250 * time.Millisecond
	defaultEnqueueTimeout = 5 * time.Second
	defaultMsgBuffer      = 4096
)

// ErrBusy is returned by SubmitURLs and Stop when the intake loop cannot
// accept another message right now. Callers should surface it as
// backpressure rather than retrying in a tight loop.
var ErrBusy = errors.New("session intake saturated")

// ErrNotStarted is returned when the runtime has not been started yet.
var ErrNotStarted = errors.New("runtime not started")

// Config carries runtime sizing and cadence knobs.
type Config struct {
	// QueueCapacity bounds the intake queue. A full queue pushes back on
	// submissions instead of growing memory without limit.
	QueueCapacity int
	// Pipeline sizes the worker pool and the per-stage watchdog budgets.
	Pipeline pipeline.Config
	// TickEvery is the render pulse cadence.
	TickEvery time.Duration
	// EnqueueTimeout bounds how long the loop waits for queue space before
	// failing the job.
	EnqueueTimeout time.Duration
	// PublishTopic is the broker topic for session lifecycle notifications.
	PublishTopic string
	// Session configures the reducer.
	Session session.Config
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
	if c.TickEvery <= 0 {
		c.TickEvery = defaultTickEvery
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = defaultEnqueueTimeout
	}
	return c
}

// Deps wires the runtime's collaborators. Logger is required; every other
// nil field falls back to a no-op or default implementation.
type Deps struct {
	Fetcher    harvest.Fetcher
	Extractor  harvest.Extractor
	Converter  harvest.Converter
	Tokens     harvest.TokenCounter
	Writer     harvest.DocumentWriter
	Hasher     harvest.Hasher
	Clock      harvest.Clock
	Normalizer harvest.URLNormalizer
	Progress   progress.Emitter
	Archive    archive.Store
	Publisher  harvest.Publisher
	Snapshots  snapshot.Store
	IDs        harvest.IDGenerator
	Logger     *zap.Logger
}

// Runtime drives one harvest session end to end.
type Runtime struct {
	cfg  Config
	deps Deps

	sess  *session.Session
	queue *queuememory.Queue
	token *cancel.Holder
	pool  *pipeline.Pool

	msgs chan harvest.Msg

	view       atomic.Value // session.ViewSnapshot
	lastExport atomic.Value // string

	loopCtx    context.Context
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	tickerDone chan struct{}

	finished     chan struct{}
	finishedOnce sync.Once

	startOnce sync.Once
	started   atomic.Bool

	// runID identifies the current session run in logs and notifications.
	// Loop goroutine only.
	runID         string
	snapshotDirty bool
}

// New assembles a runtime. Start must be called before submissions.
func New(cfg Config, deps Deps) *Runtime {
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Archive == nil {
		deps.Archive = archive.NoopStore{}
	}
	if deps.Snapshots == nil {
		deps.Snapshots = snapshot.NoopStore{}
	}
	if deps.Normalizer == nil {
		deps.Normalizer = harvest.DefaultNormalizer{}
	}
	if cfg.Session.Normalizer == nil {
		cfg.Session.Normalizer = deps.Normalizer
	}
	if cfg.Session.TokenScheme == "" && deps.Tokens != nil {
		cfg.Session.TokenScheme = deps.Tokens.Scheme()
	}

	r := &Runtime{
		cfg:        cfg,
		deps:       deps,
		sess:       session.New(cfg.Session),
		queue:      queuememory.NewQueue(cfg.QueueCapacity),
		token:      cancel.NewHolder(),
		msgs:       make(chan harvest.Msg, defaultMsgBuffer),
		loopDone:   make(chan struct{}),
		tickerDone: make(chan struct{}),
		finished:   make(chan struct{}),
	}
	r.view.Store(r.sess.View())

	r.pool = pipeline.NewPool(cfg.Pipeline, pipeline.Deps{
		Queue:      r.queue,
		Fetcher:    deps.Fetcher,
		Extractor:  deps.Extractor,
		Converter:  deps.Converter,
		Tokens:     deps.Tokens,
		Writer:     deps.Writer,
		Hasher:     deps.Hasher,
		Clock:      deps.Clock,
		Normalizer: deps.Normalizer,
		Sink:       r,
		Progress:   deps.Progress,
		Token:      r.token,
		Logger:     deps.Logger,
	})
	return r
}

// Start restores any persisted snapshot, then launches the worker pool, the
// reducer loop, and the render ticker. It is safe to call once.
func (r *Runtime) Start(ctx context.Context) error {
	var startErr error
	r.startOnce.Do(func() {
		restored, err := r.deps.Snapshots.Load(ctx)
		if err != nil {
			startErr = fmt.Errorf("load snapshot: %w", err)
			return
		}

		r.loopCtx, r.loopCancel = context.WithCancel(context.Background())
		r.pool.Start(r.loopCtx)
		go r.runLoop()
		go r.runTicker()
		r.started.Store(true)

		if len(restored) > 0 {
			r.deps.Logger.Info("restored completed jobs from snapshot",
				zap.Int("jobs", len(restored)))
			r.Send(harvest.RestoreCompletedJobs{Jobs: restored})
		}
	})
	return startErr
}

// Send delivers a message to the reducer loop. It blocks until the loop
// accepts the message or shuts down. Pipeline workers use this path, so the
// buffer is sized to keep them from stalling behind a busy loop.
func (r *Runtime) Send(msg harvest.Msg) {
	if !r.started.Load() {
		return
	}
	select {
	case r.msgs <- msg:
	case <-r.loopCtx.Done():
	}
}

// SubmitURLs hands a block of submitted text to the session. It returns
// ErrBusy when the intake loop is saturated so callers can signal
// backpressure instead of queueing unbounded work.
func (r *Runtime) SubmitURLs(ctx context.Context, text string) error {
	if !r.started.Load() {
		return ErrNotStarted
	}
	msg := harvest.UrlsSubmitted{Text: text, Now: r.now()}
	select {
	case r.msgs <- msg:
		return nil
	case <-ctx.Done():
		return ErrBusy
	case <-r.loopCtx.Done():
		return ErrNotStarted
	}
}

// Stop requests a drain: intake closes, queued jobs cancel, in-flight jobs
// finish their current stage.
func (r *Runtime) Stop(ctx context.Context) error {
	if !r.started.Load() {
		return ErrNotStarted
	}
	select {
	case r.msgs <- harvest.StopRequested{Now: r.now()}:
		return nil
	case <-ctx.Done():
		return ErrBusy
	case <-r.loopCtx.Done():
		return ErrNotStarted
	}
}

// View returns the latest published session snapshot.
func (r *Runtime) View() session.ViewSnapshot {
	v, _ := r.view.Load().(session.ViewSnapshot)
	return v
}

// ExportContent returns the most recently written export document, if any.
func (r *Runtime) ExportContent() (string, bool) {
	content, ok := r.lastExport.Load().(string)
	return content, ok
}

// Finished is closed once the session reaches its terminal state and the
// export artifacts have been written.
func (r *Runtime) Finished() <-chan struct{} {
	return r.finished
}

// Close shuts the runtime down: the cancellation token is raised so workers
// stop at the next stage boundary, the loop drains, and the snapshot store
// closes. Close does not write a final export; use Stop for a graceful
// finish first.
func (r *Runtime) Close(ctx context.Context) error {
	if !r.started.Load() {
		return nil
	}
	r.token.Cancel()
	r.loopCancel()
	r.queue.Close()

	poolDone := make(chan struct{})
	go func() {
		r.pool.Wait()
		close(poolDone)
	}()
	select {
	case <-poolDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-r.loopDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-r.tickerDone

	r.deps.Snapshots.Close()
	return nil
}

func (r *Runtime) runLoop() {
	defer close(r.loopDone)
	for {
		select {
		case msg := <-r.msgs:
			r.process(msg)
		case <-r.loopCtx.Done():
			return
		}
	}
}

func (r *Runtime) runTicker() {
	defer close(r.tickerDone)
	ticker := time.NewTicker(r.cfg.TickEvery)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			select {
			case r.msgs <- harvest.Tick{Now: now}:
			case <-r.loopCtx.Done():
				return
			}
		case <-r.loopCtx.Done():
			return
		}
	}
}

// process applies one message to the session and executes the resulting
// effects. It runs only on the loop goroutine.
func (r *Runtime) process(msg harvest.Msg) {
	effects := r.sess.Update(msg)
	r.runEffects(effects)
	r.view.Store(r.sess.View())

	switch m := msg.(type) {
	case harvest.JobDone:
		if m.Outcome.Kind == harvest.OutcomeSuccess {
			r.snapshotDirty = true
		}
	case harvest.Tick:
		if r.snapshotDirty {
			r.saveSnapshot()
			r.snapshotDirty = false
		}
	}
}

func (r *Runtime) runEffects(effects []harvest.Effect) {
	for _, effect := range effects {
		switch e := effect.(type) {
		case harvest.StartSession:
			// A restart after a drained stop needs a fresh cancellation
			// signal for the new run's jobs.
			if r.token.Cancelled() {
				r.token.Reset()
			}
			r.runID = r.newRunID()
			r.deps.Logger.Info("session started", zap.String("run_id", r.runID))
			r.publish("session_started", map[string]any{
				"run_id":     r.runID,
				"started_at": r.now().UTC().Format(time.RFC3339),
			})
		case harvest.EnqueueJob:
			r.enqueue(e)
		case harvest.CancelSession:
			r.deps.Logger.Info("session stopping", zap.String("policy", string(e.Policy)))
			r.token.Cancel()
		case harvest.WriteExportFile:
			r.writeArtifact(e.Path, e.Content, "text/plain; charset=utf-8")
			r.lastExport.Store(e.Content)
		case harvest.WriteManifest:
			r.writeArtifact(e.Path, e.Content, "application/json")
			r.finishSession()
		}
	}
}

func (r *Runtime) enqueue(e harvest.EnqueueJob) {
	ctx, cancelFn := context.WithTimeout(r.loopCtx, r.cfg.EnqueueTimeout)
	defer cancelFn()
	if err := r.queue.Enqueue(ctx, harvest.Task{JobID: e.JobID, URL: e.URL}); err != nil {
		r.deps.Logger.Warn("intake queue rejected job",
			zap.Uint64("job_id", uint64(e.JobID)), zap.Error(err))
		r.process(harvest.JobDone{
			JobID:   e.JobID,
			Outcome: harvest.FailedOutcome(harvest.FailOther, "intake queue full"),
			Now:     r.now(),
		})
	}
}

func (r *Runtime) writeArtifact(path, content, contentType string) {
	uri, err := r.deps.Writer.Write(r.loopCtx, path, content)
	if err != nil {
		r.deps.Logger.Error("failed to write artifact",
			zap.String("path", path), zap.Error(err))
		return
	}
	r.deps.Logger.Info("artifact written", zap.String("uri", uri))

	if _, ok := r.deps.Archive.(archive.NoopStore); ok {
		return
	}
	archiveURI, err := r.deps.Archive.PutObject(r.loopCtx, path, contentType, strings.NewReader(content))
	if err != nil {
		r.deps.Logger.Warn("failed to archive artifact",
			zap.String("path", path), zap.Error(err))
		return
	}
	if archiveURI != "" {
		r.deps.Logger.Info("artifact archived", zap.String("uri", archiveURI))
	}
}

// finishSession runs after the manifest, the last export effect, has been
// written. It persists the final snapshot, notifies the broker, and unblocks
// anyone waiting on Finished.
func (r *Runtime) finishSession() {
	r.saveSnapshot()
	r.snapshotDirty = false

	view := r.sess.View()
	r.publish("session_finished", map[string]any{
		"run_id":      r.runID,
		"finished_at": r.now().UTC().Format(time.RFC3339),
		"counters":    view.Counters,
	})

	r.finishedOnce.Do(func() { close(r.finished) })
}

func (r *Runtime) saveSnapshot() {
	completed := r.sess.CompletedSnapshots()
	if err := r.deps.Snapshots.Save(r.loopCtx, completed); err != nil {
		r.deps.Logger.Warn("failed to save snapshot", zap.Error(err))
	}
}

func (r *Runtime) publish(event string, payload map[string]any) {
	if r.deps.Publisher == nil || r.cfg.PublishTopic == "" {
		return
	}
	body := map[string]any{"event": event}
	for k, v := range payload {
		body[k] = v
	}
	ctx, cancelFn := context.WithTimeout(r.loopCtx, 10*time.Second)
	defer cancelFn()
	if _, err := r.deps.Publisher.Publish(ctx, r.cfg.PublishTopic, body); err != nil {
		r.deps.Logger.Warn("failed to publish notification",
			zap.String("event", event), zap.Error(err))
	}
}

func (r *Runtime) newRunID() string {
	if r.deps.IDs == nil {
		return ""
	}
	id, err := r.deps.IDs.NewID()
	if err != nil {
		r.deps.Logger.Warn("failed to generate run id", zap.Error(err))
		return ""
	}
	return id
}

func (r *Runtime) now() time.Time {
	if r.deps.Clock != nil {
		return r.deps.Clock.Now()
	}
	return time.Now()
}
