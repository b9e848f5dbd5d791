// Package pipeline runs the per-URL stage machine: Fetch, Extract, Convert,
// Tokenize, Persist. Stages run strictly in order, failures short-circuit to
// a terminal outcome, and the shared cancellation token is checked at every
// stage boundary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/cancel"
	"github.com/JakeFAU/harvester/internal/decode"
	"github.com/JakeFAU/harvester/internal/document"
	"github.com/JakeFAU/harvester/internal/fetch"
	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/limiter"
	"github.com/JakeFAU/harvester/internal/progress"
)

const (
	defaultExtractTimeout  = 30 * time.Second
	defaultConvertTimeout  = 15 * time.Second
	defaultTokenizeTimeout = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
)

var errStageTimeout = errors.New("stage watchdog expired")

// Config carries pool sizing and per-stage watchdog budgets. MaxInFlight
// caps how many jobs may be executing stages at once; Workers is the number
// of dequeuing goroutines and defaults to MaxInFlight plus headroom, so
// queued tasks keep terminalizing as cancelled even while every slot is
// held.
type Config struct {
	Workers         int
	MaxInFlight     int
	ExtractTimeout  time.Duration
	ConvertTimeout  time.Duration
	TokenizeTimeout time.Duration
	WriteTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxInFlight <= 0 {
		if c.Workers > 0 {
			c.MaxInFlight = c.Workers
		} else {
			c.MaxInFlight = 1
		}
	}
	if c.Workers <= 0 {
		c.Workers = c.MaxInFlight + 2
	}
	if c.ExtractTimeout <= 0 {
		c.ExtractTimeout = defaultExtractTimeout
	}
	if c.ConvertTimeout <= 0 {
		c.ConvertTimeout = defaultConvertTimeout
	}
	if c.TokenizeTimeout <= 0 {
		c.TokenizeTimeout = defaultTokenizeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	return c
}

// Deps wires the pipeline's collaborators.
type Deps struct {
	Queue      harvest.Queue
	Limiter    *limiter.Limiter
	Fetcher    harvest.Fetcher
	Extractor  harvest.Extractor
	Converter  harvest.Converter
	Tokens     harvest.TokenCounter
	Writer     harvest.DocumentWriter
	Hasher     harvest.Hasher
	Clock      harvest.Clock
	Normalizer harvest.URLNormalizer
	Sink       harvest.MsgSink
	Progress   progress.Emitter
	Token      cancel.Signal
	Logger     *zap.Logger
}

// Pool runs a fixed set of workers dequeuing tasks until the context ends or
// the queue closes.
type Pool struct {
	cfg  Config
	deps Deps
	wg   sync.WaitGroup
}

// NewPool constructs a Pool. The pool does not start until Start is called.
func NewPool(cfg Config, deps Deps) *Pool {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = harvest.DefaultNormalizer{}
	}
	cfg = cfg.withDefaults()
	if deps.Limiter == nil {
		deps.Limiter = limiter.New(cfg.MaxInFlight)
	}
	return &Pool{cfg: cfg, deps: deps}
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			p.runWorker(ctx, worker)
		}(i)
	}
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, worker int) {
	log := p.deps.Logger.With(zap.Int("worker", worker))
	for {
		task, err := p.deps.Queue.Dequeue(ctx)
		if err != nil {
			log.Debug("worker exiting", zap.Error(err))
			return
		}
		// Tasks still queued when the session was cancelled terminalize
		// without entering the pipeline.
		if p.deps.Token.Cancelled() {
			p.finish(task, harvest.CancelledOutcome(), time.Time{})
			continue
		}
		if err := p.deps.Limiter.Acquire(ctx); err != nil {
			p.finish(task, harvest.CancelledOutcome(), time.Time{})
			return
		}
		// The session may have been cancelled while this task waited for a
		// slot; do not start its pipeline.
		if p.deps.Token.Cancelled() {
			p.deps.Limiter.Release()
			p.finish(task, harvest.CancelledOutcome(), time.Time{})
			continue
		}
		p.runJob(ctx, task)
		p.deps.Limiter.Release()
	}
}

// runJob drives one task through every stage. Each terminal path sends
// exactly one JobDone message.
func (p *Pool) runJob(ctx context.Context, task harvest.Task) {
	started := p.deps.Clock.Now()
	log := p.deps.Logger.With(zap.Uint64("job_id", uint64(task.JobID)), zap.String("url", task.URL))

	p.emit(progress.Event{
		JobID: task.JobID,
		TS:    started,
		Kind:  progress.KindJobStart,
		Stage: harvest.StageQueued,
		URL:   task.URL,
	})

	outcome := p.runStages(ctx, task, started, log)
	p.finish(task, outcome, started)
}

func (p *Pool) runStages(ctx context.Context, task harvest.Task, started time.Time, log *zap.Logger) harvest.Outcome {
	// Fetch.
	p.progressMsg(task.JobID, harvest.StageDownloading, -1, -1, "")
	result, err := p.fetchWithRetry(ctx, task, log)
	if err != nil {
		return fetchOutcome(err)
	}
	bytes := int64(len(result.Body))
	p.emitFetchDone(task, result)
	p.progressMsg(task.JobID, harvest.StageSanitizing, bytes, -1, "")
	if p.deps.Token.Cancelled() {
		return harvest.CancelledOutcome()
	}

	// Decode to UTF-8 before any parsing; legacy charsets are still common.
	decoded, err := decode.HTML(result.Body, result.ContentType)
	if err != nil {
		return stageFailure(err, harvest.FailParse, "decode")
	}

	// Extract.
	extracted, err := runStage(p.cfg.ExtractTimeout, func() (harvest.ExtractedContent, error) {
		return p.deps.Extractor.Extract(decoded.HTML)
	})
	if err != nil {
		return stageFailure(err, harvest.FailParse, "extract")
	}
	p.progressMsg(task.JobID, harvest.StageConverting, bytes, -1, "")
	if p.deps.Token.Cancelled() {
		return harvest.CancelledOutcome()
	}

	// Convert.
	conversion, err := runStage(p.cfg.ConvertTimeout, func() (harvest.Conversion, error) {
		return p.deps.Converter.Convert(extracted.ContentHTML, result.FinalURL)
	})
	if err != nil {
		return stageFailure(err, harvest.FailParse, "convert")
	}
	p.progressMsg(task.JobID, harvest.StageTokenizing, bytes, -1, harvest.Preview(conversion.Markdown))
	if p.deps.Token.Cancelled() {
		return harvest.CancelledOutcome()
	}

	// Tokenize.
	tokens, err := runStage(p.cfg.TokenizeTimeout, func() (int, error) {
		return p.deps.Tokens.Count(conversion.Markdown), nil
	})
	if err != nil {
		return stageFailure(err, harvest.FailOther, "tokenize")
	}
	p.progressMsg(task.JobID, harvest.StageWriting, bytes, tokens, "")
	if p.deps.Token.Cancelled() {
		return harvest.CancelledOutcome()
	}

	// Persist.
	filename, err := p.persist(ctx, result, extracted, conversion, decoded.Encoding, tokens, started)
	if err != nil {
		return stageFailure(err, harvest.FailIO, "write")
	}

	outcome := harvest.SuccessOutcome(result.FinalURL, extracted.Title, tokens, bytes)
	outcome.Body = conversion.Markdown
	outcome.Links = conversion.Links
	outcome.LinksTruncated = conversion.LinksTruncated
	outcome.Filename = filename
	outcome.FetchedAt = started
	return outcome
}

func (p *Pool) persist(
	ctx context.Context,
	result harvest.FetchResult,
	extracted harvest.ExtractedContent,
	conversion harvest.Conversion,
	encoding string,
	tokens int,
	started time.Time,
) (string, error) {
	key := result.FinalURL
	if normalized, err := p.deps.Normalizer.Normalize(key); err == nil {
		key = normalized
	}
	filename, err := document.Filename(extracted.Title, key, p.deps.Hasher)
	if err != nil {
		return "", fmt.Errorf("build filename: %w", err)
	}
	content := document.Render(document.Meta{
		URL:         result.FinalURL,
		Title:       extracted.Title,
		FetchedAt:   started,
		Encoding:    encoding,
		TokenCount:  tokens,
		TokenScheme: p.deps.Tokens.Scheme(),
	}, conversion.Markdown)

	_, err = runStage(p.cfg.WriteTimeout, func() (string, error) {
		return p.deps.Writer.Write(ctx, filename, content)
	})
	if err != nil {
		return "", err
	}
	return filename, nil
}

// fetchWithRetry performs the fetch with one automatic retry for transient
// failures: network errors, timeouts, and 5xx responses.
func (p *Pool) fetchWithRetry(ctx context.Context, task harvest.Task, log *zap.Logger) (harvest.FetchResult, error) {
	req := harvest.FetchRequest{JobID: task.JobID, URL: task.URL}
	result, err := p.deps.Fetcher.Fetch(ctx, req)
	if err == nil {
		return result, nil
	}
	if !fetch.Transient(err) || p.deps.Token.Cancelled() {
		return harvest.FetchResult{}, err
	}
	log.Debug("retrying transient fetch failure", zap.Error(err))
	return p.deps.Fetcher.Fetch(ctx, req)
}

func (p *Pool) finish(task harvest.Task, outcome harvest.Outcome, started time.Time) {
	now := p.deps.Clock.Now()
	p.deps.Sink.Send(harvest.JobDone{JobID: task.JobID, Outcome: outcome, Now: now})

	evt := progress.Event{
		JobID:  task.JobID,
		TS:     now,
		Stage:  harvest.StageDone,
		URL:    task.URL,
		Tokens: outcome.Tokens,
		Bytes:  outcome.Bytes,
	}
	if !started.IsZero() {
		evt.Dur = now.Sub(started)
	}
	if outcome.Kind == harvest.OutcomeSuccess {
		evt.Kind = progress.KindJobDone
	} else {
		evt.Kind = progress.KindJobFailed
		evt.Failure = outcome.Failure
		evt.Note = outcome.Detail
	}
	p.emit(evt)
}

func (p *Pool) progressMsg(id harvest.JobID, stage harvest.Stage, bytes int64, tokens int, preview string) {
	p.deps.Sink.Send(harvest.JobProgress{JobID: id, Stage: stage, Bytes: bytes, Tokens: tokens, Preview: preview})
	p.emit(progress.Event{
		JobID:  id,
		TS:     p.deps.Clock.Now(),
		Kind:   progress.KindJobStage,
		Stage:  stage,
		Bytes:  max(bytes, 0),
		Tokens: int(max(int64(tokens), 0)),
	})
}

func (p *Pool) emitFetchDone(task harvest.Task, result harvest.FetchResult) {
	host := ""
	if u, err := url.Parse(result.FinalURL); err == nil {
		host = u.Host
	}
	p.emit(progress.Event{
		JobID:       task.JobID,
		TS:          p.deps.Clock.Now(),
		Kind:        progress.KindFetchDone,
		Stage:       harvest.StageDownloading,
		Host:        host,
		URL:         result.FinalURL,
		Bytes:       int64(len(result.Body)),
		StatusClass: progress.ClassifyStatus(result.StatusCode),
		Dur:         result.Duration,
	})
}

func (p *Pool) emit(evt progress.Event) {
	if p.deps.Progress != nil {
		p.deps.Progress.Emit(evt)
	}
}

// runStage executes fn under a watchdog. On expiry the stage is abandoned
// (its goroutine finishes in the background) and errStageTimeout is
// returned.
func runStage[T any](timeout time.Duration, fn func() (T, error)) (T, error) {
	type stageResult struct {
		value T
		err   error
	}
	done := make(chan stageResult, 1)
	go func() {
		value, err := fn()
		done <- stageResult{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res.value, res.err
	case <-timer.C:
		var zero T
		return zero, errStageTimeout
	}
}

func fetchOutcome(err error) harvest.Outcome {
	var fe *fetch.Error
	if errors.As(err, &fe) {
		if fe.Kind == harvest.FailCancelled {
			return harvest.CancelledOutcome()
		}
		return harvest.FailedOutcome(fe.Kind, fe.Detail)
	}
	return harvest.FailedOutcome(harvest.FailOther, err.Error())
}

func stageFailure(err error, kind harvest.FailureKind, stage string) harvest.Outcome {
	if errors.Is(err, errStageTimeout) {
		return harvest.FailedOutcome(harvest.FailProcessingTimeout, stage+" stage exceeded its budget")
	}
	return harvest.FailedOutcome(kind, fmt.Sprintf("%s: %v", stage, err))
}
