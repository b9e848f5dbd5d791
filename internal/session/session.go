// Package session implements the pure session state machine. The reducer
// performs no I/O, reads no clocks, and uses no randomness: given a state and
// a message it returns an ordered list of effect requests for the runtime to
// execute.
package session

import (
	"time"

	"github.com/JakeFAU/harvester/internal/export"
	"github.com/JakeFAU/harvester/internal/harvest"
)

// State is the session lifecycle state.
type State string

// Session states. Transitions are monotonic
// (Idle → Running → Finishing → Finished), except for the optional
// Finished → Running restart path gated by Config.AllowRestart.
const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateFinishing State = "finishing"
	StateFinished  State = "finished"
)

// Config carries the knobs the reducer needs. All values are fixed for the
// lifetime of the session.
type Config struct {
	// AllowRestart controls whether a UrlsSubmitted message received while
	// Finished re-enters Running. Default false: finished sessions ignore
	// new intake exactly like Finishing ones.
	AllowRestart bool
	// MaxURLsPerSubmit bounds how many candidate lines a single submission
	// may contribute; extras are dropped and counted as skipped.
	MaxURLsPerSubmit int
	// ExportFilename and ManifestFilename are the output names used when the
	// session finishes and emits its export effects.
	ExportFilename   string
	ManifestFilename string
	// TokenScheme is recorded in the manifest so future counting changes are
	// detectable.
	TokenScheme string
	// Normalizer is the deduplication policy for submitted and exported URLs.
	Normalizer harvest.URLNormalizer
}

// Counters aggregates session-wide metrics exposed through the view snapshot.
type Counters struct {
	Submitted         int   `json:"submitted"`
	Accepted          int   `json:"accepted"`
	DuplicatesSkipped int   `json:"duplicates_skipped"`
	InvalidSkipped    int   `json:"invalid_skipped"`
	Succeeded         int   `json:"succeeded"`
	Failed            int   `json:"failed"`
	Cancelled         int   `json:"cancelled"`
	Restored          int   `json:"restored"`
	TotalTokens       int64 `json:"total_tokens"`
}

// Session owns all jobs for one run. It is exclusively owned by the reducer
// loop; no other component may mutate it.
type Session struct {
	cfg       Config
	state     State
	nextJobID harvest.JobID
	order     []harvest.JobID
	jobs      map[harvest.JobID]*harvest.Job
	seen      map[string]harvest.JobID
	counters  Counters
	dirty     bool
	startedAt time.Time
}

// New constructs an idle Session.
func New(cfg Config) *Session {
	if cfg.Normalizer == nil {
		cfg.Normalizer = harvest.DefaultNormalizer{}
	}
	if cfg.MaxURLsPerSubmit <= 0 {
		cfg.MaxURLsPerSubmit = 1000
	}
	if cfg.ExportFilename == "" {
		cfg.ExportFilename = "export.txt"
	}
	if cfg.ManifestFilename == "" {
		cfg.ManifestFilename = "manifest.json"
	}
	return &Session{
		cfg:       cfg,
		state:     StateIdle,
		nextJobID: 1,
		jobs:      make(map[harvest.JobID]*harvest.Job),
		seen:      make(map[string]harvest.JobID),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Dirty reports whether state changed since the last Tick.
func (s *Session) Dirty() bool {
	return s.dirty
}

// Update applies a message and returns the ordered effects it produced.
func (s *Session) Update(msg harvest.Msg) []harvest.Effect {
	switch m := msg.(type) {
	case harvest.UrlsSubmitted:
		return s.applySubmission(m)
	case harvest.StopRequested:
		return s.applyStop()
	case harvest.JobProgress:
		s.applyProgress(m)
		return nil
	case harvest.JobDone:
		return s.applyDone(m)
	case harvest.RestoreCompletedJobs:
		s.applyRestore(m)
		return nil
	case harvest.Tick:
		s.dirty = false
		return nil
	default:
		return nil
	}
}

func (s *Session) applySubmission(m harvest.UrlsSubmitted) []harvest.Effect {
	switch s.state {
	case StateFinishing:
		// Strict intake block: no state or job change at all.
		return nil
	case StateFinished:
		if !s.cfg.AllowRestart {
			return nil
		}
	case StateIdle, StateRunning:
	}

	lines := harvest.ParseSubmission(m.Text)
	if len(lines) == 0 {
		return nil
	}
	if len(lines) > s.cfg.MaxURLsPerSubmit {
		s.counters.InvalidSkipped += len(lines) - s.cfg.MaxURLsPerSubmit
		lines = lines[:s.cfg.MaxURLsPerSubmit]
	}
	s.counters.Submitted += len(lines)

	var enqueues []harvest.Effect
	for _, raw := range lines {
		normalized, err := s.cfg.Normalizer.Normalize(raw)
		if err != nil {
			s.counters.InvalidSkipped++
			continue
		}
		if _, dup := s.seen[normalized]; dup {
			s.counters.DuplicatesSkipped++
			continue
		}
		id := s.nextJobID
		s.nextJobID++
		job := &harvest.Job{
			ID:            id,
			URL:           raw,
			NormalizedURL: normalized,
			Stage:         harvest.StageQueued,
			Outcome:       harvest.Outcome{Kind: harvest.OutcomeNone},
			EnqueuedAt:    m.Now,
		}
		s.jobs[id] = job
		s.order = append(s.order, id)
		s.seen[normalized] = id
		s.counters.Accepted++
		enqueues = append(enqueues, harvest.EnqueueJob{JobID: id, URL: raw})
	}

	s.dirty = true
	if len(enqueues) == 0 {
		return nil
	}

	starting := s.state == StateIdle || s.state == StateFinished
	if starting {
		s.state = StateRunning
		s.startedAt = m.Now
		effects := make([]harvest.Effect, 0, len(enqueues)+1)
		effects = append(effects, harvest.StartSession{})
		return append(effects, enqueues...)
	}
	return enqueues
}

func (s *Session) applyStop() []harvest.Effect {
	if s.state != StateRunning {
		return nil
	}
	s.state = StateFinishing
	s.dirty = true
	effects := []harvest.Effect{harvest.CancelSession{Policy: harvest.PolicyDrain}}
	// Nothing in flight: finish immediately.
	if s.allTerminal() {
		effects = append(effects, s.finish()...)
	}
	return effects
}

func (s *Session) applyProgress(m harvest.JobProgress) {
	job, ok := s.jobs[m.JobID]
	if !ok || job.Terminal() {
		return
	}
	job.Stage = m.Stage
	if m.Bytes >= 0 {
		job.Bytes = m.Bytes
	}
	if m.Tokens >= 0 {
		job.Tokens = m.Tokens
	}
	if m.Preview != "" {
		job.Preview = m.Preview
	}
	s.dirty = true
}

func (s *Session) applyDone(m harvest.JobDone) []harvest.Effect {
	job, ok := s.jobs[m.JobID]
	if !ok || job.Terminal() {
		return nil
	}
	job.Outcome = m.Outcome
	job.Stage = harvest.StageDone
	if m.Outcome.FinalURL != "" {
		job.FinalURL = m.Outcome.FinalURL
	}
	switch m.Outcome.Kind {
	case harvest.OutcomeSuccess:
		s.counters.Succeeded++
		s.counters.TotalTokens += int64(m.Outcome.Tokens)
		job.Tokens = m.Outcome.Tokens
		job.Bytes = m.Outcome.Bytes
	case harvest.OutcomeFailed:
		s.counters.Failed++
	case harvest.OutcomeCancelled:
		s.counters.Cancelled++
	}
	s.dirty = true

	if s.state == StateFinishing && s.allTerminal() {
		return s.finish()
	}
	return nil
}

func (s *Session) applyRestore(m harvest.RestoreCompletedJobs) {
	if s.state != StateIdle || len(m.Jobs) == 0 {
		return
	}
	for _, snap := range m.Jobs {
		normalized, err := s.cfg.Normalizer.Normalize(snap.URL)
		if err != nil {
			continue
		}
		if _, dup := s.seen[normalized]; dup {
			continue
		}
		id := s.nextJobID
		s.nextJobID++
		links := make([]harvest.Link, 0, len(snap.Links))
		for _, l := range snap.Links {
			links = append(links, harvest.Link{URL: l, Kind: harvest.LinkHyperlink})
		}
		outcome := harvest.SuccessOutcome(snap.FinalURL, snap.Title, snap.Tokens, snap.Bytes)
		outcome.Filename = snap.Filename
		outcome.Links = links
		job := &harvest.Job{
			ID:            id,
			URL:           snap.URL,
			NormalizedURL: normalized,
			FinalURL:      snap.FinalURL,
			Stage:         harvest.StageDone,
			Outcome:       outcome,
			Tokens:        snap.Tokens,
			Bytes:         snap.Bytes,
		}
		s.jobs[id] = job
		s.order = append(s.order, id)
		s.seen[normalized] = id
		s.counters.Restored++
		s.counters.TotalTokens += int64(snap.Tokens)
	}
	s.dirty = true
}

// finish transitions to Finished and emits the export effects. Callers must
// have verified that all jobs are terminal.
func (s *Session) finish() []harvest.Effect {
	s.state = StateFinished
	s.dirty = true
	content, manifest := export.Build(s.jobsInOrder(), export.Options{
		TokenScheme: s.cfg.TokenScheme,
		Normalizer:  s.cfg.Normalizer,
	})
	return []harvest.Effect{
		harvest.WriteExportFile{Path: s.cfg.ExportFilename, Content: content},
		harvest.WriteManifest{Path: s.cfg.ManifestFilename, Content: manifest},
	}
}

func (s *Session) allTerminal() bool {
	for _, id := range s.order {
		if !s.jobs[id].Terminal() {
			return false
		}
	}
	return true
}

func (s *Session) jobsInOrder() []harvest.Job {
	out := make([]harvest.Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.jobs[id])
	}
	return out
}

// CompletedSnapshots returns the restartable subset: fully completed jobs
// only. Partially completed work is intentionally not persisted.
func (s *Session) CompletedSnapshots() []harvest.CompletedJobSnapshot {
	var out []harvest.CompletedJobSnapshot
	for _, job := range s.jobsInOrder() {
		if job.Outcome.Kind != harvest.OutcomeSuccess {
			continue
		}
		links := make([]string, 0, len(job.Outcome.Links))
		for _, l := range job.Outcome.Links {
			links = append(links, l.URL)
		}
		fetched := ""
		if !job.Outcome.FetchedAt.IsZero() {
			fetched = job.Outcome.FetchedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, harvest.CompletedJobSnapshot{
			URL:        job.URL,
			FinalURL:   job.FinalURL,
			Title:      job.Outcome.Title,
			Tokens:     job.Outcome.Tokens,
			Bytes:      job.Outcome.Bytes,
			Links:      links,
			Filename:   job.Outcome.Filename,
			FetchedUTC: fetched,
		})
	}
	return out
}
