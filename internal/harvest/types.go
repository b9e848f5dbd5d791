// Package harvest defines core types shared across subsystems.
package harvest

import "time"

// JobID identifies a job within a session. IDs are assigned monotonically by
// the session and are never reused, even across a restart of a finished
// session.
type JobID uint64

// Stage represents one ordered step of a job's pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageQueued      Stage = "queued"
	StageDownloading Stage = "downloading"
	StageSanitizing  Stage = "sanitizing"
	StageConverting  Stage = "converting"
	StageTokenizing  Stage = "tokenizing"
	StageWriting     Stage = "writing"
	StageDone        Stage = "done"
)

// FailureKind is the closed error taxonomy used for reporting and for
// retry-eligibility decisions.
type FailureKind string

// Failure kinds. Only transient network failures (network, timeout, 5xx
// statuses) are eligible for the single automatic fetch retry.
const (
	FailInvalidURL        FailureKind = "invalid_url"
	FailNetwork           FailureKind = "network"
	FailHTTPStatus        FailureKind = "http_status"
	FailTimeout           FailureKind = "timeout"
	FailRedirectLimit     FailureKind = "redirect_limit"
	FailTooLarge          FailureKind = "too_large"
	FailUnsupportedType   FailureKind = "unsupported_content_type"
	FailParse             FailureKind = "parse_error"
	FailIO                FailureKind = "io_error"
	FailProcessingTimeout FailureKind = "processing_timeout"
	FailCancelled         FailureKind = "cancelled"
	FailOther             FailureKind = "other"
)

// LinkKind classifies an extracted outbound link.
type LinkKind string

// Supported link kinds.
const (
	LinkHyperlink LinkKind = "hyperlink"
	LinkImage     LinkKind = "image"
	LinkEmail     LinkKind = "email"
)

// Link is one outbound reference extracted during conversion, in encounter
// order, deduplicated by normalized URL.
type Link struct {
	URL  string   `json:"url"`
	Text string   `json:"text,omitempty"`
	Kind LinkKind `json:"kind"`
}

// OutcomeKind distinguishes the terminal result of a job.
type OutcomeKind string

// Outcome kinds. OutcomeNone means the job is still in flight.
const (
	OutcomeNone      OutcomeKind = "none"
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is the terminal result of a job. Once set on a Job, the Job is
// immutable.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// Success fields.
	FinalURL       string    `json:"final_url,omitempty"`
	Title          string    `json:"title,omitempty"`
	Tokens         int       `json:"tokens,omitempty"`
	Bytes          int64     `json:"bytes,omitempty"`
	Body           string    `json:"-"`
	Filename       string    `json:"filename,omitempty"`
	FetchedAt      time.Time `json:"fetched_at,omitzero"`
	Links          []Link    `json:"links,omitempty"`
	LinksTruncated bool      `json:"links_truncated,omitempty"`

	// Failure fields.
	Failure FailureKind `json:"failure,omitempty"`
	Detail  string      `json:"detail,omitempty"`
}

// Terminal reports whether the outcome represents a finished job.
func (o Outcome) Terminal() bool {
	return o.Kind != OutcomeNone && o.Kind != ""
}

// SuccessOutcome builds a success outcome.
func SuccessOutcome(finalURL, title string, tokens int, bytes int64) Outcome {
	return Outcome{
		Kind:     OutcomeSuccess,
		FinalURL: finalURL,
		Title:    title,
		Tokens:   tokens,
		Bytes:    bytes,
	}
}

// FailedOutcome builds a failure outcome with the given kind and detail.
func FailedOutcome(kind FailureKind, detail string) Outcome {
	return Outcome{Kind: OutcomeFailed, Failure: kind, Detail: detail}
}

// CancelledOutcome builds a cancellation outcome.
func CancelledOutcome() Outcome {
	return Outcome{Kind: OutcomeCancelled, Failure: FailCancelled}
}

// Job tracks one URL's progress through the pipeline. Jobs are created on
// intake, mutated only by the session reducer, and retained (never deleted)
// for export and snapshots.
type Job struct {
	ID            JobID     `json:"id"`
	URL           string    `json:"url"`
	NormalizedURL string    `json:"normalized_url"`
	FinalURL      string    `json:"final_url,omitempty"`
	Stage         Stage     `json:"stage"`
	Outcome       Outcome   `json:"outcome"`
	Bytes         int64     `json:"bytes,omitempty"`
	Tokens        int       `json:"tokens,omitempty"`
	Preview       string    `json:"preview,omitempty"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// Terminal reports whether the job has reached a terminal outcome.
func (j Job) Terminal() bool {
	return j.Outcome.Terminal()
}

// Task is a unit of queued work handed to the pipeline.
type Task struct {
	JobID JobID
	URL   string
}

// CompletedJobSnapshot is the restartable subset persisted for fully
// completed jobs. The schema is additive: optional fields may be absent in
// snapshots written by older versions and must still decode.
type CompletedJobSnapshot struct {
	URL        string   `json:"url"`
	FinalURL   string   `json:"final_url,omitempty"`
	Title      string   `json:"title,omitempty"`
	Tokens     int      `json:"tokens"`
	Bytes      int64    `json:"bytes"`
	Links      []string `json:"links,omitempty"`
	Filename   string   `json:"filename,omitempty"`
	FetchedUTC string   `json:"fetched_utc,omitempty"`
}
