// Package progress defines the observability event stream emitted by the
// pipeline workers. It is a lossy side channel: dropping an event never
// affects session state, which flows through the reducer's message queue.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// Kind denotes the type of milestone represented by an Event.
type Kind string

// Supported progress event kinds.
const (
	KindJobStart  Kind = "JOB_START"
	KindJobStage  Kind = "JOB_STAGE"
	KindJobDone   Kind = "JOB_DONE"
	KindJobFailed Kind = "JOB_FAILED"
	KindFetchDone Kind = "FETCH_DONE"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of one job's pipeline run.
type Event struct {
	// JobID identifies the job within the session.
	JobID harvest.JobID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Kind denotes which milestone occurred.
	Kind Kind
	// Stage is the pipeline stage the job was in when the event fired.
	Stage harvest.Stage
	// Host optionally scopes fetch events to a host label.
	Host string
	// URL is the page URL; it should not contain credentials.
	URL string
	// Bytes carries the downloaded size for fetch completions.
	Bytes int64
	// Tokens carries the token count once tokenization has run.
	Tokens int
	// StatusClass groups HTTP response codes (2xx, 3xx, etc).
	StatusClass StatusClass
	// Failure carries the failure kind for JOB_FAILED events.
	Failure harvest.FailureKind
	// Dur captures execution latency for fetches and job completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == 0 {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindJobStart, KindJobStage, KindJobDone:
	case KindJobFailed:
		if e.Failure == "" {
			return errors.New("job failure requires failure kind")
		}
	case KindFetchDone:
		if e.Host == "" {
			return errors.New("fetch done requires host")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
