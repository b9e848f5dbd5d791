package harvest

import "time"

// Msg is an intent message consumed by the session reducer. The reducer is
// pure, so any timestamp a transition needs travels inside the message.
type Msg interface {
	isMsg()
}

// UrlsSubmitted carries raw pasted/submitted text, one URL candidate per line.
type UrlsSubmitted struct {
	Text string
	Now  time.Time
}

// StopRequested asks the session to stop intake and drain in-flight work.
type StopRequested struct {
	Now time.Time
}

// Tick is the fixed-cadence render pulse. It never changes session state; it
// only clears the dirty flag used to throttle presentation updates.
type Tick struct {
	Now time.Time
}

// JobProgress reports a stage transition or byte/token growth for one job.
// Bytes and Tokens are deltas-to-date; negative values mean "not reported".
type JobProgress struct {
	JobID  JobID
	Stage  Stage
	Bytes  int64
	Tokens int
	// Preview carries the capped converted content once conversion has run.
	// Empty means no change.
	Preview string
}

// JobDone reports the terminal outcome of one job.
type JobDone struct {
	JobID   JobID
	Outcome Outcome
	Now     time.Time
}

// RestoreCompletedJobs seeds the session with completed jobs from a persisted
// snapshot. Only valid while Idle.
type RestoreCompletedJobs struct {
	Jobs []CompletedJobSnapshot
}

func (UrlsSubmitted) isMsg()        {}
func (StopRequested) isMsg()        {}
func (Tick) isMsg()                 {}
func (JobProgress) isMsg()          {}
func (JobDone) isMsg()              {}
func (RestoreCompletedJobs) isMsg() {}

// StopPolicy names how in-flight work is treated after a stop request.
type StopPolicy string

// Stop policies. PolicyDrain is the default: queued jobs are cancelled
// immediately, in-flight jobs finish their current stage and stop at the next
// stage boundary.
const (
	PolicyDrain     StopPolicy = "drain"
	PolicyImmediate StopPolicy = "immediate"
)

// Effect is a side-effect request emitted by the session reducer and executed
// by the effect runner. The reducer itself performs no I/O.
type Effect interface {
	isEffect()
}

// StartSession marks the beginning of a working session.
type StartSession struct{}

// EnqueueJob submits one accepted job to the intake queue.
type EnqueueJob struct {
	JobID JobID
	URL   string
}

// CancelSession raises the session-wide cancellation signal.
type CancelSession struct {
	Policy StopPolicy
}

// WriteExportFile persists the deterministic concatenated export document.
type WriteExportFile struct {
	Path    string
	Content string
}

// WriteManifest persists the export manifest.
type WriteManifest struct {
	Path    string
	Content string
}

func (StartSession) isEffect()    {}
func (EnqueueJob) isEffect()      {}
func (CancelSession) isEffect()   {}
func (WriteExportFile) isEffect() {}
func (WriteManifest) isEffect()   {}
