package session

import (
	"time"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// JobView is a render-safe copy of one job's observable fields.
type JobView struct {
	ID       harvest.JobID       `json:"id"`
	URL      string              `json:"url"`
	FinalURL string              `json:"final_url,omitempty"`
	Stage    harvest.Stage       `json:"stage"`
	Outcome  harvest.OutcomeKind `json:"outcome"`
	Failure  harvest.FailureKind `json:"failure,omitempty"`
	Detail   string              `json:"detail,omitempty"`
	Tokens   int                 `json:"tokens"`
	Bytes    int64               `json:"bytes"`
	Preview  string              `json:"preview,omitempty"`
}

// ViewSnapshot is an immutable copy of the session for rendering and the API.
// It is built inside the reducer loop and published through an atomic value,
// so readers never touch live session state.
type ViewSnapshot struct {
	State     State     `json:"state"`
	Counters  Counters  `json:"counters"`
	Jobs      []JobView `json:"jobs"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

// View builds a snapshot in submission order.
func (s *Session) View() ViewSnapshot {
	jobs := make([]JobView, 0, len(s.order))
	for _, id := range s.order {
		job := s.jobs[id]
		jobs = append(jobs, JobView{
			ID:       job.ID,
			URL:      job.URL,
			FinalURL: job.FinalURL,
			Stage:    job.Stage,
			Outcome:  job.Outcome.Kind,
			Failure:  job.Outcome.Failure,
			Detail:   job.Outcome.Detail,
			Tokens:   job.Tokens,
			Bytes:    job.Bytes,
			Preview:  job.Preview,
		})
	}
	return ViewSnapshot{
		State:     s.state,
		Counters:  s.counters,
		Jobs:      jobs,
		StartedAt: s.startedAt,
	}
}
