package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/harvester/internal/harvest"
	"github.com/JakeFAU/harvester/internal/progress"
)

// PrometheusSink exports pipeline progress metrics. It owns all collectors
// for jobs started/completed/running plus per-host fetch counters.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec
	jobTokens     prometheus.Counter

	fetchRequests *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_jobs_started_total",
			Help: "Total jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_jobs_completed_total",
			Help: "Total jobs completed partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_jobs_running",
			Help: "Current number of running jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_job_runtime_seconds",
			Help:    "Wall time per completed job.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"result"}),
		jobTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_tokens_total",
			Help: "Total tokens produced by successful jobs.",
		}),
		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_fetch_requests_total",
			Help: "Fetch completions partitioned by host and status class.",
		}, []string{"host", "status_class"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_fetch_bytes_total",
			Help: "Bytes downloaded per host.",
		}, []string{"host"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by host and status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"host", "status_class"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.jobTokens,
		s.fetchRequests,
		s.fetchBytes,
		s.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Kind {
	case progress.KindJobStart, progress.KindJobDone, progress.KindJobFailed:
		s.handleJobEvent(evt)
	case progress.KindFetchDone:
		s.handleFetchEvent(evt)
	}
}

func (s *PrometheusSink) handleJobEvent(evt progress.Event) {
	switch evt.Kind {
	case progress.KindJobStart:
		s.jobsStarted.Inc()
		if s.tracker.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case progress.KindJobDone:
		s.jobsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
		if evt.Tokens > 0 {
			s.jobTokens.Add(float64(evt.Tokens))
		}
	case progress.KindJobFailed:
		result := "error"
		if evt.Failure == harvest.FailCancelled {
			result = "cancelled"
		}
		s.jobsCompleted.WithLabelValues(result).Inc()
		s.observeRuntime(evt, result)
	}
	if evt.Kind != progress.KindJobStart && s.tracker.complete(evt.JobID) {
		s.jobsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleFetchEvent(evt progress.Event) {
	host := evt.Host
	if host == "" {
		host = "unknown"
	}
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.fetchRequests.WithLabelValues(host, statusClass).Inc()
	if evt.Bytes > 0 {
		s.fetchBytes.WithLabelValues(host).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(host, statusClass).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[harvest.JobID]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[harvest.JobID]struct{})}
}

func (t *jobTracker) start(id harvest.JobID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id harvest.JobID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
