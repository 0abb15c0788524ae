package report

import (
	"sort"
	"sync"
	"time"

	"github.com/entrhq/uiharness/pkg/session"
)

// Status is the outcome of one scenario.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ScenarioResult records one scenario run.
type ScenarioResult struct {
	Name      string        `json:"name"`
	WorkerID  string        `json:"worker_id"`
	Status    Status        `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`

	// ErrorKind is the session error kind when the failure came from the
	// session layer.
	ErrorKind session.Kind `json:"error_kind,omitempty"`

	Screenshot string `json:"screenshot,omitempty"`
	Snapshot   string `json:"snapshot,omitempty"`
}

// Recorder collects scenario results and session lifecycle events for a run.
// It is safe for concurrent use by every worker.
type Recorder struct {
	mu      sync.Mutex
	runID   string
	start   time.Time
	now     func() time.Time
	results []ScenarioResult
	events  []session.Event
	workers []WorkerStat
}

// NewRecorder creates a recorder for runID. The run starts now.
func NewRecorder(runID string) *Recorder {
	return newRecorder(runID, time.Now)
}

func newRecorder(runID string, now func() time.Time) *Recorder {
	return &Recorder{runID: runID, start: now(), now: now}
}

// Notify implements session.Notifier.
func (r *Recorder) Notify(e session.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Record adds a scenario result.
func (r *Recorder) Record(result ScenarioResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

// SetWorkerStats replaces the per-worker session statistics.
func (r *Recorder) SetWorkerStats(stats []WorkerStat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers = append([]WorkerStat(nil), stats...)
}

// Results returns the recorded results in the order they finished.
func (r *Recorder) Results() []ScenarioResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ScenarioResult(nil), r.results...)
}

// Events returns the recorded lifecycle events.
func (r *Recorder) Events() []session.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Event(nil), r.events...)
}

// Summary builds a snapshot of the run so far. Results are ordered by name.
func (r *Recorder) Summary() *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := r.now()
	s := &Summary{
		RunID:     r.runID,
		StartTime: r.start,
		EndTime:   end,
		Duration:  end.Sub(r.start),
		Results:     append([]ScenarioResult(nil), r.results...),
		Events:      append([]session.Event(nil), r.events...),
		WorkerStats: append([]WorkerStat(nil), r.workers...),
	}
	sort.SliceStable(s.Results, func(i, j int) bool {
		return s.Results[i].Name < s.Results[j].Name
	})

	workers := make(map[string]bool)
	for _, res := range s.Results {
		s.Counts.Add(res.Status)
		if res.WorkerID != "" {
			workers[res.WorkerID] = true
		}
	}
	for _, e := range s.Events {
		s.Sessions.Add(e.Kind)
	}
	for _, st := range s.WorkerStats {
		workers[st.WorkerID] = true
	}
	for w := range workers {
		s.Workers = append(s.Workers, w)
	}
	sort.Strings(s.Workers)

	s.Status = StatusPassed
	if s.Counts.Failed > 0 {
		s.Status = StatusFailed
	}
	return s
}

// Counts tallies scenario outcomes.
type Counts struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Add counts one scenario outcome.
func (c *Counts) Add(status Status) {
	c.Total++
	switch status {
	case StatusPassed:
		c.Passed++
	case StatusFailed:
		c.Failed++
	case StatusSkipped:
		c.Skipped++
	}
}

// SessionCounts tallies lifecycle events across all workers.
type SessionCounts struct {
	Established         int `json:"established"`
	Reused              int `json:"reused"`
	Invalidated         int `json:"invalidated"`
	LoginFailures       int `json:"login_failures"`
	HealthCheckFailures int `json:"health_check_failures"`
}

// Add counts one lifecycle event. Kinds without a counter are ignored.
func (c *SessionCounts) Add(kind session.EventKind) {
	switch kind {
	case session.EventEstablished:
		c.Established++
	case session.EventReused:
		c.Reused++
	case session.EventInvalidated:
		c.Invalidated++
	case session.EventLoginFailed:
		c.LoginFailures++
	case session.EventHealthCheckFailed:
		c.HealthCheckFailures++
	}
}

// WorkerStat is one worker's session usage over the run.
type WorkerStat struct {
	WorkerID string `json:"worker_id"`
	Logins   int    `json:"logins"`

	// IdleReleases counts how often the worker's session was closed for
	// being idle.
	IdleReleases int `json:"idle_releases,omitempty"`
}

// Summary is the complete record of one run.
type Summary struct {
	RunID       string           `json:"run_id"`
	Status      Status           `json:"status"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Duration    time.Duration    `json:"duration"`
	Counts      Counts           `json:"counts"`
	Sessions    SessionCounts    `json:"sessions"`
	Workers     []string         `json:"workers"`
	WorkerStats []WorkerStat     `json:"worker_stats,omitempty"`
	Results     []ScenarioResult `json:"results"`
	Events      []session.Event  `json:"events"`
}

// Failed returns the failed results.
func (s *Summary) Failed() []ScenarioResult {
	var failed []ScenarioResult
	for _, r := range s.Results {
		if r.Status == StatusFailed {
			failed = append(failed, r)
		}
	}
	return failed
}
