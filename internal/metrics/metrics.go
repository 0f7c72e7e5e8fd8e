package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Summary is the crawl statistics exported on exit
type Summary struct {
	RunID              string    `json:"run_id"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	SubjectsClaimed    int       `json:"subjects_claimed"`
	CollectionsClaimed int       `json:"collections_claimed"`
	TerminalSubjects   int       `json:"terminal_subjects"`
	EdgesRecorded      int       `json:"edges_recorded"`
	Requests           int       `json:"requests"`
	RequestsFailed     int       `json:"requests_failed"`
	Throttled          int       `json:"throttled"`
	Retries            int       `json:"retries"`
	TotalRequestMs     int64     `json:"total_request_ms"`
	AvgRequestMs       int64     `json:"avg_request_ms"`
	TerminationReason  string    `json:"termination_reason"`
}

// Tracker holds and manages crawl metrics. A nil *Tracker is valid and
// records nothing, so components can be built without one.
type Tracker struct {
	mu   sync.Mutex
	data Summary

	registry *prometheus.Registry
	claimed  *prometheus.CounterVec
	terminal prometheus.Counter
	edges    prometheus.Counter
	requests *prometheus.CounterVec
	latency  prometheus.Histogram
}

// NewTracker creates a new metrics tracker with its own Prometheus registry
func NewTracker() *Tracker {
	t := &Tracker{
		data: Summary{
			RunID:     uuid.NewString(),
			StartTime: time.Now(),
		},
		registry: prometheus.NewRegistry(),
		claimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devrank",
			Name:      "claimed_total",
			Help:      "Identifiers claimed by the visited registry, by namespace.",
		}, []string{"namespace"}),
		terminal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "devrank",
			Name:      "terminal_subjects_total",
			Help:      "Subjects deferred to the fan-out phase.",
		}),
		edges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "devrank",
			Name:      "edges_recorded_total",
			Help:      "Edge upserts sent to the graph store.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devrank",
			Name:      "api_requests_total",
			Help:      "API requests by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "devrank",
			Name:      "api_request_duration_seconds",
			Help:      "API round trip latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	t.registry.MustRegister(t.claimed, t.terminal, t.edges, t.requests, t.latency)
	return t
}

// IncrementSubjectsClaimed counts a won subject claim
func (t *Tracker) IncrementSubjectsClaimed() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.SubjectsClaimed++
	t.claimed.WithLabelValues("subject").Inc()
}

// IncrementCollectionsClaimed counts a won collection claim
func (t *Tracker) IncrementCollectionsClaimed() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.CollectionsClaimed++
	t.claimed.WithLabelValues("collection").Inc()
}

// IncrementTerminal counts a subject added to the terminal set
func (t *Tracker) IncrementTerminal() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.TerminalSubjects++
	t.terminal.Inc()
}

// IncrementEdgesRecorded increments the edges counter
func (t *Tracker) IncrementEdgesRecorded() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.EdgesRecorded++
	t.edges.Inc()
}

// RecordRequest records one API attempt, its duration and its outcome label
func (t *Tracker) RecordRequest(outcome string, duration time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Requests++
	t.data.TotalRequestMs += duration.Milliseconds()
	switch outcome {
	case "success":
	case "throttled":
		t.data.Throttled++
	default:
		t.data.RequestsFailed++
	}
	t.requests.WithLabelValues(outcome).Inc()
	t.latency.Observe(duration.Seconds())
}

// IncrementRetries counts a transient retry
func (t *Tracker) IncrementRetries() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Retries++
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data
	if snapshot.Requests > 0 {
		snapshot.AvgRequestMs = snapshot.TotalRequestMs / int64(snapshot.Requests)
	}
	return snapshot
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	t.mu.Unlock()

	jsonData, err := json.MarshalIndent(t.GetSnapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress renders current metrics for periodic console updates
func (t *Tracker) LogProgress() string {
	s := t.GetSnapshot()
	return fmt.Sprintf("Subjects: %d claimed, %d terminal | Collections: %d | Edges: %d | Requests: %d (%d failed, %d throttled, %d retries)",
		s.SubjectsClaimed,
		s.TerminalSubjects,
		s.CollectionsClaimed,
		s.EdgesRecorded,
		s.Requests,
		s.RequestsFailed,
		s.Throttled,
		s.Retries,
	)
}

// Handler exposes the tracker's counters in the Prometheus text format
func (t *Tracker) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}
