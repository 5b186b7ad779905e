// Package metrics provides metrics export functionality for apismoke runs.
package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/abdul-hamid-achik/apismoke/packages/core/runner"
	apihttp "github.com/abdul-hamid-achik/apismoke/packages/http"
)

// ExchangeMetric is one logical request made by a scenario
type ExchangeMetric struct {
	Scenario   string    `json:"scenario"`
	Outcome    string    `json:"outcome"`
	Method     string    `json:"method"`
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	Attempts   int       `json:"attempts"`
	DurationMs float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AggregateMetrics summarizes a run
type AggregateMetrics struct {
	RunID           string                        `json:"run_id,omitempty"`
	Target          string                        `json:"target,omitempty"`
	StartedAt       time.Time                     `json:"-"`
	Probe           *ProbeSummary                 `json:"probe,omitempty"`
	TotalRequests   int64                         `json:"total_requests"`
	TotalAttempts   int64                         `json:"total_attempts"`
	Retries         int64                         `json:"retries"`
	TransportErrors int64                         `json:"transport_errors"`
	MinDurationMs   float64                       `json:"min_duration_ms"`
	MaxDurationMs   float64                       `json:"max_duration_ms"`
	AvgDurationMs   float64                       `json:"avg_duration_ms"`
	P50DurationMs   float64                       `json:"p50_duration_ms"`
	P95DurationMs   float64                       `json:"p95_duration_ms"`
	P99DurationMs   float64                       `json:"p99_duration_ms"`
	StatusCodes     map[int]int64                 `json:"status_codes"`
	Outcomes        map[string]int64              `json:"outcomes"`
	ByScenario      map[string]*ScenarioAggregate `json:"by_scenario"`
}

// ProbeSummary is the reachability check that gated the run
type ProbeSummary struct {
	Decision   string  `json:"decision"`
	Status     string  `json:"status"`
	StatusCode int     `json:"status_code,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	DurationMs float64 `json:"duration_ms"`
}

// ScenarioAggregate represents aggregated metrics for a single scenario
type ScenarioAggregate struct {
	Name          string  `json:"name"`
	Outcome       string  `json:"outcome"`
	Requests      int64   `json:"requests"`
	Attempts      int64   `json:"attempts"`
	DurationMs    float64 `json:"duration_ms"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// Exporter is the interface for metrics exporters
type Exporter interface {
	// Export exports metrics to the target destination
	Export(metrics *AggregateMetrics) error

	// ExportSingle exports a single exchange
	ExportSingle(metric *ExchangeMetric) error

	// Close closes the exporter and flushes any buffered data
	Close() error
}

// AttemptRecorder is implemented by exporters that want every wire attempt
type AttemptRecorder interface {
	RecordAttempt(a apihttp.Attempt)
}

// Collector collects metrics from a run. It is safe for concurrent use so
// it can observe a client shared by parallel scenarios.
type Collector struct {
	mu        sync.Mutex
	metrics   []*ExchangeMetric
	aggregate *AggregateMetrics
	histogram *hdrhistogram.Histogram
	exporters []Exporter
}

// NewCollector creates a new metrics collector
func NewCollector(exporters ...Exporter) *Collector {
	return &Collector{
		metrics:   make([]*ExchangeMetric, 0),
		exporters: exporters,
		// microseconds, 1us to 10min
		histogram: hdrhistogram.New(1, 600_000_000, 3),
		aggregate: &AggregateMetrics{
			StatusCodes: make(map[int]int64),
			Outcomes:    make(map[string]int64),
			ByScenario:  make(map[string]*ScenarioAggregate),
		},
	}
}

// ObserveAttempt is an apihttp.AttemptObserver
func (c *Collector) ObserveAttempt(a apihttp.Attempt) {
	c.mu.Lock()
	c.aggregate.TotalAttempts++
	if a.Retrying {
		c.aggregate.Retries++
	}
	c.mu.Unlock()

	for _, exp := range c.exporters {
		if r, ok := exp.(AttemptRecorder); ok {
			r.RecordAttempt(a)
		}
	}
}

// Record records one exchange
func (c *Collector) Record(m *ExchangeMetric) {
	c.mu.Lock()
	c.metrics = append(c.metrics, m)
	c.updateAggregate(m)
	c.mu.Unlock()

	for _, exp := range c.exporters {
		_ = exp.ExportSingle(m)
	}
}

// RecordRun records every exchange and scenario outcome of a finished run
func (c *Collector) RecordRun(result *runner.RunResult) {
	c.mu.Lock()
	c.aggregate.RunID = result.RunID
	c.aggregate.Target = result.Target
	c.aggregate.StartedAt = result.StartedAt
	if pr := result.Probe; pr != nil {
		c.aggregate.Probe = &ProbeSummary{
			Decision:   string(pr.Decision),
			Status:     string(pr.Status),
			StatusCode: pr.StatusCode,
			Reason:     pr.Reason,
			DurationMs: float64(pr.Duration.Microseconds()) / 1000,
		}
	}
	c.mu.Unlock()

	for _, r := range result.Results {
		if r.Reason == runner.ReasonFilteredOut {
			continue
		}
		c.mu.Lock()
		c.aggregate.Outcomes[string(r.Outcome)]++
		c.aggregate.ByScenario[r.Name] = &ScenarioAggregate{
			Name:       r.Name,
			Outcome:    string(r.Outcome),
			DurationMs: float64(r.Duration.Microseconds()) / 1000,
		}
		c.mu.Unlock()

		end := result.StartedAt.Add(r.Duration)
		for _, ex := range r.Exchanges {
			c.Record(&ExchangeMetric{
				Scenario:   r.Name,
				Outcome:    string(r.Outcome),
				Method:     ex.Method,
				URL:        ex.URL,
				StatusCode: ex.StatusCode,
				Attempts:   ex.Attempts,
				DurationMs: float64(ex.Duration.Microseconds()) / 1000,
				Error:      ex.Error,
				Timestamp:  end,
			})
		}
	}
}

func (c *Collector) updateAggregate(m *ExchangeMetric) {
	agg := c.aggregate
	agg.TotalRequests++
	if m.Error != "" {
		agg.TransportErrors++
	} else {
		agg.StatusCodes[m.StatusCode]++
	}

	if agg.TotalRequests == 1 {
		agg.MinDurationMs = m.DurationMs
		agg.MaxDurationMs = m.DurationMs
	} else {
		if m.DurationMs < agg.MinDurationMs {
			agg.MinDurationMs = m.DurationMs
		}
		if m.DurationMs > agg.MaxDurationMs {
			agg.MaxDurationMs = m.DurationMs
		}
	}

	us := int64(m.DurationMs * 1000)
	if us < 1 {
		us = 1
	}
	_ = c.histogram.RecordValue(us)
	agg.AvgDurationMs = c.histogram.Mean() / 1000
	agg.P50DurationMs = float64(c.histogram.ValueAtQuantile(50)) / 1000
	agg.P95DurationMs = float64(c.histogram.ValueAtQuantile(95)) / 1000
	agg.P99DurationMs = float64(c.histogram.ValueAtQuantile(99)) / 1000

	sa, ok := agg.ByScenario[m.Scenario]
	if !ok {
		sa = &ScenarioAggregate{Name: m.Scenario, Outcome: m.Outcome}
		agg.ByScenario[m.Scenario] = sa
	}
	sa.Requests++
	sa.Attempts += int64(m.Attempts)
	sa.AvgDurationMs = (sa.AvgDurationMs*float64(sa.Requests-1) + m.DurationMs) / float64(sa.Requests)
}

// GetAggregate returns the aggregated metrics
func (c *Collector) GetAggregate() *AggregateMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aggregate
}

// Flush exports all aggregated metrics
func (c *Collector) Flush() error {
	agg := c.GetAggregate()
	for _, exp := range c.exporters {
		if err := exp.Export(agg); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all exporters
func (c *Collector) Close() error {
	for _, exp := range c.exporters {
		if err := exp.Close(); err != nil {
			return err
		}
	}
	return nil
}
