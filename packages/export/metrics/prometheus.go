package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	apihttp "github.com/abdul-hamid-achik/apismoke/packages/http"
)

const namespace = "apismoke"

// PrometheusExporter keeps run metrics in a private registry. They can be
// written as a node_exporter textfile, served over HTTP, or both.
type PrometheusExporter struct {
	registry *prometheus.Registry

	scenarios *prometheus.CounterVec
	requests  *prometheus.CounterVec
	attempts  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	p95       prometheus.Gauge
	lastRun   prometheus.Gauge

	textfile string
	addr     string
	server   *http.Server
	listener net.Listener
	logger   *logrus.Entry
}

// PrometheusOption is a functional option for PrometheusExporter
type PrometheusOption func(*PrometheusExporter)

// WithPrometheusTextfile writes the registry to path on Export
func WithPrometheusTextfile(path string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.textfile = path
	}
}

// WithPrometheusHTTP serves /metrics on addr until Close
func WithPrometheusHTTP(addr string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.addr = addr
	}
}

// WithPrometheusLogger sets the logger that reports HTTP endpoint errors
func WithPrometheusLogger(logger *logrus.Entry) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.logger = logger
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter
func NewPrometheusExporter(opts ...PrometheusOption) (*PrometheusExporter, error) {
	p := &PrometheusExporter{
		registry: prometheus.NewRegistry(),
		scenarios: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenarios_total",
			Help:      "Scenarios by outcome.",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Logical requests by method and final status code.",
		}, []string{"method", "status"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Requests sent on the wire, retries included.",
		}, []string{"method", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Latency of logical requests, retries and backoff included.",
			Buckets: []float64{
				0.01, 0.025, 0.05,
				0.1, 0.25, 0.5,
				1, 2.5, 5, 10, 30,
			},
		}, []string{"method"}),
		p95: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "request_duration_p95_seconds",
			Help:      "95th percentile request latency of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run was exported.",
		}),
	}

	p.registry.MustRegister(p.scenarios, p.requests, p.attempts, p.latency, p.p95, p.lastRun)

	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		p.logger = logrus.NewEntry(l)
	}

	if p.addr != "" {
		if err := p.startHTTPServer(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Registry exposes the underlying registry
func (p *PrometheusExporter) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format
func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Addr is the address the HTTP endpoint listens on, if any
func (p *PrometheusExporter) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

func (p *PrometheusExporter) startHTTPServer() error {
	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", p.addr, err)
	}
	p.listener = ln
	p.logger.WithField("addr", ln.Addr().String()).Info("serving prometheus metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	p.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.WithError(err).Warn("prometheus endpoint stopped")
		}
	}()
	return nil
}

// RecordAttempt counts one wire attempt
func (p *PrometheusExporter) RecordAttempt(a apihttp.Attempt) {
	result := "ok"
	switch {
	case a.Err != nil:
		result = "error"
	case a.Retrying:
		result = "retry"
	}
	p.attempts.WithLabelValues(a.Method, result).Inc()
}

// ExportSingle records one exchange
func (p *PrometheusExporter) ExportSingle(m *ExchangeMetric) error {
	status := strconv.Itoa(m.StatusCode)
	if m.Error != "" {
		status = "error"
	}
	p.requests.WithLabelValues(m.Method, status).Inc()
	p.latency.WithLabelValues(m.Method).Observe(m.DurationMs / 1000)
	return nil
}

// Export records run-level values and writes the textfile if configured
func (p *PrometheusExporter) Export(metrics *AggregateMetrics) error {
	for outcome, n := range metrics.Outcomes {
		p.scenarios.WithLabelValues(outcome).Add(float64(n))
	}
	p.p95.Set(metrics.P95DurationMs / 1000)
	p.lastRun.SetToCurrentTime()

	if p.textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(p.textfile, p.registry); err != nil {
		return fmt.Errorf("write prometheus textfile: %w", err)
	}
	return nil
}

// Close shuts down the HTTP endpoint
func (p *PrometheusExporter) Close() error {
	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.server.Shutdown(ctx)
}
