package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FormatVersion identifies the layout of the JSON metrics document
const FormatVersion = "2"

// JSONExporter writes one JSON document per run: who was tested, what the
// probe decided, the aggregate and every exchange.
type JSONExporter struct {
	mu        sync.Mutex
	writer    io.Writer
	filePath  string
	pretty    bool
	exchanges []*ExchangeMetric
	created   time.Time
}

// JSONOption is a functional option for JSONExporter
type JSONOption func(*JSONExporter)

// WithJSONWriter sets the output writer for JSON metrics
func WithJSONWriter(w io.Writer) JSONOption {
	return func(j *JSONExporter) {
		j.writer = w
	}
}

// WithJSONFile writes the document to path, creating parent directories
func WithJSONFile(path string) JSONOption {
	return func(j *JSONExporter) {
		j.filePath = path
	}
}

// WithJSONPretty toggles indentation
func WithJSONPretty(pretty bool) JSONOption {
	return func(j *JSONExporter) {
		j.pretty = pretty
	}
}

// NewJSONExporter creates a new JSON metrics exporter
func NewJSONExporter(opts ...JSONOption) *JSONExporter {
	j := &JSONExporter{
		pretty:  true,
		created: time.Now(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// JSONMetricsOutput is the complete JSON output structure
type JSONMetricsOutput struct {
	Metadata  JSONMetadata      `json:"metadata"`
	Summary   *AggregateMetrics `json:"summary"`
	Exchanges []*ExchangeMetric `json:"exchanges"`
}

// JSONMetadata identifies the run a metrics document belongs to
type JSONMetadata struct {
	RunID         string `json:"run_id,omitempty"`
	Target        string `json:"target,omitempty"`
	ProbeDecision string `json:"probe_decision,omitempty"`
	ProbeReason   string `json:"probe_reason,omitempty"`
	StartedAt     string `json:"started_at"`
	GeneratedAt   string `json:"generated_at"`
	Duration      string `json:"duration"`
	Version       string `json:"version"`
}

func (j *JSONExporter) metadata(agg *AggregateMetrics, now time.Time) JSONMetadata {
	started := agg.StartedAt
	if started.IsZero() {
		started = j.created
	}
	md := JSONMetadata{
		RunID:       agg.RunID,
		Target:      agg.Target,
		StartedAt:   started.UTC().Format(time.RFC3339),
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Duration:    now.Sub(started).Round(time.Millisecond).String(),
		Version:     FormatVersion,
	}
	// a run with --no-probe has no probe summary
	if agg.Probe != nil {
		md.ProbeDecision = agg.Probe.Decision
		md.ProbeReason = agg.Probe.Reason
	}
	return md
}

// Export writes the document for the run
func (j *JSONExporter) Export(agg *AggregateMetrics) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	doc := JSONMetricsOutput{
		Metadata:  j.metadata(agg, time.Now()),
		Summary:   agg,
		Exchanges: j.exchanges,
	}

	var (
		data []byte
		err  error
	)
	if j.pretty {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	data = append(data, '\n')

	if j.filePath != "" {
		if dir := filepath.Dir(j.filePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create metrics directory: %w", err)
			}
		}
		if err := os.WriteFile(j.filePath, data, 0644); err != nil {
			return fmt.Errorf("write metrics file: %w", err)
		}
	}
	if j.writer != nil {
		if _, err := j.writer.Write(data); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// ExportSingle buffers one exchange for the final document
func (j *JSONExporter) ExportSingle(metric *ExchangeMetric) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.exchanges = append(j.exchanges, metric)
	return nil
}

// Close is a no-op; the document is written by Export
func (j *JSONExporter) Close() error {
	return nil
}
