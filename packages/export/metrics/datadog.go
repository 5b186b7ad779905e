package metrics

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	apihttp "github.com/abdul-hamid-achik/apismoke/packages/http"
)

// DataDogExporter pushes run metrics to the DataDog series API. Exchanges
// are buffered and sent together with the summary in a single request.
type DataDogExporter struct {
	apiKey   string
	site     string // e.g., "datadoghq.com", "datadoghq.eu"
	endpoint string
	tags     []string
	prefix   string
	timeout  time.Duration
	client   *apihttp.Client

	mu     sync.Mutex
	series []datadogMetric
}

// DataDogOption is a functional option for DataDogExporter
type DataDogOption func(*DataDogExporter)

// WithDataDogAPIKey sets the DataDog API key
func WithDataDogAPIKey(apiKey string) DataDogOption {
	return func(d *DataDogExporter) {
		d.apiKey = apiKey
	}
}

// WithDataDogSite sets the DataDog site (e.g., "datadoghq.com", "datadoghq.eu")
func WithDataDogSite(site string) DataDogOption {
	return func(d *DataDogExporter) {
		d.site = site
	}
}

// WithDataDogEndpoint overrides the API base URL derived from the site
func WithDataDogEndpoint(baseURL string) DataDogOption {
	return func(d *DataDogExporter) {
		d.endpoint = baseURL
	}
}

// WithDataDogTags sets additional tags for all metrics
func WithDataDogTags(tags []string) DataDogOption {
	return func(d *DataDogExporter) {
		d.tags = tags
	}
}

// WithDataDogPrefix sets a prefix for metric names
func WithDataDogPrefix(prefix string) DataDogOption {
	return func(d *DataDogExporter) {
		d.prefix = prefix
	}
}

// NewDataDogExporter creates a new DataDog metrics exporter
func NewDataDogExporter(opts ...DataDogOption) *DataDogExporter {
	d := &DataDogExporter{
		site:    "datadoghq.com",
		prefix:  "apismoke",
		timeout: 10 * time.Second,
		tags:    make([]string, 0),
	}

	for _, opt := range opts {
		opt(d)
	}

	// Try to get API key from environment if not set
	if d.apiKey == "" {
		d.apiKey = os.Getenv("DD_API_KEY")
	}
	if d.endpoint == "" {
		d.endpoint = fmt.Sprintf("https://api.%s", d.site)
	}

	d.client = apihttp.NewClient(
		apihttp.WithBaseURL(d.endpoint),
		apihttp.WithTimeout(d.timeout),
		apihttp.WithRequestIDs(false),
		apihttp.WithDefaultHeaders(map[string]string{
			"User-Agent": "apismoke-metrics",
			"Connection": "keep-alive",
		}),
	)
	return d
}

// datadogMetric represents a metric in DataDog format
type datadogMetric struct {
	Metric string   `json:"metric"`
	Type   string   `json:"type"`
	Points [][]any  `json:"points"`
	Tags   []string `json:"tags,omitempty"`
}

// datadogPayload is the payload sent to DataDog
type datadogPayload struct {
	Series []datadogMetric `json:"series"`
}

func (d *DataDogExporter) point(name, kind string, ts time.Time, value float64, tags ...string) datadogMetric {
	return datadogMetric{
		Metric: d.prefix + "." + name,
		Type:   kind,
		Points: [][]any{{float64(ts.Unix()), value}},
		Tags:   append(append([]string{}, tags...), d.tags...),
	}
}

// ExportSingle buffers one exchange
func (d *DataDogExporter) ExportSingle(m *ExchangeMetric) error {
	status := fmt.Sprintf("status:%d", m.StatusCode)
	if m.Error != "" {
		status = "status:error"
	}
	tags := []string{
		"scenario:" + m.Scenario,
		"method:" + m.Method,
		status,
		"outcome:" + m.Outcome,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.series = append(d.series,
		d.point("request.duration", "gauge", m.Timestamp, m.DurationMs, tags...),
		d.point("request.attempts", "count", m.Timestamp, float64(m.Attempts), tags...),
	)
	return nil
}

// Export sends the buffered exchanges and the run summary
func (d *DataDogExporter) Export(metrics *AggregateMetrics) error {
	if d.apiKey == "" {
		return fmt.Errorf("DataDog API key not configured")
	}

	now := time.Now()
	var runTags []string
	if metrics.Target != "" {
		runTags = append(runTags, "target:"+metrics.Target)
	}

	d.mu.Lock()
	series := append([]datadogMetric{}, d.series...)
	d.mu.Unlock()

	series = append(series,
		d.point("requests.total", "count", now, float64(metrics.TotalRequests), runTags...),
		d.point("attempts.total", "count", now, float64(metrics.TotalAttempts), runTags...),
		d.point("retries.total", "count", now, float64(metrics.Retries), runTags...),
		d.point("duration.avg", "gauge", now, metrics.AvgDurationMs, runTags...),
		d.point("duration.p95", "gauge", now, metrics.P95DurationMs, runTags...),
	)

	outcomes := make([]string, 0, len(metrics.Outcomes))
	for o := range metrics.Outcomes {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		tags := append([]string{"outcome:" + o}, runTags...)
		series = append(series, d.point("scenarios", "count", now, float64(metrics.Outcomes[o]), tags...))
	}

	return d.send(series)
}

func (d *DataDogExporter) send(series []datadogMetric) error {
	req := apihttp.NewRequest(http.MethodPost, "/api/v1/series").
		SetHeader("DD-API-KEY", d.apiKey)
	if err := req.SetJSONBody(datadogPayload{Series: series}); err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 4*d.timeout)
	defer cancel()
	resp, err := d.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("send metrics: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("DataDog API returned status %d: %s", resp.StatusCode, resp.BodyString())
	}

	d.mu.Lock()
	d.series = nil
	d.mu.Unlock()
	return nil
}

// Close releases the exporter's connections
func (d *DataDogExporter) Close() error {
	d.client.Close()
	return nil
}
