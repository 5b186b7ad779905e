package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/apismoke/packages/core/runner"
	apihttp "github.com/abdul-hamid-achik/apismoke/packages/http"
	"github.com/abdul-hamid-achik/apismoke/packages/probe"
)

func sampleRun() *runner.RunResult {
	return &runner.RunResult{
		RunID:     "run-1",
		Target:    "https://reqres.in",
		StartedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Results: []*runner.ScenarioResult{
			{
				Name:     "health list users",
				Outcome:  runner.Passed,
				Duration: 300 * time.Millisecond,
				Exchanges: []runner.Exchange{
					{Method: "GET", URL: "https://reqres.in/api/users?page=2", StatusCode: 200, Attempts: 3, Duration: 250 * time.Millisecond},
				},
			},
			{
				Name:     "create user",
				Outcome:  runner.Failed,
				Duration: 100 * time.Millisecond,
				Exchanges: []runner.Exchange{
					{Method: "POST", URL: "https://reqres.in/api/users", StatusCode: 500, Attempts: 4, Duration: 80 * time.Millisecond},
				},
			},
			{
				Name:     "get user schema",
				Outcome:  runner.Failed,
				Duration: 50 * time.Millisecond,
				Exchanges: []runner.Exchange{
					{Method: "GET", URL: "https://reqres.in/api/users/2", Attempts: 4, Duration: 40 * time.Millisecond, Error: "connection refused"},
				},
			},
			{Name: "register success", Outcome: runner.Skipped, Reason: runner.ReasonFilteredOut},
			{Name: "login success", Outcome: runner.XFailed, Reason: "flaky"},
		},
	}
}

func TestCollector_RecordRun(t *testing.T) {
	c := NewCollector()
	c.RecordRun(sampleRun())
	agg := c.GetAggregate()

	assert.Equal(t, "run-1", agg.RunID)
	assert.Equal(t, int64(3), agg.TotalRequests)
	assert.Equal(t, int64(1), agg.TransportErrors)
	assert.Equal(t, map[int]int64{200: 1, 500: 1}, agg.StatusCodes)
	assert.Equal(t, map[string]int64{"passed": 1, "failed": 2, "xfailed": 1}, agg.Outcomes)
	assert.InDelta(t, 40.0, agg.MinDurationMs, 0.001)
	assert.InDelta(t, 250.0, agg.MaxDurationMs, 0.001)
	assert.InDelta(t, 250.0, agg.P99DurationMs, 1)
	assert.InDelta(t, 80.0, agg.P50DurationMs, 1)

	require.Contains(t, agg.ByScenario, "health list users")
	assert.Equal(t, int64(3), agg.ByScenario["health list users"].Attempts)
	assert.NotContains(t, agg.ByScenario, "register success")
	assert.Contains(t, agg.ByScenario, "login success")
}

func TestCollector_ObserveAttempt(t *testing.T) {
	prom, err := NewPrometheusExporter()
	require.NoError(t, err)
	c := NewCollector(prom)

	c.ObserveAttempt(apihttp.Attempt{Method: "GET", Number: 1, StatusCode: 503, Retrying: true})
	c.ObserveAttempt(apihttp.Attempt{Method: "GET", Number: 2, StatusCode: 200})
	c.ObserveAttempt(apihttp.Attempt{Method: "GET", Number: 1, Err: io.EOF})

	agg := c.GetAggregate()
	assert.Equal(t, int64(3), agg.TotalAttempts)
	assert.Equal(t, int64(1), agg.Retries)

	families, err := prom.Registry().Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "apismoke_attempts_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "result" {
					counts[lp.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"retry": 1, "ok": 1, "error": 1}, counts)
}

func TestCollector_ObservesLiveClient(t *testing.T) {
	handler := httphelpers.SequentialHandler(
		httphelpers.HandlerWithStatus(502),
		httphelpers.HandlerWithStatus(200),
	)
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		c := NewCollector()
		client := apihttp.NewClient(
			apihttp.WithBaseURL(server.URL),
			apihttp.WithBackoffFactor(0.001),
			apihttp.WithObserver(c.ObserveAttempt),
		)
		defer client.Close()

		resp, err := client.Get(testContext(t), "/api/users", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		agg := c.GetAggregate()
		assert.Equal(t, int64(2), agg.TotalAttempts)
		assert.Equal(t, int64(1), agg.Retries)
	})
}

func TestPrometheusExporter_Textfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apismoke.prom")
	prom, err := NewPrometheusExporter(WithPrometheusTextfile(path))
	require.NoError(t, err)

	c := NewCollector(prom)
	c.RecordRun(sampleRun())
	require.NoError(t, c.Flush())
	require.NoError(t, c.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `apismoke_scenarios_total{outcome="failed"} 2`)
	assert.Contains(t, text, `apismoke_requests_total{method="GET",status="200"} 1`)
	assert.Contains(t, text, `apismoke_requests_total{method="GET",status="error"} 1`)
	assert.Contains(t, text, `apismoke_request_duration_seconds_count{method="POST"} 1`)
	assert.Contains(t, text, "apismoke_last_run_timestamp_seconds")
}

func TestPrometheusExporter_HTTP(t *testing.T) {
	prom, err := NewPrometheusExporter(WithPrometheusHTTP("127.0.0.1:0"))
	require.NoError(t, err)
	defer prom.Close()

	c := NewCollector(prom)
	c.RecordRun(sampleRun())
	require.NoError(t, c.Flush())

	resp, err := http.Get("http://" + prom.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), `apismoke_scenarios_total{outcome="passed"} 1`)
}

func TestPrometheusExporter_HTTPLogsAddress(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	prom, err := NewPrometheusExporter(
		WithPrometheusHTTP("127.0.0.1:0"),
		WithPrometheusLogger(logrus.NewEntry(logger)),
	)
	require.NoError(t, err)
	defer prom.Close()

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "serving prometheus metrics", entry.Message)
	assert.Equal(t, prom.Addr(), entry.Data["addr"])
}

func TestPrometheusExporter_ListenError(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	_, err = NewPrometheusExporter(WithPrometheusHTTP(taken.Addr().String()))
	assert.ErrorContains(t, err, "listen on "+taken.Addr().String())
}

func TestJSONExporter(t *testing.T) {
	var buf bytes.Buffer
	c := NewCollector(NewJSONExporter(WithJSONWriter(&buf)))
	c.RecordRun(sampleRun())
	require.NoError(t, c.Flush())

	var out JSONMetricsOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, FormatVersion, out.Metadata.Version)
	assert.Equal(t, "run-1", out.Metadata.RunID)
	assert.Equal(t, "https://reqres.in", out.Metadata.Target)
	assert.Equal(t, "2024-05-01T10:00:00Z", out.Metadata.StartedAt)
	assert.Empty(t, out.Metadata.ProbeDecision)
	require.NotNil(t, out.Summary)
	assert.Equal(t, int64(3), out.Summary.TotalRequests)
	require.Len(t, out.Exchanges, 3)
	assert.Equal(t, "health list users", out.Exchanges[0].Scenario)
	assert.Equal(t, 3, out.Exchanges[0].Attempts)
}

func TestJSONExporter_ReachabilityDecision(t *testing.T) {
	run := sampleRun()
	run.Probe = &probe.Result{
		Target:     "https://reqres.in",
		Status:     probe.Blocked,
		StatusCode: 403,
		Decision:   probe.Skip,
		Reason:     "https://reqres.in blocked/unstable (HTTP 403).",
		Duration:   120 * time.Millisecond,
	}

	var buf bytes.Buffer
	c := NewCollector(NewJSONExporter(WithJSONWriter(&buf), WithJSONPretty(false)))
	c.RecordRun(run)
	require.NoError(t, c.Flush())

	var out JSONMetricsOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "skip", out.Metadata.ProbeDecision)
	assert.Equal(t, "https://reqres.in blocked/unstable (HTTP 403).", out.Metadata.ProbeReason)
	require.NotNil(t, out.Summary.Probe)
	assert.Equal(t, "blocked", out.Summary.Probe.Status)
	assert.Equal(t, 403, out.Summary.Probe.StatusCode)
	assert.InDelta(t, 120.0, out.Summary.Probe.DurationMs, 0.001)
}

func TestJSONExporter_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "metrics.json")
	c := NewCollector(NewJSONExporter(WithJSONFile(path)))
	c.RecordRun(sampleRun())
	require.NoError(t, c.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"p95_duration_ms"`)
}

func TestDataDogExporter(t *testing.T) {
	handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(http.StatusAccepted))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		dd := NewDataDogExporter(
			WithDataDogAPIKey("secret"),
			WithDataDogEndpoint(server.URL),
			WithDataDogTags([]string{"env:ci"}),
		)
		c := NewCollector(dd)
		c.RecordRun(sampleRun())
		require.NoError(t, c.Flush())
		require.NoError(t, c.Close())

		req := <-requests
		assert.Equal(t, "/api/v1/series", req.Request.URL.Path)
		assert.Equal(t, "secret", req.Request.Header.Get("DD-API-KEY"))
		assert.Equal(t, "application/json", req.Request.Header.Get("Content-Type"))

		var payload datadogPayload
		require.NoError(t, json.Unmarshal(req.Body, &payload))
		names := map[string]bool{}
		for _, s := range payload.Series {
			names[s.Metric] = true
			assert.Contains(t, s.Tags, "env:ci")
		}
		assert.True(t, names["apismoke.request.duration"])
		assert.True(t, names["apismoke.retries.total"])
		assert.True(t, names["apismoke.scenarios"])
	})
}

func TestDataDogExporter_Errors(t *testing.T) {
	t.Setenv("DD_API_KEY", "")
	err := NewDataDogExporter().Export(&AggregateMetrics{})
	assert.EqualError(t, err, "DataDog API key not configured")

	handler := httphelpers.HandlerWithResponse(http.StatusForbidden, nil, []byte(`{"errors":["Forbidden"]}`))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		dd := NewDataDogExporter(WithDataDogAPIKey("bad"), WithDataDogEndpoint(server.URL))
		err := dd.Export(&AggregateMetrics{})
		assert.ErrorContains(t, err, "DataDog API returned status 403")
	})
}

// testContext mirrors testing.T.Context (Go 1.24+): the returned context is
// cancelled when the test finishes.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
