package scenarios

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/apismoke/packages/core/config"
	"github.com/abdul-hamid-achik/apismoke/packages/core/runner"
	apihttp "github.com/abdul-hamid-achik/apismoke/packages/http"
	"github.com/abdul-hamid-achik/apismoke/packages/mock"
)

func fastBurst() Option {
	return WithBurst(BurstOptions{Requests: 5, Interval: time.Millisecond, Timeout: time.Second})
}

func run(t *testing.T, fake *mock.Server, rc *runner.Config, mutate func(*config.Config)) *runner.RunResult {
	t.Helper()
	server := httptest.NewServer(fake.Handler())
	t.Cleanup(server.Close)

	cfg := config.DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.BackoffFactor = config.FloatPtr(0.001)
	if mutate != nil {
		mutate(cfg)
	}
	s := runner.NewSession(cfg, nil)
	t.Cleanup(s.Close)

	return runner.NewRunner(s, rc).Run(context.Background(), All(fastBurst()))
}

func byName(result *runner.RunResult, name string) *runner.ScenarioResult {
	for _, r := range result.Results {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func TestAll(t *testing.T) {
	all := All()
	require.Len(t, all, 10)

	seen := map[string]bool{}
	for _, sc := range all {
		assert.NotEmpty(t, sc.Name)
		assert.NotEmpty(t, sc.Tags, sc.Name)
		assert.NotNil(t, sc.Run, sc.Name)
		assert.False(t, seen[sc.Name], "duplicate scenario %q", sc.Name)
		seen[sc.Name] = true
	}
	assert.Equal(t, "health list users", Names()[0])
	assert.Equal(t, "soft rate limit burst", Names()[9])
}

func TestScenarios_PassAgainstHealthyTarget(t *testing.T) {
	result := run(t, mock.NewServer(), nil, nil)

	for _, r := range result.Results {
		assert.Equal(t, runner.Passed, r.Outcome, "%s: %v", r.Name, r.Errors)
	}
	assert.Equal(t, 10, result.Passed)
	assert.True(t, result.Success())
}

func TestScenarios_BlockedTargetSkipsWithOneRequest(t *testing.T) {
	fake := mock.NewServer(mock.WithFault(mock.Fault{Status: 403}))
	result := run(t, fake, nil, nil)

	assert.Equal(t, 10, result.Skipped)
	assert.Equal(t, 1, fake.Requests())
	assert.Contains(t, result.Results[0].Reason, "blocked/unstable (HTTP 403).")
}

func TestScenarios_BlockedTargetStrictXFails(t *testing.T) {
	fake := mock.NewServer(mock.WithFault(mock.Fault{Status: 429}))
	result := run(t, fake, nil, func(c *config.Config) { c.Strict = config.BoolPtr(true) })

	assert.Equal(t, 10, result.XFailed)
	assert.True(t, result.Success())
	assert.Equal(t, 1, fake.Requests())
}

func TestScenarios_RetryAbsorbsTransientErrors(t *testing.T) {
	// probe request succeeds, then the first scenario sees three 502s
	fake := mock.NewServer()
	server := httptest.NewServer(fake.Handler())
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.BackoffFactor = config.FloatPtr(0.001)
	s := runner.NewSession(cfg, nil)
	defer s.Close()

	fake.AddFault(mock.Fault{Status: 502, Count: 3})
	result := runner.NewRunner(s, &runner.Config{NoProbe: true, NameFilter: "health list users"}).
		Run(context.Background(), All())

	res := byName(result, "health list users")
	require.NotNil(t, res)
	assert.Equal(t, runner.Passed, res.Outcome, "%v", res.Errors)
	require.Len(t, res.Exchanges, 1)
	assert.Equal(t, 4, res.Exchanges[0].Attempts)
}

func TestScenarios_RetryExhaustionFails(t *testing.T) {
	fake := mock.NewServer()
	server := httptest.NewServer(fake.Handler())
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.BackoffFactor = config.FloatPtr(0.001)
	s := runner.NewSession(cfg, nil)
	defer s.Close()

	fake.AddFault(mock.Fault{Status: 500, Count: 4})
	result := runner.NewRunner(s, &runner.Config{NoProbe: true, NameFilter: "get user schema"}).
		Run(context.Background(), All())

	res := byName(result, "get user schema")
	require.NotNil(t, res)
	assert.Equal(t, runner.Failed, res.Outcome)
	assert.Equal(t, 500, res.Exchanges[0].StatusCode)
	assert.Equal(t, 4, fake.Requests())
}

func TestScenarios_BurstReportsAllStatuses(t *testing.T) {
	fake := mock.NewServer(mock.WithRateLimit(0.001, 3))
	server := httptest.NewServer(fake.Handler())
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.BaseURL = server.URL
	s := runner.NewSession(cfg, nil)
	defer s.Close()

	result := runner.NewRunner(s, &runner.Config{NoProbe: true, NameFilter: "soft rate limit burst"}).
		Run(context.Background(), All(fastBurst()))

	res := byName(result, "soft rate limit burst")
	require.NotNil(t, res)
	assert.Equal(t, runner.Failed, res.Outcome)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, strings.Join(res.Errors, "\n"), "Hit rate limit unexpectedly: [200 200 200 429 429]")
	assert.Len(t, res.Exchanges, 5)
}

func TestScenarios_BurstWaitsAfterEachResponse(t *testing.T) {
	const latency = 60 * time.Millisecond
	const interval = 100 * time.Millisecond

	var (
		mu     sync.Mutex
		starts []time.Time
		ends   []time.Time
	)
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()

		time.Sleep(latency)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"page":1,"data":[]}`))

		mu.Lock()
		ends = append(ends, time.Now())
		mu.Unlock()
	})
	server := httptest.NewServer(slow)
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.BaseURL = server.URL
	s := runner.NewSession(cfg, nil)
	defer s.Close()

	burst := WithBurst(BurstOptions{Requests: 3, Interval: interval, Timeout: time.Second})
	result := runner.NewRunner(s, &runner.Config{NoProbe: true, NameFilter: "soft rate limit burst"}).
		Run(context.Background(), All(burst))
	assert.Equal(t, runner.Passed, byName(result, "soft rate limit burst").Outcome)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 3)
	require.Len(t, ends, 3)
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(ends[i-1])
		assert.GreaterOrEqual(t, gap, interval, "gap before request %d", i+1)
	}
}

func TestScenarios_BurstStopsWhenCancelled(t *testing.T) {
	server := httptest.NewServer(mock.NewServer().Handler())
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.BaseURL = server.URL
	s := runner.NewSession(cfg, nil)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	burst := WithBurst(BurstOptions{Requests: 5, Interval: time.Hour, Timeout: time.Second})
	start := time.Now()
	result := runner.NewRunner(s, &runner.Config{NoProbe: true, NameFilter: "soft rate limit burst"}).
		Run(ctx, All(burst))

	assert.Less(t, time.Since(start), 5*time.Second)
	res := byName(result, "soft rate limit burst")
	require.NotNil(t, res)
	assert.NotEqual(t, runner.Passed, res.Outcome)
}

func TestScenarios_TagFilter(t *testing.T) {
	result := run(t, mock.NewServer(), &runner.Config{TagsFilter: []string{TagAuth}}, nil)

	assert.Equal(t, 4, result.Passed)
	assert.Equal(t, 6, result.Skipped)
	assert.Equal(t, runner.ReasonFilteredOut, byName(result, "create user").Reason)
}

func TestScenarios_Parallel(t *testing.T) {
	result := run(t, mock.NewServer(), &runner.Config{Parallel: true, Concurrency: 4}, nil)
	assert.Equal(t, 10, result.Passed)
}

func TestScenarios_ContractViolationNamesField(t *testing.T) {
	// a target whose login answers 200 without a token
	fake := mock.NewServer()
	fake.AddFault(mock.Fault{Status: 200, Count: 1})
	server := httptest.NewServer(fake.Handler())
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.BaseURL = server.URL
	s := runner.NewSession(cfg, nil)
	defer s.Close()

	result := runner.NewRunner(s, &runner.Config{NoProbe: true, NameFilter: "login success"}).
		Run(context.Background(), All())

	res := byName(result, "login success")
	require.NotNil(t, res)
	assert.Equal(t, runner.Failed, res.Outcome)
	assert.Contains(t, strings.Join(res.Errors, "\n"), "token")
}

func TestCheckContract(t *testing.T) {
	ok := &apihttp.Response{StatusCode: 200, Body: []byte(`{"token":"QpwL5tke4Pnpja7X4"}`)}
	assert.NoError(t, checkContract(http.MethodPost, "/api/login", ok))

	rejected := &apihttp.Response{StatusCode: 400, Body: []byte(`{"error":"Missing password"}`)}
	assert.NoError(t, checkContract(http.MethodPost, "/api/login", rejected))

	wrongEnvelope := &apihttp.Response{StatusCode: 400, Body: []byte(`{"token":"x"}`)}
	err := checkContract(http.MethodPost, "/api/register", wrongEnvelope)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register error contract")

	unknown := &apihttp.Response{StatusCode: 200, Body: []byte(`{}`)}
	assert.EqualError(t, checkContract(http.MethodDelete, "/api/users/2", unknown),
		"no contract for DELETE /api/users/2 (HTTP 200)")
}
