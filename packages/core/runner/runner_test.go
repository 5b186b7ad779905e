package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/apismoke/packages/core/config"
	apihttp "github.com/abdul-hamid-achik/apismoke/packages/http"
)

func testSession(t *testing.T, baseURL string) *Session {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.BackoffFactor = config.FloatPtr(0.001)
	s := NewSession(cfg, nil)
	t.Cleanup(s.Close)
	return s
}

func okServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(httphelpers.HandlerWithResponse(200,
		map[string][]string{"Content-Type": {"application/json"}},
		[]byte(`{"page":1,"data":[{"id":1}]}`)))
	t.Cleanup(server.Close)
	return server
}

func passing(name string, tags ...string) Scenario {
	return Scenario{Name: name, Tags: tags, Run: func(t *T, s *Session) {}}
}

func failing(name string) Scenario {
	return Scenario{Name: name, Run: func(t *T, s *Session) {
		assert.Equal(t, 1, 2)
	}}
}

func TestNewSession(t *testing.T) {
	s := NewSession(nil, nil)
	defer s.Close()

	assert.NotEmpty(t, s.RunID)
	assert.Equal(t, config.DefaultBaseURL, s.Target())
	assert.NotNil(t, s.Client)
	assert.NotNil(t, s.Logger)
	assert.Equal(t, 3, s.Client.RetryPolicy().Retries)
}

func TestSession_ProbeOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Strict = config.BoolPtr(true)
	cfg.ProbeTimeout = config.FloatPtr(2)
	s := NewSession(cfg, nil)

	opts := s.ProbeOptions()
	assert.True(t, opts.Strict)
	assert.True(t, opts.SkipOnBlock)
	assert.Equal(t, "2s", opts.Timeout.String())
	assert.Equal(t, "1", opts.Query["page"])
}

func TestRunner_AllPass(t *testing.T) {
	server := okServer(t)
	s := testSession(t, server.URL)

	scenario := Scenario{
		Name: "list users",
		Tags: []string{"smoke"},
		Run: func(t *T, s *Session) {
			resp := s.Get(t, "/api/users", map[string]string{"page": "2"})
			require.Equal(t, 200, resp.StatusCode)
			assert.True(t, resp.Get("data").IsArray())
		},
	}

	result := NewRunner(s, nil).Run(context.Background(), []Scenario{scenario})

	require.NotNil(t, result.Probe)
	assert.True(t, result.Probe.Proceeding())
	assert.Equal(t, 1, result.Passed)
	assert.True(t, result.Success())
	assert.Equal(t, s.RunID, result.RunID)

	res := result.Results[0]
	assert.Equal(t, Passed, res.Outcome)
	require.Len(t, res.Exchanges, 1)
	assert.Equal(t, "GET", res.Exchanges[0].Method)
	assert.Equal(t, 200, res.Exchanges[0].StatusCode)
	assert.Equal(t, 1, res.Attempts())
}

func TestRunner_FailureIsLocal(t *testing.T) {
	server := okServer(t)
	s := testSession(t, server.URL)

	result := NewRunner(s, nil).Run(context.Background(), []Scenario{
		failing("broken"),
		passing("fine"),
		{Name: "panics", Run: func(t *T, s *Session) { panic("boom") }},
		{Name: "requires", Run: func(t *T, s *Session) {
			require.True(t, false, "stop here")
			t.Logf("unreachable")
		}},
	})

	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 3, result.Failed)
	assert.False(t, result.Success())
	assert.Len(t, result.Failures(), 3)

	assert.Equal(t, Failed, result.Results[0].Outcome)
	assert.NotEmpty(t, result.Results[0].Errors)
	assert.Equal(t, Passed, result.Results[1].Outcome)
	assert.Contains(t, result.Results[2].Errors[0], "unexpected panic in scenario: boom")
	assert.Contains(t, result.Results[3].Errors[0], "stop here")
	assert.Empty(t, result.Results[3].Logs)
}

func TestRunner_SkipAndXFailInsideScenario(t *testing.T) {
	server := okServer(t)
	s := testSession(t, server.URL)

	result := NewRunner(s, nil).Run(context.Background(), []Scenario{
		{Name: "skips", Run: func(t *T, s *Session) { t.Skip("not today") }},
		{Name: "xfails", Run: func(t *T, s *Session) { t.XFail("known bug") }},
	})

	assert.Equal(t, Skipped, result.Results[0].Outcome)
	assert.Equal(t, "not today", result.Results[0].Reason)
	assert.Equal(t, XFailed, result.Results[1].Outcome)
	assert.Equal(t, "known bug", result.Results[1].Reason)
	assert.True(t, result.Success())
}

func TestRunner_ProbeBlockedSkipsEverything(t *testing.T) {
	var scenarioCalls int32
	handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(403))
	server := httptest.NewServer(handler)
	defer server.Close()
	s := testSession(t, server.URL)

	sc := Scenario{Name: "never", Run: func(t *T, s *Session) {
		atomic.AddInt32(&scenarioCalls, 1)
	}}
	result := NewRunner(s, nil).Run(context.Background(), []Scenario{sc, sc})

	assert.Equal(t, 2, result.Skipped)
	assert.True(t, result.Success())
	assert.Equal(t, int32(0), atomic.LoadInt32(&scenarioCalls))
	assert.Equal(t, server.URL+" blocked/unstable (HTTP 403).", result.Results[0].Reason)
	assert.Len(t, requests, 1)
}

func TestRunner_ProbeBlockedStrictXFails(t *testing.T) {
	server := httptest.NewServer(httphelpers.HandlerWithStatus(503))
	defer server.Close()
	s := testSession(t, server.URL)
	s.Config.Strict = config.BoolPtr(true)

	result := NewRunner(s, nil).Run(context.Background(), []Scenario{passing("a"), passing("b")})

	assert.Equal(t, 2, result.XFailed)
	assert.Equal(t, 0, result.Passed)
	assert.True(t, result.Success())
}

func TestRunner_ProbeUnreachable(t *testing.T) {
	server := httptest.NewServer(httphelpers.HandlerWithStatus(200))
	target := server.URL
	server.Close()
	s := testSession(t, target)

	result := NewRunner(s, nil).Run(context.Background(), []Scenario{passing("a")})

	assert.Equal(t, Skipped, result.Results[0].Outcome)
	assert.Contains(t, result.Results[0].Reason, "Cannot reach "+target)
}

func TestRunner_NoProbe(t *testing.T) {
	handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(200))
	server := httptest.NewServer(handler)
	defer server.Close()
	s := testSession(t, server.URL)

	result := NewRunner(s, &Config{NoProbe: true}).Run(context.Background(), []Scenario{passing("a")})

	assert.Nil(t, result.Probe)
	assert.Equal(t, 1, result.Passed)
	assert.Len(t, requests, 0)
}

func TestRunner_TransportErrorFailsScenario(t *testing.T) {
	server := httptest.NewServer(httphelpers.HandlerWithStatus(200))
	target := server.URL
	server.Close()
	cfg := config.DefaultConfig()
	cfg.BaseURL = target
	cfg.Retries = config.IntPtr(1)
	cfg.BackoffFactor = config.FloatPtr(0.001)
	s := NewSession(cfg, nil)

	sc := Scenario{Name: "call", Run: func(t *T, s *Session) {
		s.Get(t, "/api/users/2", nil)
		t.Logf("not reached")
	}}
	result := NewRunner(s, &Config{NoProbe: true}).Run(context.Background(), []Scenario{sc})

	res := result.Results[0]
	assert.Equal(t, Failed, res.Outcome)
	require.Len(t, res.Exchanges, 1)
	assert.Equal(t, 2, res.Exchanges[0].Attempts)
	assert.NotEmpty(t, res.Exchanges[0].Error)
	assert.Empty(t, res.Logs)
}

func TestRunner_NameFilter(t *testing.T) {
	server := okServer(t)
	s := testSession(t, server.URL)

	result := NewRunner(s, &Config{NameFilter: "login*"}).Run(context.Background(), []Scenario{
		passing("login success"),
		passing("login missing password"),
		passing("create user"),
	})

	assert.Equal(t, 2, result.Passed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, ReasonFilteredOut, result.Results[2].Reason)
}

func TestRunner_TagsFilter(t *testing.T) {
	server := okServer(t)
	s := testSession(t, server.URL)

	result := NewRunner(s, &Config{TagsFilter: []string{"auth"}}).Run(context.Background(), []Scenario{
		passing("login", "auth"),
		passing("list", "smoke"),
		passing("register", "auth", "negative"),
	})

	assert.Equal(t, 2, result.Passed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, Skipped, result.Results[1].Outcome)
}

func TestRunner_AllFilteredSkipsProbe(t *testing.T) {
	handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(200))
	server := httptest.NewServer(handler)
	defer server.Close()
	s := testSession(t, server.URL)

	result := NewRunner(s, &Config{NameFilter: "nothing"}).Run(context.Background(), []Scenario{passing("a")})

	assert.Nil(t, result.Probe)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, requests, 0)
}

func TestRunner_Bail(t *testing.T) {
	server := okServer(t)
	s := testSession(t, server.URL)

	result := NewRunner(s, &Config{Bail: true}).Run(context.Background(), []Scenario{
		passing("first"),
		failing("second"),
		passing("third"),
	})

	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, ReasonBail, result.Results[2].Reason)
}

func TestRunner_Parallel(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	s := testSession(t, server.URL)

	var scenarios []Scenario
	for i := 0; i < 8; i++ {
		scenarios = append(scenarios, Scenario{
			Name: "parallel",
			Run: func(t *T, s *Session) {
				resp := s.Do(t, apihttp.NewRequest(http.MethodGet, "/api/users"))
				assert.Equal(t, 200, resp.StatusCode)
			},
		})
	}

	result := NewRunner(s, &Config{Parallel: true, Concurrency: 3}).Run(context.Background(), scenarios)

	assert.Equal(t, 8, result.Passed)
	// eight scenario requests plus the probe
	assert.Equal(t, int32(9), atomic.LoadInt32(&hits))
	for _, res := range result.Results {
		require.NotNil(t, res)
	}
}

func TestRunner_Cancelled(t *testing.T) {
	server := okServer(t)
	s := testSession(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	result := NewRunner(s, &Config{NoProbe: true}).Run(ctx, []Scenario{
		{Name: "cancels", Run: func(t *T, s *Session) { cancel() }},
		passing("after"),
	})

	assert.Equal(t, Passed, result.Results[0].Outcome)
	assert.Equal(t, Skipped, result.Results[1].Outcome)
	assert.Equal(t, ReasonCancelled, result.Results[1].Reason)
}

func TestT_Cleanup(t *testing.T) {
	var order []int
	tt := newT(context.Background(), "cleanup", NewSession(nil, nil).Logger)
	tt.run(func(tt *T) {
		tt.Cleanup(func() { order = append(order, 1) })
		tt.Cleanup(func() { order = append(order, 2) })
		tt.FailNow()
	})

	assert.Equal(t, []int{2, 1}, order)
	assert.Equal(t, Failed, tt.outcome())
	assert.Equal(t, []string{"scenario failed with no failure message"}, tt.errors)
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    bool
	}{
		{"login success", "", true},
		{"login success", "*", true},
		{"login success", "login success", true},
		{"login success", "login*", true},
		{"login success", "*success", true},
		{"login missing password", "*missing*", true},
		{"create user", "login*", false},
		{"create user", "*login", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesPattern(tt.name, tt.pattern), "%q ~ %q", tt.name, tt.pattern)
	}
}

func TestHasAnyTag(t *testing.T) {
	assert.True(t, hasAnyTag([]string{"smoke", "schema"}, []string{"schema"}))
	assert.False(t, hasAnyTag([]string{"smoke"}, []string{"auth", "negative"}))
	assert.False(t, hasAnyTag(nil, []string{"smoke"}))
}
