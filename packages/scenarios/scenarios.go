// Package scenarios contains the smoke and contract checks run against the
// user-management API. Each scenario is independent: it neither relies on
// another scenario having run nor leaves state another one reads.
package scenarios

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/apismoke/packages/core/runner"
	apihttp "github.com/abdul-hamid-achik/apismoke/packages/http"
	"github.com/abdul-hamid-achik/apismoke/packages/schema"
)

// Tags
const (
	TagSmoke    = "smoke"
	TagSchema   = "schema"
	TagNegative = "negative"
	TagAuth     = "auth"
)

const (
	LoginEmail       = "eve.holt@reqres.in"
	LoginPassword    = "cityslicka"
	RegisterEmail    = "eve.holt@reqres.in"
	RegisterPassword = "pistol"
)

// BurstOptions tunes the soft rate-limit scenario
type BurstOptions struct {
	Requests int
	Interval time.Duration
	Timeout  time.Duration
}

func DefaultBurstOptions() BurstOptions {
	return BurstOptions{
		Requests: 5,
		Interval: 200 * time.Millisecond,
		Timeout:  10 * time.Second,
	}
}

type options struct {
	burst BurstOptions
}

type Option func(*options)

// WithBurst overrides the burst scenario settings
func WithBurst(b BurstOptions) Option {
	return func(o *options) {
		o.burst = b
	}
}

// All returns every scenario in declaration order
func All(opts ...Option) []runner.Scenario {
	o := options{burst: DefaultBurstOptions()}
	for _, opt := range opts {
		opt(&o)
	}

	return []runner.Scenario{
		{
			Name:        "health list users",
			Description: "Basic health: list users returns 200 and non-empty data",
			Tags:        []string{TagSmoke},
			Run:         healthListUsers,
		},
		{
			Name:        "get user schema",
			Description: "GET /api/users/2 matches the user contract",
			Tags:        []string{TagSmoke, TagSchema},
			Run:         getUserSchema,
		},
		{
			Name:        "get user not found",
			Description: "GET /api/users/23 returns 404 with an empty body",
			Tags:        []string{TagNegative},
			Run:         getUserNotFound,
		},
		{
			Name:        "create user",
			Description: "POST /api/users returns 201, echoes the payload and matches the created-user contract",
			Tags:        []string{TagSmoke, TagSchema},
			Run:         createUser,
		},
		{
			Name:        "login success",
			Description: "POST /api/login with valid credentials returns a token",
			Tags:        []string{TagAuth},
			Run:         loginSuccess,
		},
		{
			Name:        "login missing password",
			Description: "POST /api/login without a password returns 400 mentioning the password",
			Tags:        []string{TagAuth, TagNegative},
			Run:         loginMissingPassword,
		},
		{
			Name:        "register success",
			Description: "POST /api/register with a defined user returns an id and a token",
			Tags:        []string{TagAuth},
			Run:         registerSuccess,
		},
		{
			Name:        "register round trip",
			Description: "Registering the same user twice yields a token both times",
			Tags:        []string{TagAuth},
			Run:         registerRoundTrip,
		},
		{
			Name:        "register missing password",
			Description: "POST /api/register without a password returns 400",
			Tags:        []string{TagNegative},
			Run:         registerMissingPassword,
		},
		{
			Name:        "soft rate limit burst",
			Description: "A short burst of list requests is not rate limited",
			Tags:        []string{TagSmoke},
			Run:         func(t *runner.T, s *runner.Session) { softRateLimitBurst(t, s, o.burst) },
		},
	}
}

// Names lists the scenario names in declaration order
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, sc := range all {
		names[i] = sc.Name
	}
	return names
}

// checkContract validates a response body against the contract registered
// for the endpoint and status
func checkContract(method, path string, resp *apihttp.Response) error {
	c, ok := schema.ForResponse(method, path, resp.StatusCode)
	if !ok {
		return fmt.Errorf("no contract for %s %s (HTTP %d)", method, path, resp.StatusCode)
	}
	if err := c.Schema.Validate(resp.Body); err != nil {
		return fmt.Errorf("%s contract: %w", c.Name, err)
	}
	return nil
}

func healthListUsers(t *runner.T, s *runner.Session) {
	resp := s.Get(t, "/api/users", map[string]string{"page": "2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := resp.Get("data")
	require.True(t, data.IsArray(), "data should be an array, body: %s", resp.BodyString())
	assert.NotEmpty(t, data.Array(), "data should not be empty")
}

func getUserSchema(t *runner.T, s *runner.Session) {
	resp := s.Get(t, "/api/users/2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NoError(t, checkContract(http.MethodGet, "/api/users/2", resp))
}

func getUserNotFound(t *runner.T, s *runner.Session) {
	resp := s.Get(t, "/api/users/23", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := strings.TrimSpace(resp.BodyString())
	assert.Contains(t, []string{"", "{}"}, body, "404 body should be empty")
}

func createUser(t *runner.T, s *runner.Session) {
	payload := map[string]string{"name": "morpheus", "job": "leader"}
	resp := s.PostJSON(t, "/api/users", payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Equal(t, "morpheus", resp.Get("name").String())
	assert.Equal(t, "leader", resp.Get("job").String())
	assert.NoError(t, checkContract(http.MethodPost, "/api/users", resp))
}

func loginSuccess(t *runner.T, s *runner.Session) {
	resp := s.PostJSON(t, "/api/login", map[string]string{
		"email":    LoginEmail,
		"password": LoginPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NoError(t, checkContract(http.MethodPost, "/api/login", resp))
}

func loginMissingPassword(t *runner.T, s *runner.Session) {
	resp := s.PostJSON(t, "/api/login", map[string]string{"email": "peter@klaven"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, checkContract(http.MethodPost, "/api/login", resp))

	msg := resp.Get("error").String()
	assert.Contains(t, strings.ToLower(msg), "password")
}

func registerSuccess(t *runner.T, s *runner.Session) {
	resp := s.PostJSON(t, "/api/register", map[string]string{
		"email":    RegisterEmail,
		"password": RegisterPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, checkContract(http.MethodPost, "/api/register", resp))
	assert.NotEmpty(t, resp.Get("token").String())
}

// registerRoundTrip registers the same credentials twice; the API is
// idempotent for defined users, so both calls hand out a token.
func registerRoundTrip(t *runner.T, s *runner.Session) {
	payload := map[string]string{
		"email":    RegisterEmail,
		"password": RegisterPassword,
	}
	for i := 1; i <= 2; i++ {
		resp := s.PostJSON(t, "/api/register", payload)
		require.Equal(t, http.StatusOK, resp.StatusCode, "registration #%d", i)
		assert.NotEmpty(t, resp.Get("token").String(), "registration #%d returned no token", i)
	}
}

func registerMissingPassword(t *runner.T, s *runner.Session) {
	resp := s.PostJSON(t, "/api/register", map[string]string{"email": "sydney@fife"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NoError(t, checkContract(http.MethodPost, "/api/register", resp))
}

func softRateLimitBurst(t *runner.T, s *runner.Session, o BurstOptions) {
	statuses := make([]int, 0, o.Requests)

	for i := 0; i < o.Requests; i++ {
		if i > 0 && !pause(t, o.Interval) {
			t.Skip("run cancelled during burst")
		}
		// single attempt so every 429 is observed
		req := apihttp.NewRequest(http.MethodGet, "/api/users").
			SetQueryParam("page", "1").
			SetTimeout(o.Timeout).
			WithoutRetry()
		resp := s.Do(t, req)
		statuses = append(statuses, resp.StatusCode)
	}

	assert.NotContains(t, statuses, http.StatusTooManyRequests,
		fmt.Sprintf("Hit rate limit unexpectedly: %v", statuses))
}

// pause waits d after the previous response. It reports false when the
// run is cancelled first.
func pause(t *runner.T, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.Context().Done():
		return false
	case <-timer.C:
		return true
	}
}
