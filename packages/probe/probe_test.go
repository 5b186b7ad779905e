package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apihttp "github.com/abdul-hamid-achik/apismoke/packages/http"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name        string
		status      Status
		strict      bool
		skipOnBlock bool
		want        Decision
	}{
		{"reachable", Reachable, false, true, Proceed},
		{"reachable strict", Reachable, true, false, Proceed},
		{"unreachable", Unreachable, false, true, Skip},
		{"unreachable no skip-on-block", Unreachable, false, false, Skip},
		{"unreachable strict", Unreachable, true, true, XFail},
		{"blocked", Blocked, false, true, Skip},
		{"blocked strict", Blocked, true, true, XFail},
		{"blocked without skip-on-block", Blocked, false, false, XFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.status, tt.strict, tt.skipOnBlock))
		})
	}
}

func TestIsBlocked(t *testing.T) {
	for _, code := range []int{403, 429, 500, 502, 503, 504, 599} {
		assert.True(t, IsBlocked(code), "code %d", code)
	}
	for _, code := range []int{200, 201, 301, 400, 401, 404} {
		assert.False(t, IsBlocked(code), "code %d", code)
	}
}

func TestRun_Reachable(t *testing.T) {
	handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(200))
	server := httptest.NewServer(handler)
	defer server.Close()

	client := apihttp.NewClient(apihttp.WithBaseURL(server.URL))
	result := Run(context.Background(), client, DefaultOptions())

	assert.Equal(t, Reachable, result.Status)
	assert.Equal(t, Proceed, result.Decision)
	assert.True(t, result.Proceeding())
	assert.Empty(t, result.Reason)

	require.Len(t, requests, 1)
	info := <-requests
	assert.Equal(t, "/api/users", info.Request.URL.Path)
	assert.Equal(t, "1", info.Request.URL.Query().Get("page"))
}

func TestRun_BlockedSendsSingleRequest(t *testing.T) {
	for _, code := range []int{403, 429, 500, 503} {
		t.Run(strconv.Itoa(code), func(t *testing.T) {
			handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(code))
			server := httptest.NewServer(handler)
			defer server.Close()

			// the client would retry 429/5xx; the probe must not
			client := apihttp.NewClient(apihttp.WithBaseURL(server.URL), apihttp.WithBackoffFactor(0.001))
			result := Run(context.Background(), client, DefaultOptions())

			assert.Equal(t, Blocked, result.Status)
			assert.Equal(t, code, result.StatusCode)
			assert.Equal(t, Skip, result.Decision)
			assert.Equal(t, server.URL+" blocked/unstable (HTTP "+strconv.Itoa(code)+").", result.Reason)
			assert.Len(t, requests, 1)
		})
	}
}

func TestRun_BlockedStrict(t *testing.T) {
	server := httptest.NewServer(httphelpers.HandlerWithStatus(403))
	defer server.Close()

	opts := DefaultOptions()
	opts.Strict = true
	result := Run(context.Background(), apihttp.NewClient(apihttp.WithBaseURL(server.URL)), opts)

	assert.Equal(t, XFail, result.Decision)
	assert.False(t, result.Proceeding())
}

func TestRun_BlockedWithoutSkip(t *testing.T) {
	server := httptest.NewServer(httphelpers.HandlerWithStatus(429))
	defer server.Close()

	opts := DefaultOptions()
	opts.SkipOnBlock = false
	result := Run(context.Background(), apihttp.NewClient(apihttp.WithBaseURL(server.URL)), opts)

	assert.Equal(t, XFail, result.Decision)
}

func TestRun_Unreachable(t *testing.T) {
	server := httptest.NewServer(httphelpers.HandlerWithStatus(200))
	target := server.URL
	server.Close()

	client := apihttp.NewClient(apihttp.WithBaseURL(target))
	result := Run(context.Background(), client, DefaultOptions())

	assert.Equal(t, Unreachable, result.Status)
	assert.Equal(t, Skip, result.Decision)
	assert.Error(t, result.Err)
	assert.Contains(t, result.Reason, "Cannot reach "+target+": ")
	assert.NotContains(t, result.Reason, "attempt(s)")

	opts := DefaultOptions()
	opts.Strict = true
	result = Run(context.Background(), client, opts)
	assert.Equal(t, XFail, result.Decision)
}

func TestRun_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.Timeout = 20 * time.Millisecond
	result := Run(context.Background(), apihttp.NewClient(apihttp.WithBaseURL(server.URL)), opts)

	assert.Equal(t, Unreachable, result.Status)
	assert.Equal(t, Skip, result.Decision)
}
