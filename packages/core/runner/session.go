package runner

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/abdul-hamid-achik/apismoke/packages/core/config"
	apihttp "github.com/abdul-hamid-achik/apismoke/packages/http"
	"github.com/abdul-hamid-achik/apismoke/packages/probe"
)

// Session is the per-run dependency container handed to every scenario.
// Its client is built once and shared; nothing is dialed until the first
// request.
type Session struct {
	RunID  string
	Config *config.Config
	Client *apihttp.Client
	Logger *logrus.Entry
	Probe  *probe.Result
}

// NewSession builds the client from cfg. Extra options are applied after
// the configured ones.
func NewSession(cfg *config.Config, logger *logrus.Entry, opts ...apihttp.ClientOption) *Session {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = logrus.NewEntry(l)
	}
	runID := uuid.NewString()
	logger = logger.WithField("run_id", runID)

	clientOpts := append(ClientOptions(cfg), apihttp.WithLogger(logger))
	clientOpts = append(clientOpts, opts...)

	return &Session{
		RunID:  runID,
		Config: cfg,
		Client: apihttp.NewClient(clientOpts...),
		Logger: logger,
	}
}

// ClientOptions translates configuration into client options
func ClientOptions(cfg *config.Config) []apihttp.ClientOption {
	opts := []apihttp.ClientOption{
		apihttp.WithBaseURL(cfg.BaseURL),
		apihttp.WithTimeout(cfg.TimeoutDuration()),
		apihttp.WithRetries(cfg.GetRetries()),
		apihttp.WithBackoffFactor(cfg.GetBackoffFactor()),
		apihttp.WithDefaultHeaders(cfg.RequestHeaders()),
		apihttp.WithValidateSSL(cfg.GetValidateSSL()),
	}
	if cfg.Proxy != "" {
		opts = append(opts, apihttp.WithProxy(cfg.Proxy))
	}
	return opts
}

// ProbeOptions derives probe settings from the configuration
func (s *Session) ProbeOptions() probe.Options {
	opts := probe.DefaultOptions()
	opts.Timeout = s.Config.ProbeTimeoutDuration()
	opts.Strict = s.Config.GetStrict()
	opts.SkipOnBlock = s.Config.GetSkipOnBlock()
	opts.Logger = s.Logger
	return opts
}

// RunProbe checks reachability once and stores the result on the session
func (s *Session) RunProbe(ctx context.Context) *probe.Result {
	s.Probe = probe.Run(ctx, s.Client, s.ProbeOptions())
	return s.Probe
}

// Do sends req on behalf of t and records the exchange. A request that
// gets no response at all fails the scenario immediately.
func (s *Session) Do(t *T, req *apihttp.Request) *apihttp.Response {
	t.Helper()
	resp, err := s.Client.Do(t.Context(), req)

	ex := Exchange{
		Method: req.Method,
		URL:    s.Client.URL(req.BuildURL()),
	}
	if resp != nil {
		ex.StatusCode = resp.StatusCode
		ex.Attempts = resp.Attempts
		ex.Duration = resp.Duration
	}
	if err != nil {
		ex.Error = err.Error()
		var terr *apihttp.TransportError
		if errors.As(err, &terr) {
			ex.Attempts = terr.Attempts
		}
	}
	t.record(ex)

	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, ex.URL, err)
	}
	t.Logf("%s %s -> %d (%d attempt(s))", req.Method, ex.URL, resp.StatusCode, resp.Attempts)
	return resp
}

// Get is Do for a GET with query parameters
func (s *Session) Get(t *T, path string, query map[string]string) *apihttp.Response {
	t.Helper()
	req := apihttp.NewRequest(http.MethodGet, path)
	for k, v := range query {
		req.SetQueryParam(k, v)
	}
	return s.Do(t, req)
}

// PostJSON is Do for a POST with a JSON body
func (s *Session) PostJSON(t *T, path string, payload any) *apihttp.Response {
	t.Helper()
	req := apihttp.NewRequest(http.MethodPost, path)
	if err := req.SetJSONBody(payload); err != nil {
		t.Fatalf("encode body for %s: %v", path, err)
	}
	return s.Do(t, req)
}

// Target is the base URL under test
func (s *Session) Target() string {
	return strings.TrimRight(s.Client.BaseURL(), "/")
}

// Close releases pooled connections
func (s *Session) Close() {
	s.Client.Close()
}
