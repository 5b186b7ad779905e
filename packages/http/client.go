package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout is the default per-attempt request timeout
	DefaultTimeout = 15 * time.Second
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool
	DefaultMaxIdleConns = 100
	// DefaultMaxIdleConnsPerHost is the maximum number of idle connections per host
	DefaultMaxIdleConnsPerHost = 10
	// DefaultIdleConnTimeout is how long idle connections stay in the pool
	DefaultIdleConnTimeout = 90 * time.Second

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0 Safari/537.36 api-smoke/1.0"
	DefaultAccept         = "application/json"
	DefaultAcceptLanguage = "en-US,en;q=0.9"
	// DefaultConnection asks the server to close the connection after each response
	DefaultConnection = "close"

	// RequestIDHeader carries one ID per logical request, shared by its retries
	RequestIDHeader = "X-Request-Id"
)

// Attempt describes a single request sent on the wire
type Attempt struct {
	Method     string
	URL        string
	Number     int
	StatusCode int
	Err        error
	Duration   time.Duration
	Retrying   bool
}

// AttemptObserver is called after every attempt, including the last one
type AttemptObserver func(Attempt)

// TransportError is returned when no response could be obtained, after
// every permitted retry was used.
type TransportError struct {
	Method   string
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Client struct {
	httpClient     *http.Client
	transport      *http.Transport
	baseURL        string
	timeout        time.Duration
	retry          RetryPolicy
	validateSSL    bool
	proxyURL       string
	requestIDs     bool
	defaultHeaders map[string]string
	observer       AttemptObserver
	logger         *logrus.Entry
	sleep          func(context.Context, time.Duration) error
}

type ClientOption func(*Client)

// NewClient builds a client. No connection is opened until the first request.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:     DefaultTimeout,
		retry:       DefaultRetryPolicy(),
		validateSSL: true,
		requestIDs:  true,
		defaultHeaders: map[string]string{
			"User-Agent":      DefaultUserAgent,
			"Accept":          DefaultAccept,
			"Accept-Language": DefaultAcceptLanguage,
			"Connection":      DefaultConnection,
		},
		logger: silentLogger(),
		sleep:  sleepContext,
	}

	for _, opt := range opts {
		opt(c)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
	}

	// Configure TLS verification
	if !c.validateSSL {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	// Configure proxy if specified
	if c.proxyURL != "" {
		proxyURL, err := neturl.Parse(c.proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	c.transport = transport
	c.httpClient = &http.Client{
		Transport: transport,
	}

	return c
}

func silentLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetryPolicy replaces the whole retry policy
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = p
	}
}

func WithRetries(n int) ClientOption {
	return func(c *Client) {
		c.retry.Retries = n
	}
}

func WithBackoffFactor(f float64) ClientOption {
	return func(c *Client) {
		c.retry.BackoffFactor = f
	}
}

func WithDefaultHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.defaultHeaders[key] = value
	}
}

// WithDefaultHeaders sets multiple default headers for all requests
func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.defaultHeaders[k] = v
		}
	}
}

// WithValidateSSL enables or disables SSL certificate validation
func WithValidateSSL(validate bool) ClientOption {
	return func(c *Client) {
		c.validateSSL = validate
	}
}

// WithProxy sets the proxy URL for all requests
func WithProxy(proxyURL string) ClientOption {
	return func(c *Client) {
		c.proxyURL = proxyURL
	}
}

// WithRequestIDs toggles the X-Request-Id header on outgoing requests
func WithRequestIDs(enabled bool) ClientOption {
	return func(c *Client) {
		c.requestIDs = enabled
	}
}

func WithObserver(fn AttemptObserver) ClientOption {
	return func(c *Client) {
		c.observer = fn
	}
}

func WithLogger(logger *logrus.Entry) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// BaseURL returns the URL request paths are resolved against
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL resolves a path against the base URL
func (c *Client) URL(path string) string {
	return resolveURL(c.baseURL, path)
}

// Timeout returns the default per-attempt timeout
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// RetryPolicy returns a copy of the client's retry policy
func (c *Client) RetryPolicy() RetryPolicy {
	return c.retry
}

// Close releases idle pooled connections. The client stays usable.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Do sends the request, retrying according to the client's policy. When
// retries run out on an error status the last response is returned with a
// nil error; only a missing response yields an error.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	target := resolveURL(c.baseURL, req.BuildURL())
	if err := ValidateURL(target); err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(c.defaultHeaders)+len(req.Headers)+1)
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	if c.requestIDs && headers[RequestIDHeader] == "" {
		headers[RequestIDHeader] = uuid.NewString()
	}

	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	maxRetries := c.retry.Retries
	if req.DisableRetry || maxRetries < 0 {
		maxRetries = 0
	}

	log := c.logger.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    target,
	})

	for attempt := 1; ; attempt++ {
		start := time.Now()
		resp, err := c.doRequest(ctx, req.Method, target, headers, req.Body, timeout)
		elapsed := time.Since(start)

		var retryable bool
		if err != nil {
			retryable = c.retry.RetryableError(ctx, req.Method, err)
		} else {
			resp.Attempts = attempt
			retryable = c.retry.RetryableStatus(req.Method, resp.StatusCode)
		}
		willRetry := retryable && attempt <= maxRetries

		c.observe(Attempt{
			Method:     req.Method,
			URL:        target,
			Number:     attempt,
			StatusCode: statusOf(resp),
			Err:        err,
			Duration:   elapsed,
			Retrying:   willRetry,
		})

		if !willRetry {
			if err != nil {
				log.WithError(err).WithField("attempt", attempt).Debug("request failed")
				return nil, &TransportError{Method: req.Method, URL: target, Attempts: attempt, Err: err}
			}
			log.WithFields(logrus.Fields{
				"attempt": attempt,
				"status":  resp.StatusCode,
			}).Debug("request completed")
			return resp, nil
		}

		delay := c.retry.Delay(attempt, resp)
		entry := log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		})
		if err != nil {
			entry.WithError(err).Info("retrying after transport error")
		} else {
			entry.WithField("status", resp.StatusCode).Info("retrying after error status")
		}

		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			if resp != nil {
				return resp, nil
			}
			return nil, &TransportError{
				Method:   req.Method,
				URL:      target,
				Attempts: attempt,
				Err:      errors.Wrap(sleepErr, "retry wait interrupted"),
			}
		}
	}
}

func (c *Client) doRequest(ctx context.Context, method, target string, headers map[string]string, body []byte, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}

	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	if strings.EqualFold(headers["Connection"], "close") {
		httpReq.Close = true
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}
	duration := time.Since(start)

	respHeaders := make(map[string]string)
	for k := range httpResp.Header {
		respHeaders[k] = httpResp.Header.Get(k)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    respHeaders,
		Body:       respBody,
		Duration:   duration,
	}, nil
}

func (c *Client) observe(a Attempt) {
	if c.observer != nil {
		c.observer(a)
	}
}

func statusOf(resp *Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func (c *Client) Get(ctx context.Context, path string, query map[string]string) (*Response, error) {
	req := NewRequest(http.MethodGet, path)
	for k, v := range query {
		req.SetQueryParam(k, v)
	}
	return c.Do(ctx, req)
}

// PostJSON encodes payload as JSON and posts it to path
func (c *Client) PostJSON(ctx context.Context, path string, payload any) (*Response, error) {
	req := NewRequest(http.MethodPost, path)
	if err := req.SetJSONBody(payload); err != nil {
		return nil, errors.Wrap(err, "encode request body")
	}
	return c.Do(ctx, req)
}

func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, NewRequest(http.MethodDelete, path))
}

// ValidateURL checks that a URL is well-formed and uses an allowed scheme
func ValidateURL(rawURL string) error {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}

	// Check for valid scheme
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (only http and https are allowed)", u.Scheme)
	}

	// Check for valid host
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}
