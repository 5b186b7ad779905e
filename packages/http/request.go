package http

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

type Request struct {
	Method       string
	URL          string
	Headers      map[string]string
	Body         []byte
	Timeout      time.Duration
	QueryParams  map[string]string
	DisableRetry bool
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:      method,
		URL:         requestURL,
		Headers:     make(map[string]string),
		QueryParams: make(map[string]string),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

func (r *Request) SetBody(body []byte) *Request {
	r.Body = body
	return r
}

// SetJSONBody encodes v as the request body and sets the Content-Type header
func (r *Request) SetJSONBody(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.Body = data
	if r.Headers["Content-Type"] == "" {
		r.SetHeader("Content-Type", "application/json")
	}
	return nil
}

// SetTimeout overrides the client's default timeout for this request
func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

func (r *Request) SetQueryParam(key, value string) *Request {
	r.QueryParams[key] = value
	return r
}

// WithoutRetry makes the request a single attempt regardless of the policy
func (r *Request) WithoutRetry() *Request {
	r.DisableRetry = true
	return r
}

func (r *Request) BuildURL() string {
	if len(r.QueryParams) == 0 {
		return r.URL
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}

	q := u.Query()
	for k, v := range r.QueryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// resolveURL joins a path onto a base URL. Absolute URLs are returned as-is.
func resolveURL(baseURL, path string) string {
	if baseURL == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base := strings.TrimRight(baseURL, "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
