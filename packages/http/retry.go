package http

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

const (
	// DefaultRetries is the number of retries after the first attempt
	DefaultRetries = 3
	// DefaultBackoffFactor scales the exponential delay between retries
	DefaultBackoffFactor = 0.5
	// DefaultBackoffMax caps a single backoff delay
	DefaultBackoffMax = 120 * time.Second
)

// DefaultRetryStatuses are the response codes that trigger a retry
var DefaultRetryStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// DefaultRetryMethods lists the methods eligible for retry. POST and PATCH
// are included, so a retried create may be applied twice.
var DefaultRetryMethods = []string{
	http.MethodHead,
	http.MethodGet,
	http.MethodOptions,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
}

// retryAfterStatuses are the codes whose Retry-After header is honoured
var retryAfterStatuses = map[int]bool{
	http.StatusRequestEntityTooLarge: true,
	http.StatusTooManyRequests:       true,
	http.StatusServiceUnavailable:    true,
}

// RetryPolicy decides whether a failed attempt is tried again and how long
// to wait before doing so.
type RetryPolicy struct {
	Retries           int
	BackoffFactor     float64
	BackoffMax        time.Duration
	StatusForcelist   []int
	AllowedMethods    []string
	RespectRetryAfter bool
}

// DefaultRetryPolicy returns the policy used when no option overrides it
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Retries:           DefaultRetries,
		BackoffFactor:     DefaultBackoffFactor,
		BackoffMax:        DefaultBackoffMax,
		StatusForcelist:   append([]int(nil), DefaultRetryStatuses...),
		AllowedMethods:    append([]string(nil), DefaultRetryMethods...),
		RespectRetryAfter: true,
	}
}

// MethodAllowed reports whether requests with the given method may be retried
func (p RetryPolicy) MethodAllowed(method string) bool {
	for _, m := range p.AllowedMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// RetryableStatus reports whether a response with the given status should be retried
func (p RetryPolicy) RetryableStatus(method string, status int) bool {
	if !p.MethodAllowed(method) {
		return false
	}
	for _, s := range p.StatusForcelist {
		if s == status {
			return true
		}
	}
	return false
}

// RetryableError reports whether a transport error should be retried.
// Errors caused by the caller's own context are final.
func (p RetryPolicy) RetryableError(ctx context.Context, method string, err error) bool {
	if err == nil || !p.MethodAllowed(method) {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Backoff returns the delay before the given retry (1-based): 0.5s, 1s, 2s, ...
// for the default factor.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 || p.BackoffFactor <= 0 {
		return 0
	}
	seconds := p.BackoffFactor * math.Pow(2, float64(retry-1))
	d := time.Duration(seconds * float64(time.Second))
	if p.BackoffMax > 0 && d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

// Delay picks the wait before the given retry, preferring a Retry-After
// header on the previous response when the policy honours it.
func (p RetryPolicy) Delay(retry int, resp *Response) time.Duration {
	if p.RespectRetryAfter && resp != nil && retryAfterStatuses[resp.StatusCode] {
		if d, ok := parseRetryAfter(resp.Header("Retry-After"), time.Now()); ok {
			if p.BackoffMax > 0 && d > p.BackoffMax {
				return p.BackoffMax
			}
			return d
		}
	}
	return p.Backoff(retry)
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	d := at.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
