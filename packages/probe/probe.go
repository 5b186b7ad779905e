// Package probe checks once per session whether the target API can be
// tested at all, and turns the answer into a proceed, skip or xfail decision.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	apihttp "github.com/abdul-hamid-achik/apismoke/packages/http"
)

const (
	DefaultPath    = "/api/users"
	DefaultTimeout = 10 * time.Second
)

// Status classifies what the probe observed
type Status string

const (
	Reachable   Status = "reachable"
	Blocked     Status = "blocked"
	Unreachable Status = "unreachable"
)

// Decision is what the session does with the probe outcome
type Decision string

const (
	Proceed Decision = "proceed"
	Skip    Decision = "skip"
	XFail   Decision = "xfail"
)

// Doer is the part of the HTTP client the probe needs
type Doer interface {
	Do(ctx context.Context, req *apihttp.Request) (*apihttp.Response, error)
	BaseURL() string
}

type Options struct {
	Path        string
	Query       map[string]string
	Timeout     time.Duration
	Strict      bool
	SkipOnBlock bool
	Logger      *logrus.Entry
}

// DefaultOptions probes GET /api/users?page=1 and skips on a blocked target
func DefaultOptions() Options {
	return Options{
		Path:        DefaultPath,
		Query:       map[string]string{"page": "1"},
		Timeout:     DefaultTimeout,
		SkipOnBlock: true,
	}
}

type Result struct {
	Target     string
	Status     Status
	StatusCode int
	Err        error
	Decision   Decision
	Reason     string
	Duration   time.Duration
}

// Proceeding reports whether scenarios should run
func (r *Result) Proceeding() bool {
	return r.Decision == Proceed
}

// IsBlocked reports whether a status means the target refuses or cannot serve tests
func IsBlocked(code int) bool {
	return code == http.StatusForbidden || code == http.StatusTooManyRequests || code >= 500
}

// Decide maps a probe status to a decision. A transport failure skips
// unless strict; a blocked target skips only when skipOnBlock is set and
// strict is not.
func Decide(status Status, strict, skipOnBlock bool) Decision {
	switch status {
	case Unreachable:
		if strict {
			return XFail
		}
		return Skip
	case Blocked:
		if skipOnBlock && !strict {
			return Skip
		}
		return XFail
	default:
		return Proceed
	}
}

// Run sends exactly one request, without retries, and classifies the outcome
func Run(ctx context.Context, doer Doer, opts Options) *Result {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}

	base := doer.BaseURL()
	req := apihttp.NewRequest(http.MethodGet, opts.Path).
		SetTimeout(opts.Timeout).
		WithoutRetry()
	for k, v := range opts.Query {
		req.SetQueryParam(k, v)
	}

	start := time.Now()
	resp, err := doer.Do(ctx, req)
	result := &Result{
		Target:   base,
		Duration: time.Since(start),
	}

	switch {
	case err != nil:
		result.Status = Unreachable
		result.Err = errors.Wrap(unwrapTransport(err), "probe")
		result.Reason = fmt.Sprintf("Cannot reach %s: %v", base, unwrapTransport(err))
	case IsBlocked(resp.StatusCode):
		result.Status = Blocked
		result.StatusCode = resp.StatusCode
		result.Reason = fmt.Sprintf("%s blocked/unstable (HTTP %d).", base, resp.StatusCode)
	default:
		result.Status = Reachable
		result.StatusCode = resp.StatusCode
	}
	result.Decision = Decide(result.Status, opts.Strict, opts.SkipOnBlock)

	log.WithFields(logrus.Fields{
		"target":   base,
		"status":   result.Status,
		"code":     result.StatusCode,
		"decision": result.Decision,
	}).Info("probe finished")

	return result
}

// unwrapTransport drops the retry envelope so the reason shows the cause
func unwrapTransport(err error) error {
	var terr *apihttp.TransportError
	if errors.As(err, &terr) && terr.Err != nil {
		return terr.Err
	}
	return err
}
