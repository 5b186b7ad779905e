package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
)

// T is the per-scenario test context. It satisfies testify's
// require.TestingT, so assert and require work against it directly.
// A T must only be used from the goroutine running its scenario.
type T struct {
	name      string
	ctx       context.Context
	logger    *logrus.Entry
	failed    bool
	skipped   bool
	xfailed   bool
	reason    string
	errors    []string
	logs      []string
	exchanges []Exchange
	cleanups  []func()
}

func newT(ctx context.Context, name string, logger *logrus.Entry) *T {
	return &T{
		name:   name,
		ctx:    ctx,
		logger: logger.WithField("scenario", name),
	}
}

func (t *T) Name() string {
	return t.name
}

// Context is cancelled when the run is interrupted
func (t *T) Context() context.Context {
	return t.ctx
}

func (t *T) Errorf(format string, args ...any) {
	t.failed = true
	msg := strings.TrimSpace(fmt.Sprintf(format, args...))
	t.errors = append(t.errors, msg)
	t.logger.WithField("error", msg).Debug("assertion failed")
}

// FailNow marks the scenario failed and stops it
func (t *T) FailNow() {
	t.failed = true
	panic(t)
}

func (t *T) Fatalf(format string, args ...any) {
	t.Errorf(format, args...)
	t.FailNow()
}

func (t *T) Helper() {}

func (t *T) Failed() bool {
	return t.failed
}

// Skip stops the scenario and reports it skipped
func (t *T) Skip(reason string) {
	t.skipped = true
	t.reason = reason
	panic(t)
}

func (t *T) Skipf(format string, args ...any) {
	t.Skip(fmt.Sprintf(format, args...))
}

// XFail stops the scenario and reports it as an expected failure
func (t *T) XFail(reason string) {
	t.xfailed = true
	t.reason = reason
	panic(t)
}

func (t *T) Logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.logs = append(t.logs, msg)
	t.logger.Debug(msg)
}

// Cleanup registers fn to run after the scenario, last registered first
func (t *T) Cleanup(fn func()) {
	t.cleanups = append(t.cleanups, fn)
}

func (t *T) record(ex Exchange) {
	t.exchanges = append(t.exchanges, ex)
}

// run calls action, turning FailNow/Skip/XFail and unexpected panics into
// an outcome instead of crashing the run.
func (t *T) run(action func(*T)) {
	defer t.runCleanups()
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(*T); ok {
				if t.failed && len(t.errors) == 0 {
					t.errors = append(t.errors, "scenario failed with no failure message")
				}
				return
			}
			t.failed = true
			t.errors = append(t.errors, fmt.Sprintf("unexpected panic in scenario: %+v\n%s", r, string(debug.Stack())))
		}
	}()

	action(t)
}

func (t *T) runCleanups() {
	for i := len(t.cleanups) - 1; i >= 0; i-- {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.failed = true
					t.errors = append(t.errors, fmt.Sprintf("panic in cleanup: %+v", r))
				}
			}()
			t.cleanups[i]()
		}()
	}
}

func (t *T) outcome() Outcome {
	switch {
	case t.xfailed:
		return XFailed
	case t.skipped && !t.failed:
		return Skipped
	case t.failed:
		return Failed
	default:
		return Passed
	}
}
