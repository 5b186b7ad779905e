package runner

import "time"

// Scenario is an independent request/assert unit
type Scenario struct {
	Name        string
	Description string
	Tags        []string
	Run         func(t *T, s *Session)
}

// HasTag reports whether the scenario carries tag
func (sc Scenario) HasTag(tag string) bool {
	for _, t := range sc.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

type Outcome string

const (
	Passed  Outcome = "passed"
	Failed  Outcome = "failed"
	Skipped Outcome = "skipped"
	XFailed Outcome = "xfailed"
)

// Exchange records one logical request made by a scenario
type Exchange struct {
	Method     string
	URL        string
	StatusCode int
	Attempts   int
	Duration   time.Duration
	Error      string
}

type ScenarioResult struct {
	Name        string
	Description string
	Tags        []string
	Outcome     Outcome
	Reason      string
	Errors      []string
	Logs        []string
	Exchanges   []Exchange
	Duration    time.Duration
}

func (r *ScenarioResult) Passed() bool  { return r.Outcome == Passed }
func (r *ScenarioResult) Failed() bool  { return r.Outcome == Failed }
func (r *ScenarioResult) Skipped() bool { return r.Outcome == Skipped }
func (r *ScenarioResult) XFailed() bool { return r.Outcome == XFailed }

// Attempts sums the requests sent on the wire, retries included
func (r *ScenarioResult) Attempts() int {
	n := 0
	for _, ex := range r.Exchanges {
		n += ex.Attempts
	}
	return n
}
