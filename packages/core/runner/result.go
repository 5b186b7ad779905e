package runner

import (
	"time"

	"github.com/abdul-hamid-achik/apismoke/packages/probe"
)

type RunResult struct {
	RunID     string
	Target    string
	Probe     *probe.Result
	Results   []*ScenarioResult
	StartedAt time.Time
	Duration  time.Duration
	Passed    int
	Failed    int
	Skipped   int
	XFailed   int
}

func (r *RunResult) tally() {
	r.Passed, r.Failed, r.Skipped, r.XFailed = 0, 0, 0, 0
	for _, res := range r.Results {
		switch res.Outcome {
		case Passed:
			r.Passed++
		case Failed:
			r.Failed++
		case Skipped:
			r.Skipped++
		case XFailed:
			r.XFailed++
		}
	}
}

// Total is the number of scenarios considered, filtered ones included
func (r *RunResult) Total() int {
	return len(r.Results)
}

// Success reports whether no scenario failed. Skips and xfails do not count.
func (r *RunResult) Success() bool {
	return r.Failed == 0
}

// Failures returns the failed scenario results
func (r *RunResult) Failures() []*ScenarioResult {
	var out []*ScenarioResult
	for _, res := range r.Results {
		if res.Failed() {
			out = append(out, res)
		}
	}
	return out
}
