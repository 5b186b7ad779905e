package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/abdul-hamid-achik/apismoke/packages/probe"
)

const (
	// DefaultConcurrency is the default number of concurrent scenarios in parallel mode
	DefaultConcurrency = 5

	ReasonFilteredOut = "filtered out"
	ReasonBail        = "skipped after an earlier failure"
	ReasonCancelled   = "run cancelled"
)

type Config struct {
	NameFilter  string
	TagsFilter  []string
	Parallel    bool
	Concurrency int
	Bail        bool
	// NoProbe runs scenarios without checking reachability first
	NoProbe bool
}

type Runner struct {
	session *Session
	config  *Config
	logger  *logrus.Entry
}

func NewRunner(session *Session, cfg *Config) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Runner{
		session: session,
		config:  cfg,
		logger:  session.Logger,
	}
}

// Run filters scenarios, probes the target once and executes what is left.
// Results keep the order of scenarios.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) *RunResult {
	start := time.Now()
	result := &RunResult{
		RunID:     r.session.RunID,
		Target:    r.session.Target(),
		StartedAt: start,
		Results:   make([]*ScenarioResult, len(scenarios)),
	}

	var selected []int
	for i, sc := range scenarios {
		if !r.shouldRun(sc) {
			result.Results[i] = notRun(sc, Skipped, ReasonFilteredOut)
			continue
		}
		selected = append(selected, i)
	}

	if len(selected) > 0 && !r.config.NoProbe {
		pr := r.session.RunProbe(ctx)
		result.Probe = pr
		if !pr.Proceeding() {
			outcome := Skipped
			if pr.Decision == probe.XFail {
				outcome = XFailed
			}
			r.logger.WithFields(logrus.Fields{
				"decision": pr.Decision,
				"reason":   pr.Reason,
			}).Warn("target not testable, scenarios will not run")
			for _, i := range selected {
				result.Results[i] = notRun(scenarios[i], outcome, pr.Reason)
			}
			selected = nil
		}
	}

	if r.config.Parallel {
		r.runParallel(ctx, scenarios, selected, result.Results)
	} else {
		r.runSequential(ctx, scenarios, selected, result.Results)
	}

	result.tally()
	result.Duration = time.Since(start)
	return result
}

func (r *Runner) runSequential(ctx context.Context, scenarios []Scenario, selected []int, results []*ScenarioResult) {
	bailed := false
	for _, i := range selected {
		switch {
		case bailed:
			results[i] = notRun(scenarios[i], Skipped, ReasonBail)
		case ctx.Err() != nil:
			results[i] = notRun(scenarios[i], Skipped, ReasonCancelled)
		default:
			results[i] = r.runScenario(ctx, scenarios[i])
			if results[i].Failed() && r.config.Bail {
				bailed = true
			}
		}
	}
}

func (r *Runner) runParallel(ctx context.Context, scenarios []Scenario, selected []int, results []*ScenarioResult) {
	concurrency := r.config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var wg sync.WaitGroup
	var failed atomic.Bool
	sem := make(chan struct{}, concurrency)

	for _, i := range selected {
		wg.Add(1)
		sem <- struct{}{} // acquire semaphore

		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }() // release semaphore

			switch {
			case r.config.Bail && failed.Load():
				results[idx] = notRun(scenarios[idx], Skipped, ReasonBail)
			case ctx.Err() != nil:
				results[idx] = notRun(scenarios[idx], Skipped, ReasonCancelled)
			default:
				results[idx] = r.runScenario(ctx, scenarios[idx])
				if results[idx].Failed() {
					failed.Store(true)
				}
			}
		}(i)
	}

	wg.Wait()
}

func (r *Runner) runScenario(ctx context.Context, sc Scenario) *ScenarioResult {
	t := newT(ctx, sc.Name, r.logger)
	start := time.Now()
	t.run(func(t *T) {
		sc.Run(t, r.session)
	})

	res := &ScenarioResult{
		Name:        sc.Name,
		Description: sc.Description,
		Tags:        sc.Tags,
		Outcome:     t.outcome(),
		Reason:      t.reason,
		Errors:      t.errors,
		Logs:        t.logs,
		Exchanges:   t.exchanges,
		Duration:    time.Since(start),
	}

	r.logger.WithFields(logrus.Fields{
		"scenario": sc.Name,
		"outcome":  res.Outcome,
		"duration": res.Duration.String(),
	}).Info("scenario finished")
	return res
}

func notRun(sc Scenario, outcome Outcome, reason string) *ScenarioResult {
	return &ScenarioResult{
		Name:        sc.Name,
		Description: sc.Description,
		Tags:        sc.Tags,
		Outcome:     outcome,
		Reason:      reason,
	}
}

func (r *Runner) shouldRun(sc Scenario) bool {
	if r.config.NameFilter != "" {
		if sc.Name == "" || !matchesPattern(sc.Name, r.config.NameFilter) {
			return false
		}
	}

	if len(r.config.TagsFilter) > 0 {
		if !hasAnyTag(sc.Tags, r.config.TagsFilter) {
			return false
		}
	}

	return true
}

// matchesPattern supports a leading and/or trailing * wildcard
func matchesPattern(name, pattern string) bool {
	if pattern == "" {
		return true
	}
	if pattern == "*" {
		return true
	}

	if pattern[0] == '*' && pattern[len(pattern)-1] == '*' {
		substr := pattern[1 : len(pattern)-1]
		for i := 0; i <= len(name)-len(substr); i++ {
			if name[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	}

	if pattern[0] == '*' {
		suffix := pattern[1:]
		return len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix
	}

	if pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(name) >= len(prefix) && name[:len(prefix)] == prefix
	}

	return name == pattern
}

func hasAnyTag(tags []string, filters []string) bool {
	for _, filter := range filters {
		for _, tag := range tags {
			if tag == filter {
				return true
			}
		}
	}
	return false
}
