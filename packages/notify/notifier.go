// Package notify posts a run summary to chat webhooks once a run finishes.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/abdul-hamid-achik/apismoke/packages/core/runner"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends notifications for every run
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when a scenario fails
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when nothing failed
	NotifySuccess NotifyOn = "success"
	// NotifyBlocked sends notifications when the target could not be tested
	NotifyBlocked NotifyOn = "blocked"
)

// ParseNotifyOn accepts always, failure, success or blocked
func ParseNotifyOn(s string) (NotifyOn, error) {
	switch on := NotifyOn(strings.ToLower(strings.TrimSpace(s))); on {
	case NotifyAlways, NotifyFailure, NotifySuccess, NotifyBlocked:
		return on, nil
	case "":
		return NotifyFailure, nil
	default:
		return "", fmt.Errorf("unknown notify policy %q (want always, failure, success or blocked)", s)
	}
}

// RunSummary is the part of a run result a notification carries
type RunSummary struct {
	RunID         string         `json:"run_id"`
	Target        string         `json:"target"`
	Total         int            `json:"total"`
	Passed        int            `json:"passed"`
	Failed        int            `json:"failed"`
	Skipped       int            `json:"skipped"`
	XFailed       int            `json:"xfailed"`
	Duration      time.Duration  `json:"duration"`
	Environment   string         `json:"environment,omitempty"`
	Blocked       string         `json:"blocked,omitempty"`
	FailedResults []FailedResult `json:"failed_results,omitempty"`
}

// FailedResult is one failed scenario
type FailedResult struct {
	Name   string   `json:"name"`
	Errors []string `json:"errors,omitempty"`
}

// Summarize condenses a run result. Blocked holds the probe reason when
// the probe stopped the run.
func Summarize(result *runner.RunResult, environment string) *RunSummary {
	s := &RunSummary{
		RunID:       result.RunID,
		Target:      result.Target,
		Total:       result.Total(),
		Passed:      result.Passed,
		Failed:      result.Failed,
		Skipped:     result.Skipped,
		XFailed:     result.XFailed,
		Duration:    result.Duration,
		Environment: environment,
	}
	if pr := result.Probe; pr != nil && !pr.Proceeding() {
		s.Blocked = pr.Reason
	}
	for _, res := range result.Failures() {
		s.FailedResults = append(s.FailedResults, FailedResult{Name: res.Name, Errors: res.Errors})
	}
	return s
}

func (s *RunSummary) title() string {
	switch {
	case s.Failed > 0:
		return fmt.Sprintf("%d scenario(s) failed", s.Failed)
	case s.Blocked != "":
		return "Target could not be tested"
	default:
		return "All scenarios passed"
	}
}

// Notifier is the interface for notification services
type Notifier interface {
	Notify(summary *RunSummary) error
	Name() string
}

// Manager fans a summary out to every notifier its policy allows
type Manager struct {
	notifiers []Notifier
	notifyOn  NotifyOn
}

// NewManager creates a new notification manager
func NewManager(notifyOn NotifyOn, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
	}
}

// AddNotifier adds a notifier to the manager
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Len is the number of registered notifiers
func (m *Manager) Len() int {
	return len(m.notifiers)
}

// ShouldNotify applies the policy to a summary
func (m *Manager) ShouldNotify(summary *RunSummary) bool {
	switch m.notifyOn {
	case NotifyAlways:
		return true
	case NotifyFailure:
		return summary.Failed > 0
	case NotifySuccess:
		return summary.Failed == 0 && summary.Blocked == ""
	case NotifyBlocked:
		return summary.Blocked != ""
	}
	return false
}

// Notify sends the summary to every notifier when the policy allows it.
// Every notifier is tried even after one fails.
func (m *Manager) Notify(summary *RunSummary) error {
	if !m.ShouldNotify(summary) {
		return nil
	}

	var failed []string
	for _, n := range m.notifiers {
		if err := n.Notify(summary); err != nil {
			failed = append(failed, errors.Wrap(err, n.Name()).Error())
		}
	}
	if len(failed) > 0 {
		return errors.New("notify: " + strings.Join(failed, "; "))
	}
	return nil
}
