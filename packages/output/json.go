package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/apismoke/packages/core/runner"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	RunID     string         `json:"runId,omitempty"`
	Target    string         `json:"target"`
	Probe     *JSONProbe     `json:"probe,omitempty"`
	Summary   JSONSummary    `json:"summary"`
	Scenarios []JSONScenario `json:"scenarios"`
	Duration  float64        `json:"duration"`
	Time      string         `json:"time"`
}

type JSONProbe struct {
	Status     string  `json:"status"`
	StatusCode int     `json:"statusCode,omitempty"`
	Decision   string  `json:"decision"`
	Reason     string  `json:"reason,omitempty"`
	Duration   float64 `json:"duration"`
}

// JSONSummary represents the run summary
type JSONSummary struct {
	Total   int  `json:"total"`
	Passed  int  `json:"passed"`
	Failed  int  `json:"failed"`
	Skipped int  `json:"skipped"`
	XFailed int  `json:"xfailed"`
	Success bool `json:"success"`
}

// JSONScenario represents a single scenario result
type JSONScenario struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Outcome     string         `json:"outcome"`
	Reason      string         `json:"reason,omitempty"`
	Duration    float64        `json:"duration"`
	Attempts    int            `json:"attempts"`
	Errors      []string       `json:"errors,omitempty"`
	Exchanges   []JSONExchange `json:"exchanges,omitempty"`
}

// JSONExchange represents one logical request
type JSONExchange struct {
	Method     string  `json:"method"`
	URL        string  `json:"url"`
	StatusCode int     `json:"statusCode,omitempty"`
	Attempts   int     `json:"attempts"`
	Duration   float64 `json:"duration"`
	Error      string  `json:"error,omitempty"`
}

// JSONFormatter formats run results as JSON
type JSONFormatter struct {
	writer io.Writer
	output JSONOutput
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
		output: JSONOutput{Scenarios: make([]JSONScenario, 0)},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatResult(result *runner.RunResult) {
	f.output.RunID = result.RunID
	f.output.Target = result.Target
	if pr := result.Probe; pr != nil {
		f.output.Probe = &JSONProbe{
			Status:     string(pr.Status),
			StatusCode: pr.StatusCode,
			Decision:   string(pr.Decision),
			Reason:     pr.Reason,
			Duration:   float64(pr.Duration.Milliseconds()),
		}
	}

	for _, r := range result.Results {
		sc := JSONScenario{
			Name:        r.Name,
			Description: r.Description,
			Tags:        r.Tags,
			Outcome:     string(r.Outcome),
			Duration:    float64(r.Duration.Milliseconds()),
			Attempts:    r.Attempts(),
			Errors:      r.Errors,
		}
		if shown(r.Reason) {
			sc.Reason = r.Reason
		}
		for _, ex := range r.Exchanges {
			sc.Exchanges = append(sc.Exchanges, JSONExchange{
				Method:     ex.Method,
				URL:        ex.URL,
				StatusCode: ex.StatusCode,
				Attempts:   ex.Attempts,
				Duration:   float64(ex.Duration.Milliseconds()),
				Error:      ex.Error,
			})
		}
		f.output.Scenarios = append(f.output.Scenarios, sc)

		switch r.Outcome {
		case runner.Passed:
			f.output.Summary.Passed++
		case runner.Failed:
			f.output.Summary.Failed++
		case runner.Skipped:
			f.output.Summary.Skipped++
		case runner.XFailed:
			f.output.Summary.XFailed++
		}
	}
}

func (f *JSONFormatter) FormatError(err error) {
	// Errors are included in individual scenario results
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	f.output.Summary.Total = len(f.output.Scenarios)
	f.output.Summary.Success = f.output.Summary.Failed == 0
	f.output.Duration = float64(totalDuration.Milliseconds())
	f.output.Time = time.Now().Format(time.RFC3339)

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(f.output)
}
