package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/apismoke/packages/core/runner"
)

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// paint returns a colorizer for attrs. WithNoColor disables it for this
// formatter only; otherwise fatih/color's terminal detection applies.
func (f *ConsoleFormatter) paint(attrs ...color.Attribute) func(a ...interface{}) string {
	c := color.New(attrs...)
	if f.noColor {
		c.DisableColor()
	}
	return c.SprintFunc()
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatResult(result *runner.RunResult) {
	green := f.paint(color.FgGreen)
	red := f.paint(color.FgRed)
	yellow := f.paint(color.FgYellow)
	magenta := f.paint(color.FgMagenta)
	cyan := f.paint(color.FgCyan)
	bold := f.paint(color.Bold)

	fmt.Fprintf(f.writer, "\n%s\n", bold("Target: "+result.Target))
	if f.verbose && result.RunID != "" {
		fmt.Fprintf(f.writer, "Run:    %s\n", result.RunID)
	}
	if pr := result.Probe; pr != nil {
		if pr.Proceeding() {
			fmt.Fprintf(f.writer, "Probe:  %s %s\n", green(string(pr.Status)), cyan(fmt.Sprintf("(%dms)", pr.Duration.Milliseconds())))
		} else {
			fmt.Fprintf(f.writer, "Probe:  %s\n", yellow(pr.Reason))
		}
	}
	fmt.Fprintf(f.writer, "\n")

	for _, r := range result.Results {
		switch r.Outcome {
		case runner.Skipped:
			fmt.Fprintf(f.writer, "  %s %s", yellow("-"), r.Name)
			if shown(r.Reason) {
				fmt.Fprintf(f.writer, " (%s)", r.Reason)
			}
			fmt.Fprintf(f.writer, "\n")
			continue
		case runner.XFailed:
			fmt.Fprintf(f.writer, "  %s %s %s\n", magenta("x"), r.Name, magenta("(xfail: "+r.Reason+")"))
			continue
		}

		symbol := green("✓")
		if r.Failed() {
			symbol = red("✗")
		}
		timing := fmt.Sprintf("(%dms", r.Duration.Milliseconds())
		if retries := r.Attempts() - len(r.Exchanges); retries > 0 {
			timing += fmt.Sprintf(", %d retries", retries)
		}
		fmt.Fprintf(f.writer, "  %s %s %s\n", symbol, r.Name, cyan(timing+")"))

		if f.verbose {
			for _, ex := range r.Exchanges {
				line := fmt.Sprintf("%s %s -> %d", ex.Method, ex.URL, ex.StatusCode)
				if ex.Error != "" {
					line = fmt.Sprintf("%s %s -> %s", ex.Method, ex.URL, ex.Error)
				}
				fmt.Fprintf(f.writer, "    %s [%d attempt(s), %dms]\n", line, ex.Attempts, ex.Duration.Milliseconds())
			}
		}

		if r.Failed() {
			for _, e := range r.Errors {
				for _, line := range strings.Split(strings.TrimRight(e, "\n"), "\n") {
					fmt.Fprintf(f.writer, "    %s %s\n", red("→"), strings.TrimSpace(line))
				}
			}
		}

		if f.verbose && len(r.Logs) > 0 {
			for _, l := range r.Logs {
				fmt.Fprintf(f.writer, "    %s\n", l)
			}
		}
	}

	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Scenarios: ")
	if result.Passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", result.Passed)))
	}
	if result.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", result.Failed)))
	}
	if result.XFailed > 0 {
		fmt.Fprintf(f.writer, "%s, ", magenta(fmt.Sprintf("%d xfailed", result.XFailed)))
	}
	if result.Skipped > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", result.Skipped)))
	}
	fmt.Fprintf(f.writer, "%d total\n", result.Total())
	fmt.Fprintf(f.writer, "Time:      %dms\n", result.Duration.Milliseconds())
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := f.paint(color.FgRed)
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := f.paint(color.Bold)
	fmt.Fprintf(f.writer, "%s %s\n", bold("apismoke"), version)
}
