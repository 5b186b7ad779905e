package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/apismoke/packages/core/runner"
)

// Formats accepted by New
const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatJUnit   = "junit"
	FormatTAP     = "tap"
)

// Formatter interface for all output formatters
type Formatter interface {
	FormatResult(result *runner.RunResult)
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable is implemented by formatters that buffer until the run is over
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

// Options are shared by every formatter New can build
type Options struct {
	Writer  io.Writer
	Verbose bool
	NoColor bool
}

// New builds the formatter for format. An empty format means console.
func New(format string, opts Options) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatConsole:
		consoleOpts := []ConsoleOption{WithVerbose(opts.Verbose), WithNoColor(opts.NoColor)}
		if opts.Writer != nil {
			consoleOpts = append(consoleOpts, WithWriter(opts.Writer))
		}
		return NewConsoleFormatter(consoleOpts...), nil
	case FormatJSON:
		var jsonOpts []JSONOption
		if opts.Writer != nil {
			jsonOpts = append(jsonOpts, JSONWithWriter(opts.Writer))
		}
		return NewJSONFormatter(jsonOpts...), nil
	case FormatJUnit:
		var junitOpts []JUnitOption
		if opts.Writer != nil {
			junitOpts = append(junitOpts, JUnitWithWriter(opts.Writer))
		}
		return NewJUnitFormatter(junitOpts...), nil
	case FormatTAP:
		var tapOpts []TAPOption
		if opts.Writer != nil {
			tapOpts = append(tapOpts, TAPWithWriter(opts.Writer))
		}
		return NewTAPFormatter(tapOpts...), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want console, json, junit or tap)", format)
	}
}

// Emit writes a complete report: header, results and, for buffering
// formatters, the flushed document.
func Emit(f Formatter, version string, result *runner.RunResult) error {
	f.FormatHeader(version)
	f.FormatResult(result)
	if fl, ok := f.(Flushable); ok {
		return fl.Flush(result.Duration)
	}
	return nil
}

// shown reports whether a skip reason is worth printing
func shown(reason string) bool {
	return reason != "" && reason != runner.ReasonFilteredOut
}

func failureText(r *runner.ScenarioResult) string {
	return strings.Join(r.Errors, "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
