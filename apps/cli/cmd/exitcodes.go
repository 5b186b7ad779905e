package cmd

// Exit codes for apismoke CLI
const (
	// ExitSuccess indicates no scenario failed; skips and xfails included
	ExitSuccess = 0

	// ExitTestFailure indicates one or more scenarios failed
	ExitTestFailure = 1

	// ExitIOError indicates a file could not be written or a listener
	// could not be opened
	ExitIOError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates the probe found the target untestable
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
