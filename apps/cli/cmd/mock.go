package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/apismoke/packages/mock"
)

var (
	mockPortFlag        int
	mockDelayFlag       string
	mockVerboseFlag     bool
	mockFaultStatusFlag int
	mockFaultCountFlag  int
	mockRetryAfterFlag  string
	mockRateFlag        float64
	mockBurstFlag       int
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Start a local fake of the user API",
	Long: `Start an HTTP server that behaves like the user-management API:
paged user listing, single users, create/update/delete, login and
register with the same fixed users and error messages.

Faults can be injected to exercise retries and the probe:
- --fault-status answers the next --fault-count requests with that status
  (every request when the count is 0)
- --rate-limit answers 429 once requests exceed the given rate

Examples:
  apismoke mock
  apismoke mock --port 3000 --delay 100ms
  apismoke mock --fault-status 503 --fault-count 2 --retry-after 1
  apismoke mock --fault-status 403
  apismoke mock --rate-limit 2 --burst 3 --verbose`,
	Args: cobra.NoArgs,
	RunE: mockCommand,
}

func init() {
	mockCmd.Flags().IntVarP(&mockPortFlag, "port", "p", 3000, "Port to run the mock server on")
	mockCmd.Flags().StringVarP(&mockDelayFlag, "delay", "d", "0", "Delay to add to all responses (e.g., 100ms, 1s)")
	mockCmd.Flags().BoolVarP(&mockVerboseFlag, "verbose", "v", false, "Enable verbose logging")
	mockCmd.Flags().IntVar(&mockFaultStatusFlag, "fault-status", 0, "Answer requests with this status instead of routing them")
	mockCmd.Flags().IntVar(&mockFaultCountFlag, "fault-count", 0, "How many requests the fault applies to (0 = all)")
	mockCmd.Flags().StringVar(&mockRetryAfterFlag, "retry-after", "", "Retry-After header sent with faults")
	mockCmd.Flags().Float64Var(&mockRateFlag, "rate-limit", 0, "Requests per second before answering 429 (0 = unlimited)")
	mockCmd.Flags().IntVar(&mockBurstFlag, "burst", 5, "Burst allowed by --rate-limit")
}

func mockCommand(cmd *cobra.Command, args []string) error {
	// Parse delay
	var delay time.Duration
	if mockDelayFlag != "0" {
		var err error
		delay, err = time.ParseDuration(mockDelayFlag)
		if err != nil {
			return withExitCode(ExitUsageError, fmt.Errorf("invalid delay value %q: %w", mockDelayFlag, err))
		}
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	opts := []mock.Option{
		mock.WithPort(mockPortFlag),
		mock.WithDelay(delay),
		mock.WithVerbose(mockVerboseFlag),
		mock.WithLogger(logrus.NewEntry(logger)),
	}
	if mockFaultStatusFlag != 0 {
		opts = append(opts, mock.WithFault(mock.Fault{
			Status:     mockFaultStatusFlag,
			Count:      mockFaultCountFlag,
			RetryAfter: mockRetryAfterFlag,
		}))
	}
	if mockRateFlag > 0 {
		opts = append(opts, mock.WithRateLimit(mockRateFlag, mockBurstFlag))
	}

	server := mock.NewServer(opts...)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(runContext(cmd))
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down mock server...")
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %d routes on http://localhost:%d\n", len(server.GetRoutes()), mockPortFlag)
	if err := server.StartWithContext(ctx); err != nil {
		return withExitCode(ExitIOError, err)
	}
	return nil
}
