package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/apismoke/packages/core/config"
	"github.com/abdul-hamid-achik/apismoke/packages/core/runner"
	"github.com/abdul-hamid-achik/apismoke/packages/export/metrics"
	apihttp "github.com/abdul-hamid-achik/apismoke/packages/http"
	"github.com/abdul-hamid-achik/apismoke/packages/notify"
	"github.com/abdul-hamid-achik/apismoke/packages/output"
	"github.com/abdul-hamid-achik/apismoke/packages/scenarios"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the smoke and contract scenarios",
	Long: `Probe the target once, then run every selected scenario against it.

A blocked (403, 429, 5xx) or unreachable target skips the whole run, or
xfails it with --strict. Skips and xfails do not fail the run.

Examples:
  apismoke run
  apismoke run --tags smoke
  apismoke run --name "login*" -v
  apismoke run --base-url http://localhost:3000 --strict
  apismoke run -o junit --output-file report.xml
  apismoke run --parallel --concurrency 4 --metrics-file metrics.json`,
	Args: cobra.NoArgs,
	RunE: runCommand,
}

var (
	runSettings settingsFlags

	nameFlag        string
	tagsFlag        string
	bailFlag        bool
	parallelFlag    bool
	concurrencyFlag int
	noProbeFlag     bool
	outputFlag      string
	outputFileFlag  string

	// Metrics flags
	metricsFileFlag    string
	prometheusFileFlag string
	prometheusAddrFlag string
	datadogAPIKeyFlag  string
	datadogSiteFlag    string
	datadogTagsFlag    string

	// Notification flags
	slackWebhookFlag string
	slackChannelFlag string
	teamsWebhookFlag string
	notifyOnFlag     string
	notifyEnvFlag    string
)

func init() {
	runSettings.register(runCmd)

	runCmd.Flags().StringVarP(&nameFlag, "name", "n", "", "Run only scenarios matching name pattern (leading/trailing * allowed)")
	runCmd.Flags().StringVarP(&tagsFlag, "tags", "t", getEnvString("APISMOKE_TAGS", ""), "Run only scenarios with any of these tags (comma-separated) (env: APISMOKE_TAGS)")
	runCmd.Flags().BoolVar(&bailFlag, "bail", getEnvBool("APISMOKE_BAIL", false), "Stop on first failure (env: APISMOKE_BAIL)")
	runCmd.Flags().BoolVarP(&parallelFlag, "parallel", "p", getEnvBool("APISMOKE_PARALLEL", false), "Run scenarios in parallel (env: APISMOKE_PARALLEL)")
	runCmd.Flags().IntVar(&concurrencyFlag, "concurrency", getEnvInt("APISMOKE_CONCURRENCY", config.DefaultConcurrency), "Number of concurrent scenarios when running in parallel (env: APISMOKE_CONCURRENCY)")
	runCmd.Flags().BoolVar(&noProbeFlag, "no-probe", false, "Skip the reachability probe and always run scenarios")

	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("APISMOKE_OUTPUT", ""), "Output format: console, json, junit, tap (env: APISMOKE_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("APISMOKE_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: APISMOKE_OUTPUT_FILE)")

	runCmd.Flags().StringVar(&metricsFileFlag, "metrics-file", getEnvString("APISMOKE_METRICS_FILE", ""), "Write a JSON metrics summary to this file (env: APISMOKE_METRICS_FILE)")
	runCmd.Flags().StringVar(&prometheusFileFlag, "prometheus-file", getEnvString("APISMOKE_PROMETHEUS_FILE", ""), "Write Prometheus textfile metrics to this file (env: APISMOKE_PROMETHEUS_FILE)")
	runCmd.Flags().StringVar(&prometheusAddrFlag, "prometheus-listen", getEnvString("APISMOKE_PROMETHEUS_LISTEN", ""), "Serve /metrics on this address while the run lasts (env: APISMOKE_PROMETHEUS_LISTEN)")
	runCmd.Flags().StringVar(&datadogAPIKeyFlag, "datadog-api-key", getEnvString("DD_API_KEY", ""), "Push metrics to DataDog with this API key (env: DD_API_KEY)")
	runCmd.Flags().StringVar(&datadogSiteFlag, "datadog-site", getEnvString("DD_SITE", "datadoghq.com"), "DataDog site (env: DD_SITE)")
	runCmd.Flags().StringVar(&datadogTagsFlag, "datadog-tags", getEnvString("DD_TAGS", ""), "Comma-separated DataDog tags (env: DD_TAGS)")

	runCmd.Flags().StringVar(&slackWebhookFlag, "slack-webhook", getEnvString("APISMOKE_SLACK_WEBHOOK", ""), "Post a run summary to this Slack webhook (env: APISMOKE_SLACK_WEBHOOK)")
	runCmd.Flags().StringVar(&slackChannelFlag, "slack-channel", getEnvString("APISMOKE_SLACK_CHANNEL", ""), "Slack channel override (env: APISMOKE_SLACK_CHANNEL)")
	runCmd.Flags().StringVar(&teamsWebhookFlag, "teams-webhook", getEnvString("APISMOKE_TEAMS_WEBHOOK", ""), "Post a run summary to this Teams webhook (env: APISMOKE_TEAMS_WEBHOOK)")
	runCmd.Flags().StringVar(&notifyOnFlag, "notify-on", getEnvString("APISMOKE_NOTIFY_ON", "failure"), "When to notify: always, failure, success, blocked (env: APISMOKE_NOTIFY_ON)")
	runCmd.Flags().StringVar(&notifyEnvFlag, "notify-env", getEnvString("APISMOKE_NOTIFY_ENV", ""), "Environment name shown in notifications (env: APISMOKE_NOTIFY_ENV)")
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := runSettings.load(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return withExitCode(ExitConfigError, err)
	}
	logger := runSettings.logger(cfg)

	ctx, stop := signal.NotifyContext(runContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier, err := buildNotifier()
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	collector, err := buildCollector(logger)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	var clientOpts []apihttp.ClientOption
	if collector != nil {
		clientOpts = append(clientOpts, apihttp.WithObserver(collector.ObserveAttempt))
	}
	session := runner.NewSession(cfg, logger, clientOpts...)
	defer session.Close()

	rc := &runner.Config{
		NameFilter:  nameFlag,
		TagsFilter:  splitList(tagsFlag),
		Parallel:    cfg.GetParallel(),
		Concurrency: cfg.Concurrency,
		Bail:        cfg.GetBail(),
		NoProbe:     noProbeFlag,
	}
	result := runner.NewRunner(session, rc).Run(ctx, scenarios.All())

	if err := writeReports(cmd.OutOrStdout(), cfg, result); err != nil {
		return withExitCode(ExitConfigError, err)
	}

	if collector != nil {
		collector.RecordRun(result)
		if err := collector.Flush(); err != nil {
			logger.WithError(err).Warn("metrics export failed")
		}
		_ = collector.Close()
	}

	if notifier != nil {
		if err := notifier.Notify(notify.Summarize(result, notifyEnvFlag)); err != nil {
			logger.WithError(err).Warn("notification failed")
		}
	}

	if !result.Success() {
		return withExitCode(ExitTestFailure, nil)
	}
	return nil
}

// applyRunFlags layers run-only flags over the loaded config and checks
// the reporters before anything is sent.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	if changed("parallel") || parallelFlag {
		cfg.Parallel = config.BoolPtr(parallelFlag)
	}
	if changed("concurrency") || os.Getenv("APISMOKE_CONCURRENCY") != "" {
		cfg.Concurrency = concurrencyFlag
	}
	if changed("bail") || bailFlag {
		cfg.Bail = config.BoolPtr(bailFlag)
	}
	if outputFlag != "" {
		cfg.Reporters = []string{outputFlag}
	}
	for _, format := range cfg.Reporters {
		if _, err := output.New(format, output.Options{Writer: io.Discard}); err != nil {
			return err
		}
	}
	return nil
}

// writeReports renders the result once per configured reporter. The first
// reporter goes to --output-file or stdout; the others are written into
// OutputDir.
func writeReports(stdout io.Writer, cfg *config.Config, result *runner.RunResult) error {
	reporters := cfg.Reporters
	if len(reporters) == 0 {
		reporters = []string{output.FormatConsole}
	}

	for i, format := range reporters {
		var w io.Writer = stdout
		var file *os.File
		var path string

		switch {
		case i == 0 && outputFileFlag != "":
			path = outputFileFlag
		case i > 0:
			path = filepath.Join(cfg.OutputDir, "apismoke-report."+reportExt(format))
		}
		if path != "" {
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create output directory: %w", err)
				}
			}
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("cannot create output file: %w", err)
			}
			file, w = f, f
		}

		formatter, err := output.New(format, output.Options{
			Writer:  w,
			Verbose: cfg.GetVerbose(),
			NoColor: cfg.GetNoColor() || file != nil,
		})
		if err == nil {
			err = output.Emit(formatter, version, result)
		}
		if file != nil {
			if cerr := file.Close(); err == nil {
				err = cerr
			}
		}
		if err != nil {
			return fmt.Errorf("error writing %s output: %w", format, err)
		}
	}
	return nil
}

func reportExt(format string) string {
	switch strings.ToLower(format) {
	case output.FormatJUnit:
		return "xml"
	case output.FormatJSON:
		return "json"
	case output.FormatTAP:
		return "tap"
	default:
		return "txt"
	}
}

func buildCollector(logger *logrus.Entry) (*metrics.Collector, error) {
	var exporters []metrics.Exporter
	if metricsFileFlag != "" {
		exporters = append(exporters, metrics.NewJSONExporter(metrics.WithJSONFile(metricsFileFlag)))
	}
	if prometheusFileFlag != "" || prometheusAddrFlag != "" {
		opts := []metrics.PrometheusOption{metrics.WithPrometheusLogger(logger)}
		if prometheusFileFlag != "" {
			opts = append(opts, metrics.WithPrometheusTextfile(prometheusFileFlag))
		}
		if prometheusAddrFlag != "" {
			opts = append(opts, metrics.WithPrometheusHTTP(prometheusAddrFlag))
		}
		prom, err := metrics.NewPrometheusExporter(opts...)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, prom)
	}
	if datadogAPIKeyFlag != "" {
		exporters = append(exporters, metrics.NewDataDogExporter(
			metrics.WithDataDogAPIKey(datadogAPIKeyFlag),
			metrics.WithDataDogSite(datadogSiteFlag),
			metrics.WithDataDogTags(splitList(datadogTagsFlag)),
		))
	}
	if len(exporters) == 0 {
		return nil, nil
	}
	return metrics.NewCollector(exporters...), nil
}

func buildNotifier() (*notify.Manager, error) {
	on, err := notify.ParseNotifyOn(notifyOnFlag)
	if err != nil {
		return nil, err
	}
	m := notify.NewManager(on)
	if slackWebhookFlag != "" {
		m.AddNotifier(notify.NewSlackNotifier(slackWebhookFlag, notify.WithSlackChannel(slackChannelFlag)))
	}
	if teamsWebhookFlag != "" {
		m.AddNotifier(notify.NewTeamsNotifier(teamsWebhookFlag))
	}
	if m.Len() == 0 {
		return nil, nil
	}
	return m, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// runContext is cmd.Context with a fallback for direct invocation in tests
func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
