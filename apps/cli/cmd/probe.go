package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/apismoke/packages/core/runner"
)

var probeSettings settingsFlags

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check whether the target can be tested",
	Long: `Send the single reachability request a run would send and print the
decision: proceed, skip or xfail.

Exits 0 when scenarios would run and 4 otherwise.

Examples:
  apismoke probe
  apismoke probe --base-url http://localhost:3000
  apismoke probe --strict`,
	Args: cobra.NoArgs,
	RunE: probeCommand,
}

func init() {
	probeSettings.register(probeCmd)
}

func probeCommand(cmd *cobra.Command, args []string) error {
	cfg, err := probeSettings.load(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(runContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := runner.NewSession(cfg, probeSettings.logger(cfg))
	defer session.Close()
	pr := session.RunProbe(ctx)

	out := cmd.OutOrStdout()
	noColor := cfg.GetNoColor()
	green := colorizer(noColor, color.FgGreen)
	yellow := colorizer(noColor, color.FgYellow)
	bold := colorizer(noColor, color.Bold)

	fmt.Fprintf(out, "%s %s\n", bold("Target:"), pr.Target)
	fmt.Fprintf(out, "%s %s", bold("Status:"), pr.Status)
	if pr.StatusCode != 0 {
		fmt.Fprintf(out, " (HTTP %d)", pr.StatusCode)
	}
	fmt.Fprintf(out, " in %dms\n", pr.Duration.Milliseconds())

	if pr.Proceeding() {
		fmt.Fprintf(out, "%s %s\n", bold("Decision:"), green(string(pr.Decision)))
		return nil
	}
	fmt.Fprintf(out, "%s %s\n", bold("Decision:"), yellow(string(pr.Decision)))
	fmt.Fprintf(out, "%s %s\n", bold("Reason:"), pr.Reason)
	return withExitCode(ExitNetworkError, nil)
}

func colorizer(noColor bool, attrs ...color.Attribute) func(a ...interface{}) string {
	c := color.New(attrs...)
	if noColor {
		c.DisableColor()
	}
	return c.SprintFunc()
}
