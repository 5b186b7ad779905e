package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/apismoke/packages/core/config"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration",
	Long: `Initialize apismoke in the current directory.

This creates:
  - apismoke.yaml  - Configuration file with the default settings
  - .env.example   - The environment variables apismoke reads

Examples:
  apismoke init
  apismoke init --force`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

const envExample = `# Target
API_BASE=https://reqres.in
# API_KEY=
# API_HEADERS=X-Team:qa,X-Trace:on
# API_PROXY=http://proxy.local:8080

# Client policy
API_TIMEOUT=15
API_PROBE_TIMEOUT=10
API_RETRIES=3
API_BACKOFF_FACTOR=0.5
API_CONNECTION=close
API_VALIDATE_SSL=true

# Session behavior when the target is blocked or unreachable
API_STRICT=0
API_SKIP_ON_403=1

LOG_LEVEL=warn
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return withExitCode(ExitIOError, err)
	}

	configFile := filepath.Join(cwd, "apismoke.yaml")
	envFile := filepath.Join(cwd, ".env.example")

	if !forceInit {
		for _, f := range []string{configFile, envFile} {
			if _, err := os.Stat(f); err == nil {
				return withExitCode(ExitConfigError, fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	cfg := config.DefaultConfig()
	cfg.OutputDir = "reports"
	if err := cfg.SaveConfig(configFile); err != nil {
		return withExitCode(ExitIOError, fmt.Errorf("failed to create config file: %w", err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.WriteFile(envFile, []byte(envExample), 0644); err != nil {
		return withExitCode(ExitIOError, fmt.Errorf("failed to create env example: %w", err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", envFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\napismoke initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'apismoke probe' to check the target, then 'apismoke run'.\n")

	return nil
}
