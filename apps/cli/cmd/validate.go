package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var validateSettings settingsFlags

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	Long: `Resolve defaults, config file, .env files, environment and flags, check
the result and print it as YAML. Nothing is sent to the target.

Exits 3 when the configuration is invalid.

Examples:
  apismoke validate
  apismoke validate --config apismoke.yaml
  API_TIMEOUT=0 apismoke validate`,
	Args: cobra.NoArgs,
	RunE: validateCommand,
}

func init() {
	validateSettings.register(validateCmd)
}

func validateCommand(cmd *cobra.Command, args []string) error {
	cfg, err := validateSettings.load(cmd)
	if err != nil {
		return err
	}

	shown := *cfg
	if shown.APIKey != "" {
		shown.APIKey = "********"
	}
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("render config: %w", err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Valid configuration:\n\n%s", data)
	return nil
}
