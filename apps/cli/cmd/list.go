package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/apismoke/packages/scenarios"
	"github.com/abdul-hamid-achik/apismoke/packages/schema"
)

var (
	listTagsFlag      string
	listContractsFlag bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all scenarios",
	Long: `List the scenarios apismoke runs, with their tags.

Examples:
  apismoke list
  apismoke list --tags auth
  apismoke list --contracts`,
	Args: cobra.NoArgs,
	RunE: listCommand,
}

func init() {
	listCmd.Flags().StringVarP(&listTagsFlag, "tags", "t", "", "List only scenarios with any of these tags (comma-separated)")
	listCmd.Flags().BoolVar(&listContractsFlag, "contracts", false, "List the endpoint contracts responses are validated against")
}

func listCommand(cmd *cobra.Command, args []string) error {
	if listContractsFlag {
		return listContracts(cmd)
	}

	tags := splitList(listTagsFlag)
	for _, sc := range scenarios.All() {
		if len(tags) > 0 && !hasAny(sc.HasTag, tags) {
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", sc.Name)
		if sc.Description != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "    %s\n", sc.Description)
		}
		if len(sc.Tags) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "    tags: %s\n", strings.Join(sc.Tags, ", "))
		}
	}
	return nil
}

func hasAny(has func(string) bool, tags []string) bool {
	for _, t := range tags {
		if has(t) {
			return true
		}
	}
	return false
}

func listContracts(cmd *cobra.Command) error {
	for _, c := range schema.Contracts {
		status := "2xx"
		if c.ForError {
			status = "4xx"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %-6s %-16s %s  %s\n", c.Method, c.Path, status, c.Name)
	}
	return nil
}
