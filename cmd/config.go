package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openquery/openquery/internal/policy"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the resolved configuration",
}

var configShowCmd = &cobra.Command{
	Use:          "show",
	Short:        "Print the resolved configuration (flags > env > config file > built-in defaults)",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(stdout, "config file: %s\n", appConfig.ConfigFile)
		fmt.Fprintf(stdout, "store path: %s\n", appConfig.StorePath)
		fmt.Fprintf(stdout, "format: %s\n", appConfig.Format)
		fmt.Fprintf(stdout, "verbose: %v\n\n", appConfig.Verbose)

		fmt.Fprintln(stdout, "safe mode:")
		printModeConfig(appConfig.SafeMode)
		fmt.Fprintln(stdout, "\nstandard mode:")
		printModeConfig(appConfig.StandardMode)
		return nil
	},
}

func printModeConfig(m policy.ModeConfig) {
	fmt.Fprintf(stdout, "  require_explain: %v\n", m.RequireExplain)
	fmt.Fprintf(stdout, "  max_estimated_rows: %d\n", m.MaxEstimatedRows)
	fmt.Fprintf(stdout, "  max_estimated_cost: %.0f\n", m.MaxEstimatedCost)
	fmt.Fprintf(stdout, "  max_joins: %d\n", m.MaxJoins)
	fmt.Fprintf(stdout, "  disallow_select_star: %v\n", m.DisallowSelectStar)
	fmt.Fprintf(stdout, "  default_limit: %d\n", m.DefaultLimit)
	fmt.Fprintf(stdout, "  max_limit: %d\n", m.MaxLimit)
	if len(m.BlockedTables) > 0 {
		fmt.Fprintf(stdout, "  blocked_tables: %v\n", m.BlockedTables)
	}
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
