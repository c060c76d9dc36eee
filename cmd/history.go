package cmd

import (
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:          "history",
	Short:        "List recorded query history",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return internalError(err)
		}
		defer s.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := s.ListHistory(ctx, limit)
		if err != nil {
			return runtimeError(err)
		}
		renderer().RenderHistory(entries)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 50, "Maximum number of entries to show")
	rootCmd.AddCommand(historyCmd)
}
