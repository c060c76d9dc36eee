package cmd

import (
	"github.com/spf13/cobra"

	"github.com/openquery/openquery/internal/store"
)

var auditCmd = &cobra.Command{
	Use:          "audit",
	Short:        "List append-only audit events",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return internalError(err)
		}
		defer s.Close()

		eventType, _ := cmd.Flags().GetString("type")
		profileName, _ := cmd.Flags().GetString("profile")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.AuditFilter{Type: eventType, Limit: limit}
		if profileName != "" {
			p, err := s.GetProfileByName(ctx, profileName)
			if err != nil {
				return usageError("profile %q not found", profileName)
			}
			filter.ProfileID = p.ID
		}

		events, err := s.ListAudit(ctx, filter)
		if err != nil {
			return runtimeError(err)
		}
		renderer().RenderAudit(events)
		return nil
	},
}

func init() {
	auditCmd.Flags().String("type", "", "Filter by audit event type")
	auditCmd.Flags().String("profile", "", "Filter by profile name")
	auditCmd.Flags().Int("limit", 200, "Maximum number of events to show")
	rootCmd.AddCommand(auditCmd)
}
