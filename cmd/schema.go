package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openquery/openquery/internal/store"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect and refresh the cached schema snapshot used by `ask`",
}

var schemaRefreshCmd = &cobra.Command{
	Use:          "refresh",
	Short:        "Crawl the live schema and store a new snapshot",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return internalError(err)
		}
		defer s.Close()

		profileName, _ := cmd.Flags().GetString("profile")
		password, _ := cmd.Flags().GetString("password")

		p, err := resolveProfile(ctx, s, profileName)
		if err != nil {
			return err
		}

		conn, err := connectProfile(ctx, p, password)
		if err != nil {
			return err
		}
		defer conn.Close(ctx)

		logger().Debug("crawling schema", "profile", p.Name)
		crawled, err := conn.CrawlSchema(ctx)
		if err != nil {
			return runtimeError(err)
		}

		tables := make([]store.Table, 0, len(crawled))
		for _, t := range crawled {
			cols := make([]store.Column, 0, len(t.Columns))
			for _, c := range t.Columns {
				cols = append(cols, store.Column{
					Name:         c.Name,
					DataType:     c.DataType,
					Nullable:     c.Nullable,
					IsPrimaryKey: c.IsPrimaryKey,
					Default:      c.Default,
				})
			}
			tables = append(tables, store.Table{Schema: t.Schema, Name: t.Name, RowCountEstimate: t.RowCountEstimate, Columns: cols})
		}

		snap, err := s.StoreSchemaSnapshot(ctx, p.ID, tables)
		if err != nil {
			return runtimeError(err)
		}
		fmt.Fprintf(stdout, "refreshed schema snapshot for %q: %d table(s) captured at %s\n", p.Name, len(snap.Tables), snap.CapturedAt)
		return nil
	},
}

func init() {
	schemaRefreshCmd.Flags().String("profile", "", "Profile to run against (default: active profile)")
	schemaRefreshCmd.Flags().String("password", "", "Database password (prompted if omitted)")

	schemaCmd.AddCommand(schemaRefreshCmd)
	rootCmd.AddCommand(schemaCmd)
}
