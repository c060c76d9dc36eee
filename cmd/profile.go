package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openquery/openquery/internal/store"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage connection profiles",
}

var profileListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List connection profiles",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return internalError(err)
		}
		defer s.Close()

		profiles, err := s.ListProfiles(ctx)
		if err != nil {
			return runtimeError(err)
		}
		active, _ := s.ActiveProfile(ctx)
		renderer().RenderProfiles(profiles, active.ID)
		return nil
	},
}

var profileCreateCmd = &cobra.Command{
	Use:          "create NAME",
	Short:        "Create a new connection profile",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return internalError(err)
		}
		defer s.Close()

		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		database, _ := cmd.Flags().GetString("database")
		user, _ := cmd.Flags().GetString("user")
		ssl, _ := cmd.Flags().GetBool("ssl")
		mode, _ := cmd.Flags().GetString("mode")

		if host == "" || database == "" || user == "" {
			return usageError("--host, --database, and --user are required")
		}

		p, err := s.CreateProfile(ctx, store.ProfileSpec{
			Name:     args[0],
			Dialect:  "postgres",
			Host:     host,
			Port:     port,
			Database: database,
			User:     user,
			SSL:      ssl,
			Mode:     mode,
		})
		if err != nil {
			return runtimeError(err)
		}
		fmt.Fprintf(stdout, "created profile %q (id %s)\n", p.Name, p.ID)
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:          "delete NAME",
	Short:        "Delete a connection profile",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return internalError(err)
		}
		defer s.Close()

		if err := s.DeleteProfile(ctx, args[0]); err != nil {
			return usageError("%s", err)
		}
		fmt.Fprintf(stdout, "deleted profile %q\n", args[0])
		return nil
	},
}

var profileSetActiveCmd = &cobra.Command{
	Use:          "set-active NAME",
	Short:        "Set the active connection profile",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return internalError(err)
		}
		defer s.Close()

		if err := s.SetActiveProfile(ctx, args[0]); err != nil {
			return usageError("%s", err)
		}
		fmt.Fprintf(stdout, "active profile is now %q\n", args[0])
		return nil
	},
}

var powerCmd = &cobra.Command{
	Use:          "power NAME",
	Short:        "Enable or disable write/dangerous POWER on a profile",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return internalError(err)
		}
		defer s.Close()

		var allowWrite, allowDangerous *bool
		if cmd.Flags().Changed("write") {
			v, _ := cmd.Flags().GetBool("write")
			allowWrite = &v
		}
		if cmd.Flags().Changed("dangerous") {
			v, _ := cmd.Flags().GetBool("dangerous")
			allowDangerous = &v
		}
		var confirmPhrase *string
		if cmd.Flags().Changed("confirm-phrase") {
			v, _ := cmd.Flags().GetString("confirm-phrase")
			confirmPhrase = &v
		}

		if allowWrite == nil && allowDangerous == nil && confirmPhrase == nil {
			return usageError("pass at least one of --write, --dangerous, --confirm-phrase")
		}

		if err := s.UpdatePower(ctx, args[0], allowWrite, allowDangerous, confirmPhrase); err != nil {
			return usageError("%s", err)
		}
		fmt.Fprintf(stdout, "updated POWER settings for %q\n", args[0])
		return nil
	},
}

func init() {
	profileCreateCmd.Flags().String("host", "", "Database host")
	profileCreateCmd.Flags().Int("port", 5432, "Database port")
	profileCreateCmd.Flags().String("database", "", "Database name")
	profileCreateCmd.Flags().String("user", "", "Database user")
	profileCreateCmd.Flags().Bool("ssl", false, "Require SSL")
	profileCreateCmd.Flags().String("mode", "safe", "Policy mode: safe or standard")

	powerCmd.Flags().Bool("write", false, "Allow write statements")
	powerCmd.Flags().Bool("dangerous", false, "Allow dangerous (DROP/TRUNCATE) statements")
	powerCmd.Flags().String("confirm-phrase", "", "Custom write confirmation phrase")

	profileCmd.AddCommand(profileListCmd, profileCreateCmd, profileDeleteCmd, profileSetActiveCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(powerCmd)
}
