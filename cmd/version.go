package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print openquery version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("openquery %s (commit: %s, built: %s)\n", Version, CommitSHA, BuildDate)
		fmt.Println("dialect: postgres")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
