package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openquery/openquery/internal/config"
	"github.com/openquery/openquery/internal/logging"
	"github.com/openquery/openquery/internal/store"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "openquery",
	Short: "A local-first SQL copilot with a guarded-execution pipeline for PostgreSQL",
	Long: `openquery parses, classifies, and validates SQL before it ever touches
your database. Reads are gated by a plan-cost EXPLAIN probe and a row cap;
writes require an explicit preview, a typed confirmation phrase, and leave
an append-only audit trail. Ask a question in plain English and it proposes
SQL through the same pipeline every hand-typed statement goes through.`,
}

// Execute is called by main.main(). It adds all child commands to the root
// command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if appConfig.Format == "json" {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			_ = enc.Encode(errorEnvelope(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.openquery/config.yaml)")
	rootCmd.PersistentFlags().StringP("format", "f", "text", "Output format: text, plain, json, markdown")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Show additional debug info")
	rootCmd.PersistentFlags().String("store", "", "Path to the local store database file (default is $HOME/.openquery/openquery.db)")

	viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("store_path", rootCmd.PersistentFlags().Lookup("store"))
}

func initConfig() {
	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	appConfig = cfg
}

var appConfig config.Config

// openStore opens the local store at the configured (or default) path,
// creating its parent directory if necessary.
func openStore(ctx context.Context) (*store.Store, error) {
	path := appConfig.StorePath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		path = store.DefaultPath(home)
	}
	if err := os.MkdirAll(parentDir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return store.Open(ctx, path)
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if os.IsPathSeparator(path[i]) {
			return path[:i]
		}
	}
	return "."
}

func logger() *slog.Logger {
	return logging.New(appConfig.Verbose)
}
