// Package config loads process-wide policy and connection defaults via
// viper (flags > env > yaml). Configuration is read once per invocation;
// the CLI is single-shot, so there is no reload path.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/openquery/openquery/internal/policy"
)

// Config is the process-wide configuration loaded at startup.
type Config struct {
	ConfigFile string
	StorePath  string
	Format     string
	Verbose    bool

	SafeMode     policy.ModeConfig
	StandardMode policy.ModeConfig
}

// Load reads configuration from cfgFile (or "$HOME/.openquery/config.yaml"
// if empty), layered under flag/env overrides already bound into v, and
// applies any mode-threshold overrides on top of the built-in defaults.
func Load(v *viper.Viper, cfgFile string) (Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolving home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".openquery"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("OPENQUERY")
	v.AutomaticEnv()

	// A missing config file is not an error; every setting has a built-in
	// default.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := Config{
		ConfigFile: v.ConfigFileUsed(),
		StorePath:  v.GetString("store_path"),
		Format:     v.GetString("format"),
		Verbose:    v.GetBool("verbose"),

		SafeMode:     applyModeOverrides(policy.SafeDefaults, v, "modes.safe"),
		StandardMode: applyModeOverrides(policy.StandardDefaults, v, "modes.standard"),
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	return cfg, nil
}

func applyModeOverrides(base policy.ModeConfig, v *viper.Viper, prefix string) policy.ModeConfig {
	if v.IsSet(prefix + ".require_explain") {
		base.RequireExplain = v.GetBool(prefix + ".require_explain")
	}
	if v.IsSet(prefix + ".enforce_limit") {
		base.EnforceLimit = v.GetBool(prefix + ".enforce_limit")
	}
	if v.IsSet(prefix + ".max_estimated_rows") {
		base.MaxEstimatedRows = v.GetInt64(prefix + ".max_estimated_rows")
	}
	if v.IsSet(prefix + ".max_estimated_cost") {
		base.MaxEstimatedCost = v.GetFloat64(prefix + ".max_estimated_cost")
	}
	if v.IsSet(prefix + ".max_joins") {
		base.MaxJoins = v.GetInt(prefix + ".max_joins")
	}
	if v.IsSet(prefix + ".default_limit") {
		base.DefaultLimit = v.GetInt64(prefix + ".default_limit")
	}
	if v.IsSet(prefix + ".max_limit") {
		base.MaxLimit = v.GetInt64(prefix + ".max_limit")
	}
	if v.IsSet(prefix + ".blocked_tables") {
		base.BlockedTables = v.GetStringSlice(prefix + ".blocked_tables")
	}
	if v.IsSet(prefix + ".disallow_select_star") {
		base.DisallowSelectStar = v.GetBool(prefix + ".disallow_select_star")
	}
	return base
}

