package cmd

import (
	"context"
	"os"

	"github.com/spf13/viper"

	"github.com/openquery/openquery/internal/orchestrator"
	"github.com/openquery/openquery/internal/output"
	"github.com/openquery/openquery/internal/pgsql"
	"github.com/openquery/openquery/internal/policy"
	"github.com/openquery/openquery/internal/secret"
	"github.com/openquery/openquery/internal/store"
)

var stdout = os.Stdout

// resolveProfile returns the profile named by --profile, falling back to
// the process-wide active profile.
func resolveProfile(ctx context.Context, s *store.Store, name string) (store.Profile, error) {
	if name != "" {
		p, err := s.GetProfileByName(ctx, name)
		if err != nil {
			return store.Profile{}, usageError("profile %q not found", name)
		}
		return p, nil
	}
	p, err := s.ActiveProfile(ctx)
	if err != nil {
		return store.Profile{}, usageError("no active profile; use --profile or `openquery profile set-active`")
	}
	return p, nil
}

// connectProfile opens a live connection to a profile, prompting for the
// password unless it was supplied via --password or OPENQUERY_DB_PASSWORD.
func connectProfile(ctx context.Context, p store.Profile, password string) (*pgsql.Conn, error) {
	if password == "" {
		password = viper.GetString("db_password")
	}
	if password == "" {
		password = secret.PromptPassword("Password for " + p.User + "@" + p.Host + ": ")
	}
	conn, err := pgsql.Connect(ctx, pgsql.ConnectionConfig{
		Host:     p.Host,
		Port:     p.Port,
		User:     p.User,
		Password: password,
		Database: p.Database,
		SSL:      p.SSL,
	})
	if err != nil {
		return nil, runtimeError(err)
	}
	return conn, nil
}

// profileCfgFor builds the policy.Config for a profile's current POWER
// flags and mode.
func profileCfgFor(p store.Profile) policy.Config {
	mode := policy.ModeSafe
	if p.Mode == string(policy.ModeStandard) {
		mode = policy.ModeStandard
	}
	return policy.Config{
		Mode:             mode,
		AllowWrite:       p.AllowWrite,
		AllowDestructive: p.AllowDangerous,
	}
}

func modeFor(p store.Profile) policy.Mode {
	if p.Mode == string(policy.ModeStandard) {
		return policy.ModeStandard
	}
	return policy.ModeSafe
}

// newOrchestrator builds an Orchestrator using the process-wide mode
// thresholds resolved from config (flags/env/yaml overrides applied).
func newOrchestrator(s *store.Store) *orchestrator.Orchestrator {
	return orchestrator.NewWithModes(s, appConfig.SafeMode, appConfig.StandardMode)
}

func renderer() output.Renderer {
	return output.NewRenderer(appConfig.Format, stdout)
}
