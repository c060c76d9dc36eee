package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openquery/openquery/internal/executor"
	"github.com/openquery/openquery/internal/orchestrator"
	"github.com/openquery/openquery/internal/policy"
	"github.com/openquery/openquery/internal/preview"
	"github.com/openquery/openquery/internal/sqlast"
)

var runCmd = &cobra.Command{
	Use:          "run SQL",
	Short:        "Validate, gate, and run (or preview) a SQL statement",
	Args:         cobra.ExactArgs(1),
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
		rawParams, _ := cmd.Flags().GetStringArray("param")

		p, err := resolveProfile(ctx, s, profileName)
		if err != nil {
			return err
		}

		conn, err := connectProfile(ctx, p, password)
		if err != nil {
			return err
		}
		defer conn.Close(ctx)

		logger().Debug("running statement", "profile", p.Name, "mode", p.Mode)

		orch := newOrchestrator(s)
		outcome := orch.RunSQL(ctx, conn, args[0], modeFor(p), bindParams(rawParams), p.ID, profileCfgFor(p), p.PowerConfirmPhrase)
		renderer().RenderRun(outcome)

		if outcome.Status == orchestrator.StatusBlocked {
			return policyError(outcome.Reason, map[string]any{"classification": outcome.Classification, "kind": outcome.Kind})
		}
		if outcome.Status == orchestrator.StatusError {
			return runtimeError(fmt.Errorf("%s", outcome.Reason))
		}
		return nil
	},
}

var confirmCmd = &cobra.Command{
	Use:          "confirm SQL",
	Short:        "Confirm and execute a previously previewed write statement",
	Args:         cobra.ExactArgs(1),
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
		phrase, _ := cmd.Flags().GetString("phrase")
		dangerousPhrase, _ := cmd.Flags().GetString("dangerous-phrase")
		rawParams, _ := cmd.Flags().GetStringArray("param")
		params := bindParams(rawParams)

		p, err := resolveProfile(ctx, s, profileName)
		if err != nil {
			return err
		}
		if !p.AllowWrite {
			return usageError("profile %q does not have write POWER enabled", p.Name)
		}

		conn, err := connectProfile(ctx, p, password)
		if err != nil {
			return err
		}
		defer conn.Close(ctx)

		parsed, err := sqlast.Parse(args[0])
		if err != nil {
			return usageError("%s", err)
		}
		modeCfg := appConfig.SafeMode
		if modeFor(p) == policy.ModeStandard {
			modeCfg = appConfig.StandardMode
		}
		if result := policy.New(profileCfgFor(p), modeCfg).Validate(parsed); !result.Allowed {
			return policyError(result.Reason, map[string]any{"classification": result.Classification, "kind": result.Kind})
		}
		pv, err := preview.Build(ctx, conn, parsed, params, p.PowerConfirmPhrase)
		if err != nil {
			return runtimeError(err)
		}
		if err := s.RecordAuditEvent(ctx, executor.PreviewedEvent(p.ID, pv, args[0])); err != nil {
			return internalError(err)
		}
		renderer().RenderPreview(pv)

		orch := newOrchestrator(s)
		outcome, err := orch.ConfirmAndExecuteWrite(ctx, conn, p.ID, pv, args[0], params, phrase, dangerousPhrase)
		if err != nil {
			return policyError(err.Error(), nil)
		}
		fmt.Fprintf(stdout, "executed: %d row(s) affected in %dms\n", outcome.RowsAffected, outcome.ExecMs)
		return nil
	},
}

// bindParams converts repeated --param values into driver arguments for
// $1..$n. Values are passed as text; the server's input conversion applies.
func bindParams(raw []string) []any {
	if len(raw) == 0 {
		return nil
	}
	params := make([]any, len(raw))
	for i, v := range raw {
		params[i] = v
	}
	return params
}

func init() {
	runCmd.Flags().String("profile", "", "Profile to run against (default: active profile)")
	runCmd.Flags().String("password", "", "Database password (prompted if omitted)")
	runCmd.Flags().StringArray("param", nil, "Bind parameter value for $1..$n (repeatable)")

	confirmCmd.Flags().String("profile", "", "Profile to run against (default: active profile)")
	confirmCmd.Flags().String("password", "", "Database password (prompted if omitted)")
	confirmCmd.Flags().String("phrase", "", "Typed confirmation phrase")
	confirmCmd.Flags().String("dangerous-phrase", "", "Typed destructive-confirmation phrase")
	confirmCmd.Flags().StringArray("param", nil, "Bind parameter value for $1..$n (repeatable)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(confirmCmd)
}
