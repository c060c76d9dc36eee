package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openquery/openquery/internal/llm"
	"github.com/openquery/openquery/internal/orchestrator"
	"github.com/openquery/openquery/internal/secret"
)

var askCmd = &cobra.Command{
	Use:          "ask QUESTION",
	Short:        "Ask a question in plain English and run the generated SQL through the guarded pipeline",
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
		execute, _ := cmd.Flags().GetBool("execute")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		model, _ := cmd.Flags().GetString("model")

		p, err := resolveProfile(ctx, s, profileName)
		if err != nil {
			return err
		}

		apiKey, err := secret.LLMAPIKey()
		if err != nil {
			return usageError("%s", err)
		}

		conn, err := connectProfile(ctx, p, password)
		if err != nil {
			return err
		}
		defer conn.Close(ctx)

		logger().Debug("generating plan", "profile", p.Name, "model", model)

		gen := llm.NewOpenAIGenerator(llm.WithModel(model), llm.WithAPIKey(apiKey), llm.WithTimeout(2*time.Minute))
		repairer, err := llm.NewRepairer(gen)
		if err != nil {
			return internalError(err)
		}

		orch := newOrchestrator(s)
		outcome := orch.AskAndMaybeRun(ctx, conn, repairer, orchestrator.AskRequest{
			Profile:    p,
			Question:   args[0],
			Mode:       modeFor(p),
			Execute:    execute,
			DryRun:     dryRun,
			ProfileCfg: profileCfgFor(p),
		})
		renderer().RenderAsk(outcome)

		switch outcome.Status {
		case orchestrator.StatusBlocked:
			return policyError(outcome.Reason, nil)
		case orchestrator.StatusError:
			return runtimeError(fmt.Errorf("%s", outcome.Reason))
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("profile", "", "Profile to run against (default: active profile)")
	askCmd.Flags().String("password", "", "Database password (prompted if omitted)")
	askCmd.Flags().Bool("execute", false, "Execute a generated read statement immediately")
	askCmd.Flags().Bool("dry-run", false, "Generate and persist the plan without executing it")
	askCmd.Flags().String("model", "gpt-4o", "LLM model to use")

	rootCmd.AddCommand(askCmd)
}
