package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autojp/autojp/cmd/autojp/internal/format"
	"github.com/autojp/autojp/pkg/config"
	"github.com/autojp/autojp/pkg/n8n"
	"github.com/autojp/autojp/pkg/pipeline"
)

// NewRunCommand builds the 'run' command: one full orchestrator pass over
// the given product types.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run the pipeline once for the given product types",
		GroupID: "pipeline",
		RunE:    runOnce,
	}

	cmd.Flags().String("product-type-ids", "", "Comma-separated product type ids (required)")
	cmd.Flags().Int("max-retries", 2, "Maximum transient-failure retries per stage")
	cmd.Flags().Int("retry-backoff-seconds", 2, "Base backoff before the first retry")
	cmd.Flags().Int("stage-timeout-seconds", 600, "Timeout for a single stage invocation")
	cmd.Flags().Int("concurrency", 4, "Product types evaluated in parallel")
	cmd.Flags().String("run-id", "", "Run correlation id (generated when empty)")
	cmd.Flags().String("trace-id", "", "Trace correlation id (generated when empty)")
	cmd.Flags().Bool("dry-run", false, "Decide next actions without invoking stages or writing state")

	_ = cmd.MarkFlagRequired("product-type-ids")

	return cmd
}

func runOnce(cmd *cobra.Command, _ []string) error {
	formatter := format.FromCommand(cmd)

	manager, err := managerFromCommand(cmd)
	if err != nil {
		return formatTotalFailure(formatter, "run", err)
	}

	cfg := manager.Get()
	applyRunFlags(cmd, &cfg)

	rawIDs, _ := cmd.Flags().GetString("product-type-ids")
	ids, err := parseEntityIDs(rawIDs)
	if err != nil {
		return formatTotalFailure(formatter, "run", err)
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if !dryRun {
		if err := manager.ValidateForRun(); err != nil {
			return formatTotalFailure(formatter, "run", err)
		}
	}

	orchestrator, err := buildOrchestrator(cfg, dryRun)
	if err != nil {
		return formatTotalFailure(formatter, "run", err)
	}

	runID, _ := cmd.Flags().GetString("run-id")
	traceID, _ := cmd.Flags().GetString("trace-id")
	rc := n8n.NewRunContext(runID, traceID)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("run_id", rc.RunID).Ints("product_type_ids", ids).Msg("starting orchestrator run")
	summary := orchestrator.Run(ctx, ids, rc)

	if err := formatter.PrintRunSummary(format.RunSummaryView{Summary: summary}); err != nil {
		return err
	}

	return runLevelFault(ids, summary)
}

// runLevelFault reports whether the run as a whole accomplished nothing:
// every entity either hit a state-write failure (undetermined) or failed
// without a single stage invocation reaching the workflow engine. Both
// mean the backing services are down, which must surface as a non-zero
// exit even though individual entity failures are isolated and do not.
func runLevelFault(ids []int, summary pipeline.Summary) error {
	if len(ids) == 0 {
		return nil
	}
	undetermined := summary.Counts[pipeline.OutcomeUndetermined]
	unreachable := len(summary.Unreachable)
	if undetermined+unreachable < len(ids) {
		return nil
	}
	switch {
	case unreachable == 0:
		return fmt.Errorf("run-level fault: no product type could be evaluated (state store unreachable)")
	case undetermined == 0:
		return fmt.Errorf("run-level fault: stage trigger unreachable, no product type executed")
	default:
		return fmt.Errorf("run-level fault: no product type could be evaluated (state store or stage trigger unreachable)")
	}
}

// applyRunFlags overlays per-run tunables the operator set on the
// command line onto the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("max-retries") {
		cfg.Run.MaxRetries, _ = cmd.Flags().GetInt("max-retries")
	}
	if cmd.Flags().Changed("retry-backoff-seconds") {
		cfg.Run.RetryBackoffSeconds, _ = cmd.Flags().GetInt("retry-backoff-seconds")
	}
	if cmd.Flags().Changed("stage-timeout-seconds") {
		cfg.Run.StageTimeoutSeconds, _ = cmd.Flags().GetInt("stage-timeout-seconds")
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Run.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
}

func formatTotalFailure(f format.Formatter, operation string, err error) error {
	_ = f.PrintTotalFailure(operation, err)
	return err
}
