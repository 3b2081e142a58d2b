package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"refinery/internal/config"
	"refinery/internal/journal"
	"refinery/internal/pipeline"
	"refinery/internal/preflight"
)

type runFlags struct {
	target      int
	batchSize   int
	delay       float64
	stages      int
	concurrency int
	noResume    bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate and refine batches until the final stage holds the target item count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg, flags); err != nil {
				return err
			}
			return runPipeline(cmd, ctx, cfg)
		},
	}

	cmd.Flags().IntVar(&flags.target, "target", 0, "Total refined items to reach (overrides pipeline.target_total)")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", 0, "Items per generated batch (1-50)")
	cmd.Flags().Float64Var(&flags.delay, "delay", 0, "Seconds between remote calls (0.1-10)")
	cmd.Flags().IntVar(&flags.stages, "stages", 0, "Number of refinement stages")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "Items refined in parallel within a batch")
	cmd.Flags().BoolVar(&flags.noResume, "no-resume", false, "Do not finish batches left over from an earlier run")
	return cmd
}

// applyRunFlags copies explicitly set flags over cfg and validates the result.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, flags runFlags) error {
	changed := cmd.Flags().Changed
	if changed("target") {
		cfg.Pipeline.TargetTotal = flags.target
	}
	if changed("batch-size") {
		cfg.Pipeline.BatchSize = flags.batchSize
	}
	if changed("delay") {
		cfg.Pipeline.CallDelaySeconds = flags.delay
	}
	if changed("stages") {
		cfg.Pipeline.Stages = flags.stages
	}
	if changed("concurrency") {
		cfg.Pipeline.Concurrency = flags.concurrency
	}
	if flags.noResume {
		cfg.Pipeline.Resume = false
	}
	return cfg.Validate()
}

func runPipeline(cmd *cobra.Command, ctx *commandContext, cfg *config.Config) error {
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg, nil)); len(failed) > 0 {
		return fmt.Errorf("preflight failed: %s", describeFailures(failed))
	}

	ws := pipeline.NewWorkspace(cfg)
	lock, err := ws.Lock()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := ctx.openRemote(runCtx, cfg)
	if err != nil {
		return err
	}
	defer deps.release()

	controller := pipeline.NewController(
		ws,
		deps.store,
		deps.generator(cfg),
		deps.runner(cfg),
		deps.refiner(cfg),
		pipeline.SettingsFrom(cfg),
		deps.logger,
	)
	if path := strings.TrimSpace(cfg.Paths.Journal); path != "" {
		jrn, err := journal.Open(path)
		if err != nil {
			return err
		}
		defer jrn.Close()
		controller.Journal = jrn
	}

	summary, runErr := controller.Run(runCtx)
	out := cmd.OutOrStdout()
	printRunSummary(out, summary, runErr, ctx.logPath, shouldColorize(out))

	if runErr != nil && summary.Interrupted && pipeline.IsInterrupted(runErr) {
		fmt.Fprintf(out, "Interrupted with %d/%d items complete; run again to continue.\n", summary.Completed, summary.Target)
		return nil
	}
	return runErr
}

func printRunSummary(out io.Writer, summary pipeline.Summary, runErr error, logPath string, colorize bool) {
	writeSectionHeader(out, "Run summary", colorize)

	kind := statusOK
	message := fmt.Sprintf("%d/%d items", summary.Completed, summary.Target)
	switch {
	case summary.Interrupted:
		kind = statusWarn
		message += " (interrupted)"
	case runErr != nil:
		kind = statusError
		message += " (aborted)"
	case !summary.Reached():
		kind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Progress", kind, message, colorize))
	fmt.Fprintln(out, renderStatusLine("Batches", statusInfo, fmt.Sprintf("%d processed, %d succeeded, %d failed, %d resumed",
		summary.BatchesProcessed, summary.BatchesSucceeded, summary.BatchesFailed, summary.BatchesResumed), colorize))
	fmt.Fprintln(out, renderStatusLine("Duration", statusInfo, summary.Duration.String(), colorize))
	if summary.RunID != "" {
		fmt.Fprintln(out, renderStatusLine("Run ID", statusInfo, summary.RunID, colorize))
	}
	if logPath != "" {
		fmt.Fprintln(out, renderStatusLine("Log file", statusInfo, logPath, colorize))
	}
}

func describeFailures(results []preflight.Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Name+": "+r.Detail)
	}
	return strings.Join(parts, "; ")
}
