package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"refinery/internal/config"
	"refinery/internal/pipeline"
	"refinery/internal/stage"
)

func newRefineCommand(ctx *commandContext) *cobra.Command {
	var delay float64

	cmd := &cobra.Command{
		Use:   "refine <input-dir> <output-dir>",
		Short: "Run one refinement pass over every batch in a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("delay") {
				cfg.Pipeline.CallDelaySeconds = delay
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			inDir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			outDir, err := config.ExpandPath(args[1])
			if err != nil {
				return err
			}

			if ws := pipeline.NewWorkspace(cfg); withinDir(ws.Root, outDir) {
				lock, err := ws.Lock()
				if err != nil {
					return err
				}
				defer func() { _ = lock.Unlock() }()
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := ctx.openRemote(runCtx, cfg)
			if err != nil {
				return err
			}
			defer deps.release()

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			total, err := deps.runner(cfg).Run(runCtx, inDir, outDir, deps.refiner(cfg))
			out := cmd.OutOrStdout()
			if err != nil {
				if stage.IsCancellation(err) && runCtx.Err() != nil {
					fmt.Fprintf(out, "Interrupted after %d refined items; completed batches are in %s\n", total, outDir)
					return nil
				}
				return err
			}
			fmt.Fprintf(out, "Refined %d items from %s into %s\n", total, inDir, outDir)
			return nil
		},
	}

	cmd.Flags().Float64Var(&delay, "delay", 0, "Seconds between remote calls (0.1-10)")
	return cmd
}

// withinDir reports whether path is dir or lies below it.
func withinDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
