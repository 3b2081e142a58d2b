package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"refinery/internal/itemstore"
	"refinery/internal/pipeline"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var size int
	var batchID int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one raw batch into the bootstrap directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("size") {
				size = cfg.Pipeline.BatchSize
			}
			if size < 1 {
				return fmt.Errorf("--size must be at least 1, got %d", size)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := ctx.openRemote(runCtx, cfg)
			if err != nil {
				return err
			}
			defer deps.release()

			ws := pipeline.NewWorkspace(cfg)
			lock, err := ws.Lock()
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()
			if err := ws.Ensure(); err != nil {
				return err
			}
			if !cmd.Flags().Changed("batch-id") {
				maxID, err := deps.store.MaxBatchID(ws.Dirs()...)
				if err != nil {
					return err
				}
				batchID = maxID + 1
			}
			if batchID < 1 {
				return fmt.Errorf("--batch-id must be positive, got %d", batchID)
			}
			filename := itemstore.BatchFilename(batchID)
			for _, dir := range ws.Dirs() {
				if deps.store.Exists(dir, filename) {
					return fmt.Errorf("batch %s already exists in %s", filename, dir)
				}
			}

			items, err := deps.generator(cfg).Generate(runCtx, size)
			if err != nil {
				return err
			}
			if err := deps.store.SaveBatch(items, ws.BootstrapDir(), filename); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d items to %s\n", len(items), filepath.Join(ws.BootstrapDir(), filename))
			return nil
		},
	}

	cmd.Flags().IntVar(&size, "size", 0, "Items to generate (defaults to pipeline.batch_size)")
	cmd.Flags().IntVar(&batchID, "batch-id", 0, "Batch id to write (defaults to the next free id)")
	return cmd
}
