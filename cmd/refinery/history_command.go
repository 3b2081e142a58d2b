package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"refinery/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var runs int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs and batch attempts from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := strings.TrimSpace(cfg.Paths.Journal)
			if path == "" {
				return fmt.Errorf("journal disabled (paths.journal is empty)")
			}
			jrn, err := journal.Open(path)
			if err != nil {
				return err
			}
			defer jrn.Close()

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			stats, err := jrn.Runs(cmd.Context(), runs)
			if err != nil {
				return err
			}
			entries, err := jrn.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No batches recorded yet")
				return nil
			}
			writeSectionHeader(out, "Runs", colorize)
			printRuns(out, stats)
			fmt.Fprintln(out)
			writeSectionHeader(out, "Batches", colorize)
			printEntries(out, entries)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Batch attempts to show")
	cmd.Flags().IntVar(&runs, "runs", 10, "Runs to summarize")
	return cmd
}

func printRuns(out io.Writer, stats []journal.RunStats) {
	rows := make([][]string, 0, len(stats))
	for _, run := range stats {
		rows = append(rows, []string{
			shortRunID(run.RunID),
			formatStamp(run.StartedAt),
			strconv.Itoa(run.Batches),
			strconv.Itoa(run.Completed),
			strconv.Itoa(run.Failed),
			strconv.Itoa(run.Items),
			run.EndedAt.Sub(run.StartedAt).Round(time.Second).String(),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Run", "Started", "Batches", "Completed", "Failed", "Items", "Span"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
}

func printEntries(out io.Writer, entries []journal.Entry) {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		detail := entry.ErrorKind
		if entry.Message != "" {
			if detail != "" {
				detail += ": "
			}
			detail += entry.Message
		}
		rows = append(rows, []string{
			strconv.Itoa(entry.BatchID),
			shortRunID(entry.RunID),
			string(entry.Status),
			strconv.Itoa(entry.Stage),
			strconv.Itoa(entry.Items),
			entry.Duration().Round(time.Millisecond).String(),
			formatStamp(entry.FinishedAt),
			detail,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Batch", "Run", "Status", "Stage", "Items", "Took", "Finished", "Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
	))
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatStamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}
