package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"refinery/internal/config"
	"refinery/internal/itemstore"
	"refinery/internal/logging"
	"refinery/internal/pipeline"
	"refinery/internal/preflight"
	"refinery/internal/refine"
	"refinery/internal/services"
	"refinery/internal/services/llm"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-stage progress of the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			ws := pipeline.NewWorkspace(cfg)
			store := itemstore.New()

			if err := printWorkspace(out, ws, store, cfg.Pipeline.TargetTotal, colorize); err != nil {
				return err
			}
			if err := printCategories(out, ws, store, colorize); err != nil {
				return err
			}
			if !check {
				return nil
			}
			return printPreflight(cmd, ctx, cfg, colorize)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Also check directories, credentials and the text service")
	return cmd
}

func printWorkspace(out io.Writer, ws *pipeline.Workspace, store *itemstore.Store, target int, colorize bool) error {
	writeSectionHeader(out, "Workspace", colorize)
	fmt.Fprintln(out, renderStatusLine("Work directory", statusInfo, ws.Root, colorize))

	rows := make([][]string, 0, ws.Stages+1)
	bootstrap, err := store.Stat(ws.BootstrapDir())
	if err != nil {
		return err
	}
	rows = append(rows, []string{"bootstrap", ws.BootstrapDir(), strconv.Itoa(bootstrap.Batches), strconv.Itoa(bootstrap.Items)})
	var terminal itemstore.DirStats
	for k := 1; k <= ws.Stages; k++ {
		stats, err := store.Stat(ws.StageDir(k))
		if err != nil {
			return err
		}
		rows = append(rows, []string{"stage " + strconv.Itoa(k), ws.StageDir(k), strconv.Itoa(stats.Batches), strconv.Itoa(stats.Items)})
		terminal = stats
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Stage", "Directory", "Batches", "Items"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
	))

	kind := statusWarn
	if terminal.Items >= target {
		kind = statusOK
	}
	fmt.Fprintln(out, renderStatusLine("Progress", kind,
		fmt.Sprintf("%d/%d items (%.1f%%)", terminal.Items, target, logging.Percent(terminal.Items, target)), colorize))
	if pending := bootstrap.Batches - terminal.Batches; pending > 0 {
		fmt.Fprintln(out, renderStatusLine("Unfinished batches", statusInfo, strconv.Itoa(pending), colorize))
	}
	return nil
}

type categoryCount struct {
	name  string
	count int
}

func printCategories(out io.Writer, ws *pipeline.Workspace, store *itemstore.Store, colorize bool) error {
	fmt.Fprintln(out)
	writeSectionHeader(out, "Refined categories", colorize)
	items, err := store.LoadDir(ws.TerminalDir())
	if errors.Is(err, services.ErrNotFound) {
		fmt.Fprintln(out, renderStatusLine("Categories", statusInfo, "no refined items yet", colorize))
		return nil
	}
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, item := range items {
		counts[refine.DisplayCategory(item.Category)]++
	}
	list := make([]categoryCount, 0, len(counts))
	for name, count := range counts {
		list = append(list, categoryCount{name: name, count: count})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].count != list[j].count {
			return list[i].count > list[j].count
		}
		return list[i].name < list[j].name
	})

	rows := make([][]string, 0, len(list))
	for _, entry := range list {
		name := entry.name
		if name == "" {
			name = "(none)"
		}
		rows = append(rows, []string{name, strconv.Itoa(entry.count)})
	}
	fmt.Fprintln(out, renderTable([]string{"Category", "Items"}, rows, []columnAlignment{alignLeft, alignRight}))
	return nil
}

func printPreflight(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, colorize bool) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	writeSectionHeader(out, "Checks", colorize)

	var svc llm.Service
	if cfg.RequireAPIKey() == nil {
		service, release, err := ctx.openService(cmd.Context(), cfg)
		if err != nil {
			fmt.Fprintln(out, renderStatusLine("Text service", statusError, err.Error(), colorize))
		} else {
			defer release()
			svc = service
		}
	}

	results := preflight.RunAll(cmd.Context(), cfg, svc)
	for _, result := range results {
		kind := statusOK
		if !result.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}
	if failed := preflight.Failed(results); len(failed) > 0 {
		return fmt.Errorf("%d check(s) failed", len(failed))
	}
	return nil
}
