package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"refinery/internal/itemstore"
	"refinery/internal/journal"
	"refinery/internal/pipeline"
	"refinery/internal/services"
	"refinery/internal/testsupport"
)

func TestRunReachesTarget(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "Run summary")
	requireContains(t, out, "4/4 items")
	requireContains(t, out, "2 processed, 2 succeeded, 0 failed")

	count, err := itemstore.New().CountItems(env.cfg.StageDir(2))
	if err != nil {
		t.Fatalf("count terminal: %v", err)
	}
	if count != 4 {
		t.Fatalf("terminal items = %d, want 4", count)
	}
	// two batches, each two generations plus two refinements per stage
	if got := env.service.Calls(); got != 12 {
		t.Fatalf("service calls = %d, want 12", got)
	}

	entries, err := testsupport.MustOpenJournal(t, env.cfg).Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("journal recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("journal entries = %d, want 2", len(entries))
	}
	for _, entry := range entries {
		if entry.Status != journal.StatusCompleted || entry.Stage != 2 {
			t.Fatalf("unexpected journal entry %+v", entry)
		}
	}
}

func TestRunAlreadyCompleteMakesNoCalls(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithTarget(2))
	testsupport.WriteBatch(t, env.cfg.StageDir(2), 1, 2, "done")

	out, _, err := env.run(t, "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "2/2 items")
	if env.service.Calls() != 0 {
		t.Fatalf("expected no service calls, got %d", env.service.Calls())
	}
}

func TestRunFlagsOverrideConfig(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "run", "--target", "1", "--batch-size", "1", "--stages", "1", "--no-resume")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "1/1 items")
	count, err := itemstore.New().CountItems(env.cfg.StageDir(1))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("stage 1 items = %d, want 1", count)
	}
	if _, err := os.Stat(env.cfg.StageDir(2)); !os.IsNotExist(err) {
		t.Fatalf("stage 2 should not exist with --stages 1, stat err = %v", err)
	}
}

func TestRunRejectsOutOfRangeFlags(t *testing.T) {
	env := setupCLITestEnv(t)
	for _, args := range [][]string{
		{"run", "--batch-size", "51"},
		{"run", "--delay", "0.01"},
		{"run", "--stages", "0"},
	} {
		if _, _, err := env.run(t, args...); err == nil {
			t.Fatalf("%v: expected validation error", args)
		}
	}
	if env.service.Calls() != 0 {
		t.Fatalf("no calls expected, got %d", env.service.Calls())
	}
}

func TestRunRequiresAPIKey(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithoutAPIKey())

	_, _, err := env.run(t, "run")
	if err == nil {
		t.Fatal("expected missing api key error")
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	requireContains(t, err.Error(), "api_key")
}

func TestRunRefusesLockedWorkspace(t *testing.T) {
	env := setupCLITestEnv(t)
	lock, err := pipeline.NewWorkspace(env.cfg).Lock()
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer lock.Unlock()

	_, _, err = env.run(t, "run")
	if !errors.Is(err, pipeline.ErrWorkspaceLocked) {
		t.Fatalf("expected ErrWorkspaceLocked, got %v", err)
	}
}

func TestGenerateWritesNextBatch(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteBatch(t, env.cfg.StageDir(1), 4, 1, "old")

	out, _, err := env.run(t, "generate", "--size", "3")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	requireContains(t, out, "Wrote 3 items")
	requireContains(t, out, "batch_005.json")

	items, err := itemstore.New().LoadBatch(env.cfg.Paths.BootstrapDir, "batch_005.json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}
	for _, item := range items {
		if !item.CreatedAt.Equal(items[0].CreatedAt) {
			t.Fatalf("items should share one timestamp: %v vs %v", item.CreatedAt, items[0].CreatedAt)
		}
	}

	if _, _, err := env.run(t, "generate", "--batch-id", "5"); err == nil {
		t.Fatal("expected error when the batch already exists")
	}
}

func TestGenerateRefusesLockedWorkspace(t *testing.T) {
	env := setupCLITestEnv(t)
	lock, err := pipeline.NewWorkspace(env.cfg).Lock()
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer lock.Unlock()

	_, _, err = env.run(t, "generate", "--size", "1")
	if !errors.Is(err, pipeline.ErrWorkspaceLocked) {
		t.Fatalf("expected ErrWorkspaceLocked, got %v", err)
	}
	if env.service.Calls() != 0 {
		t.Fatalf("no calls expected while locked, got %d", env.service.Calls())
	}
}

func TestGenerateRejectsIDUsedByAnyStage(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteBatch(t, env.cfg.StageDir(2), 3, 1, "refined")

	_, _, err := env.run(t, "generate", "--batch-id", "3")
	if err == nil {
		t.Fatal("expected error for an id present in a stage directory")
	}
	requireContains(t, err.Error(), "batch_003.json already exists")
	if itemstore.New().Exists(env.cfg.Paths.BootstrapDir, "batch_003.json") {
		t.Fatal("no raw batch should be written")
	}
}

func TestRefineIntoLockedWorkspace(t *testing.T) {
	env := setupCLITestEnv(t)
	in := filepath.Join(testsupport.BaseDir(env.cfg), "in")
	testsupport.WriteBatch(t, in, 1, 1, "raw")
	lock, err := pipeline.NewWorkspace(env.cfg).Lock()
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer lock.Unlock()

	_, _, err = env.run(t, "refine", in, env.cfg.StageDir(1))
	if !errors.Is(err, pipeline.ErrWorkspaceLocked) {
		t.Fatalf("expected ErrWorkspaceLocked, got %v", err)
	}
}

func TestWithinDir(t *testing.T) {
	cases := []struct {
		dir, path string
		want      bool
	}{
		{"/work", "/work", true},
		{"/work", "/work/responses/1", true},
		{"/work", "/workshop", false},
		{"/work", "/other/out", false},
		{"/work", "/..data", false},
	}
	for _, tc := range cases {
		if got := withinDir(tc.dir, tc.path); got != tc.want {
			t.Fatalf("withinDir(%q, %q) = %v, want %v", tc.dir, tc.path, got, tc.want)
		}
	}
}

func TestRefineCommandProcessesDirectory(t *testing.T) {
	env := setupCLITestEnv(t)
	env.service.Reply = nil
	in := filepath.Join(testsupport.BaseDir(env.cfg), "in")
	out := filepath.Join(testsupport.BaseDir(env.cfg), "out")
	testsupport.WriteBatch(t, in, 1, 2, "raw")
	testsupport.WriteBatch(t, in, 2, 1, "raw")

	stdout, _, err := env.run(t, "refine", in, out)
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	requireContains(t, stdout, "Refined 3 items")

	store := itemstore.New()
	for _, name := range []string{"batch_001.json", "batch_002.json"} {
		if !store.Exists(out, name) {
			t.Fatalf("expected %s in output", name)
		}
	}
	items, err := store.LoadBatch(out, "batch_001.json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if items[0].Text != "reply 1" || items[1].Text != "reply 2" {
		t.Fatalf("unexpected refined texts %q, %q", items[0].Text, items[1].Text)
	}
	if items[0].Category != "philosophy" {
		t.Fatalf("category changed to %q", items[0].Category)
	}
}

func TestRefineCommandMissingInput(t *testing.T) {
	env := setupCLITestEnv(t)
	in := filepath.Join(testsupport.BaseDir(env.cfg), "missing")
	out := filepath.Join(testsupport.BaseDir(env.cfg), "out")

	_, _, err := env.run(t, "refine", in, out)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStatusShowsStagesAndCategories(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteBatch(t, env.cfg.Paths.BootstrapDir, 1, 2, "raw")
	testsupport.WriteBatch(t, env.cfg.Paths.BootstrapDir, 2, 2, "raw")
	testsupport.WriteBatch(t, env.cfg.StageDir(1), 1, 2, "one")
	testsupport.WriteBatch(t, env.cfg.StageDir(2), 1, 2, "two")

	out, _, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "bootstrap")
	requireContains(t, out, "stage 2")
	requireContains(t, out, "2/4 items (50.0%)")
	requireContains(t, out, "Unfinished batches")
	requireContains(t, out, "Philosophy")
	if env.service.Calls() != 0 {
		t.Fatalf("status without --check must not call the service")
	}
}

func TestStatusEmptyWorkspace(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "0/4 items")
	requireContains(t, out, "no refined items yet")
}

func TestStatusCheck(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "status", "--check")
	if err != nil {
		t.Fatalf("status --check: %v", err)
	}
	requireContains(t, out, "Checks")
	requireContains(t, out, "Text service")
	if env.service.Calls() != 1 {
		t.Fatalf("expected one preflight call, got %d", env.service.Calls())
	}

	missing := setupCLITestEnv(t, testsupport.WithoutAPIKey())
	out, _, err = missing.run(t, "status", "--check")
	if err == nil {
		t.Fatal("expected failed checks without api key")
	}
	requireContains(t, out, "API key")
}

func TestHistoryAfterRun(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithTarget(2))

	out, _, err := env.run(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No batches recorded yet")

	if _, _, err := env.run(t, "run"); err != nil {
		t.Fatalf("run: %v", err)
	}
	out, _, err = env.run(t, "history", "--limit", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "Runs")
	requireContains(t, out, "completed")
}

func TestConfigCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(testsupport.BaseDir(env.cfg), "sample", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", nil)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration to")
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", nil); err == nil {
		t.Fatal("expected error when the file exists without --overwrite")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, "", nil); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	out, _, err = env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Config path: "+env.configPath)
	requireContains(t, out, "Configuration valid")

	out, _, err = env.run(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[pipeline]")
	requireContains(t, out, "********")
}
