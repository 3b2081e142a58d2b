package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"refinery/internal/config"
	"refinery/internal/services/llm"
	"refinery/internal/testsupport"
)

type cliEnv struct {
	cfg        *config.Config
	configPath string
	service    *testsupport.FakeService
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("REFINERY_WORKDIR", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := testsupport.NewConfig(t, opts...)
	return &cliEnv{
		cfg:        cfg,
		configPath: writeTestConfig(t, cfg),
		service: &testsupport.FakeService{
			Reply: func(call int, _ llm.Request) (string, error) {
				return fmt.Sprintf("claim number%03d holds", call), nil
			},
		},
	}
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "refinery.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, args, e.configPath, e.service)
}

func runCLI(t *testing.T, args []string, configPath string, svc llm.Service) (string, string, error) {
	t.Helper()
	factory := func(context.Context, *config.Config) (llm.Service, error) {
		if svc == nil {
			return nil, fmt.Errorf("no text service in this test")
		}
		return svc, nil
	}
	cmd := newRootCommand(withServiceFactory(factory))
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
