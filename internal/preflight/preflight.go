package preflight

import (
	"context"

	"refinery/internal/config"
	"refinery/internal/services/llm"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks that apply to cfg. The service check runs only
// when svc is non-nil, since it spends one remote call.
func RunAll(ctx context.Context, cfg *config.Config, svc llm.Service) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckCreatableDirectory("Work directory", cfg.Paths.WorkDir),
		CheckCreatableDirectory("Bootstrap directory", cfg.Paths.BootstrapDir),
		CheckCreatableDirectory("Stages directory", cfg.Paths.StagesDir),
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckCreatableDirectory("Log directory", cfg.Paths.LogDir))
	}

	credentials := CheckCredentials(cfg)
	results = append(results, credentials)
	if svc != nil && credentials.Passed {
		results = append(results, CheckService(ctx, "Text service ("+cfg.LLM.Model+")", svc))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
