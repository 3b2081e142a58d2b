package main

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"refinery/internal/config"
	"refinery/internal/generator"
	"refinery/internal/itemstore"
	"refinery/internal/refine"
	"refinery/internal/retry"
	"refinery/internal/services/llm"
	"refinery/internal/stage"
)

// remoteDeps bundles what every service-backed command shares. One pacer
// spaces every remote call of the process, generation and refinement alike.
type remoteDeps struct {
	logger   *slog.Logger
	service  llm.Service
	executor *retry.Executor
	pacer    *rate.Limiter
	store    *itemstore.Store
	release  func()
}

func (c *commandContext) openRemote(ctx context.Context, cfg *config.Config) (*remoteDeps, error) {
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	svc, release, err := c.openService(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &remoteDeps{
		logger:   logger,
		service:  svc,
		executor: retry.NewExecutor(retry.PolicyFrom(cfg), logger),
		pacer:    retry.NewPacer(cfg.CallDelay()),
		store:    itemstore.New(),
		release:  release,
	}, nil
}

func (d *remoteDeps) refiner(cfg *config.Config) *refine.Refiner {
	return refine.New(d.service, d.executor, d.pacer, cfg.Refinement, d.logger)
}

func (d *remoteDeps) generator(cfg *config.Config) *generator.Generator {
	source := generator.NewLLMSource(d.service, d.executor, d.pacer, cfg.Generation, d.logger)
	return generator.New(source, d.logger)
}

func (d *remoteDeps) runner(cfg *config.Config) *stage.Runner {
	return stage.NewRunner(d.store, cfg.Pipeline.Concurrency, d.logger)
}
