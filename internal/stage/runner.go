package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"refinery/internal/itemstore"
	"refinery/internal/logging"
	"refinery/internal/services"
)

// Transform rewrites one item. Implementations route remote calls through
// the retry executor; the runner itself never retries.
type Transform interface {
	Apply(ctx context.Context, item itemstore.WorkItem) (itemstore.WorkItem, error)
}

// TransformFunc adapts a function to Transform.
type TransformFunc func(ctx context.Context, item itemstore.WorkItem) (itemstore.WorkItem, error)

// Apply calls f(ctx, item).
func (f TransformFunc) Apply(ctx context.Context, item itemstore.WorkItem) (itemstore.WorkItem, error) {
	return f(ctx, item)
}

// Spec describes one stage hop from InDir to OutDir.
type Spec struct {
	// Label names the stage in logs ("1", "2", ... or a directory name).
	Label     string
	InDir     string
	OutDir    string
	Transform Transform
	// SkipExisting leaves a batch alone when OutDir already holds a file of
	// the same name with as many records as the input.
	SkipExisting bool
}

// Runner applies a Transform to whole batches.
type Runner struct {
	Store       *itemstore.Store
	Concurrency int
	Logger      *slog.Logger
}

// NewRunner builds a runner with at least one worker.
func NewRunner(store *itemstore.Store, concurrency int, logger *slog.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		Store:       store,
		Concurrency: concurrency,
		Logger:      logging.NewComponentLogger(logger, "stage"),
	}
}

// Run processes every batch in inDir into outDir under the same file names and
// returns the number of items written. The first failing batch stops the run.
func (r *Runner) Run(ctx context.Context, inDir, outDir string, transform Transform) (int, error) {
	names, err := r.Store.ListBatches(inDir)
	if err != nil {
		return 0, err
	}
	if len(names) == 0 {
		return 0, services.New(services.KindNotFound, "stage run", "no batch files in "+inDir)
	}
	spec := Spec{Label: outDir, InDir: inDir, OutDir: outDir, Transform: transform}
	total := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := r.RunBatch(ctx, spec, name)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// RunBatch transforms InDir/filename into OutDir/filename. Output order
// matches input order; on any item failure nothing is written and the error
// is returned.
func (r *Runner) RunBatch(ctx context.Context, spec Spec, filename string) (int, error) {
	if spec.Transform == nil {
		return 0, services.New(services.KindFatal, "stage run", "transform is required")
	}
	if r.Store == nil {
		return 0, services.New(services.KindFatal, "stage run", "item store is required")
	}

	stageCtx := services.WithStage(ctx, spec.Label)
	if id, ok := itemstore.ParseBatchID(filename); ok {
		stageCtx = services.WithBatchID(stageCtx, id)
	}
	logger := logging.WithContext(stageCtx, r.logger())

	inputs, err := r.Store.LoadBatch(spec.InDir, filename)
	if err != nil {
		logger.Error("stage failed",
			logging.Event("stage_failure"),
			logging.String("file", filename),
			logging.Kind(err),
			logging.Error(err),
			logging.Hint("inspect or remove the malformed input batch"),
		)
		return 0, err
	}

	if spec.SkipExisting && r.Store.Exists(spec.OutDir, filename) {
		if n, err := r.Store.BatchLen(spec.OutDir, filename); err == nil && n == len(inputs) {
			logger.Info("stage skipped; output already present",
				logging.Event("stage_skip"),
				logging.String("file", filename),
				logging.Int("items", n),
			)
			return n, nil
		}
	}

	started := time.Now()
	logger.Info("stage started",
		logging.Event("stage_start"),
		logging.String("file", filename),
		logging.Int("items", len(inputs)),
		logging.Int("concurrency", r.workers()),
	)

	outputs, err := r.transformAll(stageCtx, logger, spec, inputs)
	if err != nil {
		logger.Error("stage failed",
			logging.Event("stage_failure"),
			logging.String("file", filename),
			logging.Kind(err),
			logging.Error(err),
			logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
		)
		return 0, err
	}

	if err := r.Store.SaveBatch(outputs, spec.OutDir, filename); err != nil {
		logger.Error("stage failed",
			logging.Event("stage_failure"),
			logging.String("file", filename),
			logging.Error(err),
			logging.Hint("check free space and permissions on the stage directory"),
		)
		return 0, err
	}

	logger.Info("stage completed",
		logging.Event("stage_complete"),
		logging.String("file", filename),
		logging.Int("items", len(outputs)),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
	)
	return len(outputs), nil
}

// transformAll runs up to Concurrency transforms at once and places each
// result at its input index. The first error cancels the remaining work.
func (r *Runner) transformAll(ctx context.Context, logger *slog.Logger, spec Spec, inputs []itemstore.WorkItem) ([]itemstore.WorkItem, error) {
	outputs := make([]itemstore.WorkItem, len(inputs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.workers())

	var (
		mu      sync.Mutex
		done    int
		sampler = logging.NewProgressSampler(10)
	)
	for i := range inputs {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			input := inputs[i]
			out, err := spec.Transform.Apply(groupCtx, input)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			// Only text may change downstream of generation.
			out.Category = input.Category
			out.CreatedAt = input.CreatedAt
			outputs[i] = out

			mu.Lock()
			done++
			if sampler.ShouldLog(spec.Label, done, len(inputs)) {
				logger.Debug("stage progress",
					logging.Int("done", done),
					logging.Int("total", len(inputs)),
					logging.Float64("progress", logging.Percent(done, len(inputs))),
				)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outputs, nil
}

func (r *Runner) workers() int {
	if r.Concurrency < 1 {
		return 1
	}
	return r.Concurrency
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.NewNop()
	}
	return r.Logger
}

// IsCancellation reports whether err stems from context cancellation rather
// than a stage failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
