package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"refinery/internal/config"
	"refinery/internal/itemstore"
	"refinery/internal/journal"
	"refinery/internal/logging"
	"refinery/internal/services"
	"refinery/internal/stage"
)

// BatchGenerator produces the raw items of one new batch.
type BatchGenerator interface {
	Generate(ctx context.Context, size int) ([]itemstore.WorkItem, error)
}

// Recorder receives one entry per attempted batch. *journal.Journal
// satisfies it.
type Recorder interface {
	RecordBatch(ctx context.Context, entry journal.Entry) (int64, error)
}

// Settings holds the control loop parameters.
type Settings struct {
	BatchSize int
	Target    int
	// Resume re-runs batches present in the bootstrap directory but missing
	// from the terminal one before generating new work.
	Resume bool
	// MaxConsecutiveFailures stops the run after that many batches fail in a
	// row. Zero never stops.
	MaxConsecutiveFailures int
}

// SettingsFrom reads the pipeline section of cfg.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		BatchSize:              cfg.Pipeline.BatchSize,
		Target:                 cfg.Pipeline.TargetTotal,
		Resume:                 cfg.Pipeline.Resume,
		MaxConsecutiveFailures: cfg.Pipeline.MaxConsecutiveFailures,
	}
}

// Controller drives batches from generation through every stage until the
// terminal directory holds the target number of items.
type Controller struct {
	Workspace *Workspace
	Store     *itemstore.Store
	Generator BatchGenerator
	Runner    *stage.Runner
	// Transform returns the transform for stage k.
	Transform func(k int) stage.Transform
	Settings  Settings
	Journal   Recorder
	Logger    *slog.Logger
	Clock     func() time.Time
	// OnTransition, when set, observes every state change.
	OnTransition func(Transition)

	state State
}

// NewController wires a controller that applies the same transform at every
// stage.
func NewController(ws *Workspace, store *itemstore.Store, gen BatchGenerator, runner *stage.Runner, transform stage.Transform, settings Settings, logger *slog.Logger) *Controller {
	return &Controller{
		Workspace: ws,
		Store:     store,
		Generator: gen,
		Runner:    runner,
		Transform: func(int) stage.Transform { return transform },
		Settings:  settings,
		Logger:    logging.NewComponentLogger(logger, "pipeline"),
		Clock:     time.Now,
	}
}

// Summary reports the outcome of one Run.
type Summary struct {
	RunID            string
	Completed        int
	Target           int
	BatchesProcessed int
	BatchesSucceeded int
	BatchesFailed    int
	BatchesResumed   int
	Interrupted      bool
	Duration         time.Duration
}

// Reached reports whether the target was met.
func (s Summary) Reached() bool {
	return s.Completed >= s.Target
}

// Run loops until the target is reached, the context is done, or the
// consecutive failure limit trips. Cancellation returns the summary with
// Interrupted set together with the context error.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	if err := c.validate(); err != nil {
		return Summary{}, err
	}
	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, c.logger())
	started := c.now()
	summary := Summary{RunID: runID, Target: c.Settings.Target}
	c.state = StateIdle

	finish := func(progress int) Summary {
		summary.Completed = progress
		summary.Duration = c.now().Sub(started).Round(time.Millisecond)
		return summary
	}

	if err := c.Workspace.Ensure(); err != nil {
		c.transition(StateFailed, 0, 0)
		return finish(0), services.Wrap(services.KindFatal, "pipeline", "prepare workspace", err)
	}
	nextID, err := c.Store.MaxBatchID(c.Workspace.Dirs()...)
	if err != nil {
		c.transition(StateFailed, 0, 0)
		return finish(0), err
	}
	nextID++

	var pending []string
	if c.Settings.Resume {
		if pending, err = c.unfinishedBatches(); err != nil {
			c.transition(StateFailed, 0, 0)
			return finish(0), err
		}
	}

	logger.Info("pipeline started",
		logging.Event("pipeline_start"),
		logging.Int("target", c.Settings.Target),
		logging.Int("batch_size", c.Settings.BatchSize),
		logging.Int("stages", c.Workspace.Stages),
		logging.Int("next_batch_id", nextID),
		logging.Int("resumable_batches", len(pending)),
	)

	consecutive := 0
	for {
		c.transition(StateCounting, 0, 0)
		progress, err := c.Store.CountItems(c.Workspace.TerminalDir())
		if err != nil {
			c.transition(StateFailed, 0, 0)
			return finish(progress), err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return c.interrupted(logger, finish(progress), ctxErr)
		}
		logger.Info("progress",
			logging.Event("progress"),
			logging.Int("completed", progress),
			logging.Int("target", c.Settings.Target),
			logging.Float64("percent", logging.Percent(min(progress, c.Settings.Target), c.Settings.Target)),
		)
		if progress >= c.Settings.Target {
			c.transition(StateDone, 0, 0)
			out := finish(progress)
			logger.Info("target reached",
				logging.Event("pipeline_complete"),
				logging.Int("completed", out.Completed),
				logging.Int("target", out.Target),
				logging.Int("batches_succeeded", out.BatchesSucceeded),
				logging.Int("batches_failed", out.BatchesFailed),
				logging.Duration("elapsed", out.Duration),
			)
			return out, nil
		}

		var result batchResult
		if len(pending) > 0 {
			name := pending[0]
			pending = pending[1:]
			summary.BatchesResumed++
			result = c.resumeBatch(ctx, name)
		} else {
			id := c.claimID(nextID)
			nextID = id + 1
			result = c.freshBatch(ctx, id)
		}

		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(result.err, ctxErr) {
			c.record(ctx, result, journal.StatusInterrupted)
			progress, _ := c.Store.CountItems(c.Workspace.TerminalDir())
			return c.interrupted(logger, finish(progress), ctxErr)
		}

		summary.BatchesProcessed++
		if result.err == nil {
			summary.BatchesSucceeded++
			consecutive = 0
			c.record(ctx, result, journal.StatusCompleted)
			continue
		}

		summary.BatchesFailed++
		consecutive++
		c.record(ctx, result, journal.StatusFailed)
		c.logBatchFailure(ctx, result)
		if limit := c.Settings.MaxConsecutiveFailures; limit > 0 && consecutive >= limit {
			c.transition(StateFailed, 0, result.batchID)
			progress, _ := c.Store.CountItems(c.Workspace.TerminalDir())
			out := finish(progress)
			logger.Error("pipeline stopped after repeated batch failures",
				logging.Event("pipeline_aborted"),
				logging.Int("consecutive_failures", consecutive),
				logging.Int("completed", out.Completed),
				logging.Int("target", out.Target),
				logging.Kind(result.err),
				logging.Error(result.err),
				logging.Hint("check the API key, model name, and service status"),
			)
			return out, fmt.Errorf("%d consecutive batches failed: %w", consecutive, result.err)
		}
	}
}

// State returns the controller's current state.
func (c *Controller) State() State {
	return c.state
}

func (c *Controller) interrupted(logger *slog.Logger, summary Summary, cause error) (Summary, error) {
	c.transition(StateFailed, 0, 0)
	summary.Interrupted = true
	logger.Warn("pipeline interrupted",
		logging.Event("pipeline_interrupted"),
		logging.Int("completed", summary.Completed),
		logging.Int("target", summary.Target),
		logging.Int("batches_succeeded", summary.BatchesSucceeded),
		logging.Hint("run again to resume from the stage directories"),
	)
	return summary, cause
}

func (c *Controller) logBatchFailure(ctx context.Context, result batchResult) {
	logger := logging.WithContext(services.WithBatchID(ctx, result.batchID), c.logger())
	logger.Error("batch failed; continuing with next batch",
		logging.Event("batch_failure"),
		logging.String("file", result.filename),
		logging.Int("stage_reached", result.stage),
		logging.Kind(result.err),
		logging.Error(result.err),
		logging.Hint("the batch stays out of later stage directories"),
	)
}

func (c *Controller) record(ctx context.Context, result batchResult, status journal.Status) {
	if c.Journal == nil {
		return
	}
	entry := journal.Entry{
		RunID:      runIDFrom(ctx),
		BatchID:    result.batchID,
		Stage:      result.stage,
		Status:     status,
		Items:      result.items,
		StartedAt:  result.started,
		FinishedAt: c.now(),
	}
	if result.err != nil && status != journal.StatusCompleted {
		entry.ErrorKind = string(services.KindOf(result.err))
		entry.Message = result.err.Error()
	}
	// The journal must outlive cancellation of the run itself.
	if _, err := c.Journal.RecordBatch(context.WithoutCancel(ctx), entry); err != nil {
		c.logger().Warn("journal write failed",
			logging.Error(err),
			logging.Event("journal_write_failed"),
		)
	}
}

func (c *Controller) transition(to State, stageIndex, batchID int) {
	from := c.state
	c.state = to
	if c.OnTransition != nil {
		c.OnTransition(Transition{From: from, To: to, Stage: stageIndex, Batch: batchID})
	}
}

func (c *Controller) validate() error {
	switch {
	case c.Workspace == nil:
		return services.New(services.KindConfiguration, "pipeline", "workspace is required")
	case c.Store == nil:
		return services.New(services.KindConfiguration, "pipeline", "item store is required")
	case c.Generator == nil:
		return services.New(services.KindConfiguration, "pipeline", "batch generator is required")
	case c.Runner == nil:
		return services.New(services.KindConfiguration, "pipeline", "stage runner is required")
	case c.Transform == nil:
		return services.New(services.KindConfiguration, "pipeline", "stage transform is required")
	case c.Settings.BatchSize < 1:
		return services.New(services.KindConfiguration, "pipeline", "batch size must be positive")
	case c.Settings.Target < 1:
		return services.New(services.KindConfiguration, "pipeline", "target must be positive")
	case c.Workspace.Stages < 1:
		return services.New(services.KindConfiguration, "pipeline", "at least one stage is required")
	}
	return nil
}

func (c *Controller) now() time.Time {
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock()
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger == nil {
		return logging.NewNop()
	}
	return c.Logger
}

func runIDFrom(ctx context.Context) string {
	id, _ := services.RunIDFromContext(ctx)
	return id
}

// IsInterrupted reports whether err ended a run because its context was
// cancelled or timed out.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
