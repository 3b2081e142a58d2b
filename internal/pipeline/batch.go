package pipeline

import (
	"context"
	"errors"
	"strconv"
	"time"

	"refinery/internal/itemstore"
	"refinery/internal/logging"
	"refinery/internal/services"
	"refinery/internal/stage"
)

type batchResult struct {
	batchID  int
	filename string
	// stage is the last stage that completed (0: only the raw batch exists).
	stage   int
	items   int
	started time.Time
	err     error
}

// freshBatch generates batch id, saves it to the bootstrap directory, and
// pushes it through every stage.
func (c *Controller) freshBatch(ctx context.Context, id int) batchResult {
	filename := itemstore.BatchFilename(id)
	result := batchResult{batchID: id, filename: filename, started: c.now()}
	batchCtx := services.WithBatchID(ctx, id)
	logger := logging.WithContext(batchCtx, c.logger())

	c.transition(StateGeneratingBatch, 0, id)
	items, err := c.Generator.Generate(batchCtx, c.Settings.BatchSize)
	if err != nil {
		result.err = err
		return result
	}
	if err := c.Store.SaveBatch(items, c.Workspace.BootstrapDir(), filename); err != nil {
		result.err = err
		return result
	}
	logger.Info("batch generated",
		logging.Event("batch_generated"),
		logging.String("file", filename),
		logging.Int("items", len(items)),
	)

	return c.runStages(batchCtx, result, false)
}

// resumeBatch carries an existing bootstrap batch through the stages it has
// not completed yet.
func (c *Controller) resumeBatch(ctx context.Context, filename string) batchResult {
	id, _ := itemstore.ParseBatchID(filename)
	result := batchResult{batchID: id, filename: filename, started: c.now()}
	batchCtx := services.WithBatchID(ctx, id)
	logging.WithContext(batchCtx, c.logger()).Info("resuming unfinished batch",
		logging.Event("batch_resume"),
		logging.String("file", filename),
	)
	return c.runStages(batchCtx, result, true)
}

func (c *Controller) runStages(ctx context.Context, result batchResult, skipExisting bool) batchResult {
	prev := c.Workspace.BootstrapDir()
	for k := 1; k <= c.Workspace.Stages; k++ {
		if err := ctx.Err(); err != nil {
			result.err = err
			return result
		}
		c.transition(StateRunningStage, k, result.batchID)
		spec := stage.Spec{
			Label:        stageLabel(k),
			InDir:        prev,
			OutDir:       c.Workspace.StageDir(k),
			Transform:    c.Transform(k),
			SkipExisting: skipExisting,
		}
		n, err := c.Runner.RunBatch(ctx, spec, result.filename)
		if err != nil {
			result.err = err
			return result
		}
		result.stage = k
		result.items = n
		prev = spec.OutDir
	}
	return result
}

// claimID returns the first id at or after id whose file exists in no
// workspace directory.
func (c *Controller) claimID(id int) int {
	for c.idTaken(id) {
		id++
	}
	return id
}

func (c *Controller) idTaken(id int) bool {
	name := itemstore.BatchFilename(id)
	for _, dir := range c.Workspace.Dirs() {
		if c.Store.Exists(dir, name) {
			return true
		}
	}
	return false
}

// unfinishedBatches lists bootstrap batches with no file in the terminal
// directory, in ascending id order. Files whose names are not batch ids are
// left alone.
func (c *Controller) unfinishedBatches() ([]string, error) {
	raw, err := c.Store.ListBatches(c.Workspace.BootstrapDir())
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	terminal := c.Workspace.TerminalDir()
	var pending []string
	for _, name := range raw {
		if _, ok := itemstore.ParseBatchID(name); !ok {
			continue
		}
		if !c.Store.Exists(terminal, name) {
			pending = append(pending, name)
		}
	}
	return pending, nil
}

func stageLabel(k int) string {
	return "stage " + strconv.Itoa(k)
}
