package generator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"refinery/internal/itemstore"
	"refinery/internal/logging"
	"refinery/internal/services"
	"refinery/internal/textutil"
)

const (
	// DefaultDuplicateThreshold is the similarity at which a new proposition
	// counts as a repeat of one already in the batch.
	DefaultDuplicateThreshold = 0.9
	// maxRedraws bounds how often one slot is re-requested after a repeat.
	maxRedraws  = 2
	previewRune = 80
)

// ContentSource supplies the category and text of one fresh item.
type ContentSource interface {
	Next(ctx context.Context) (category, text string, err error)
}

// Generator produces raw batches for the bootstrap directory.
type Generator struct {
	Source ContentSource
	// Clock stamps the batch; defaults to time.Now.
	Clock func() time.Time
	// DuplicateThreshold enables re-requesting near-identical propositions
	// within a batch. Zero disables the check.
	DuplicateThreshold float64
	Logger             *slog.Logger
}

// New returns a generator drawing from source with the default duplicate
// threshold.
func New(source ContentSource, logger *slog.Logger) *Generator {
	return &Generator{
		Source:             source,
		Clock:              time.Now,
		DuplicateThreshold: DefaultDuplicateThreshold,
		Logger:             logging.NewComponentLogger(logger, "generator"),
	}
}

// Generate returns size new items that share one creation timestamp. Any
// source failure aborts the batch; nothing is returned partially.
func (g *Generator) Generate(ctx context.Context, size int) ([]itemstore.WorkItem, error) {
	if g.Source == nil {
		return nil, services.New(services.KindConfiguration, "generate batch", "content source is required")
	}
	if size < 1 {
		return nil, services.New(services.KindFatal, "generate batch", "batch size must be positive")
	}

	created := g.now()
	logger := logging.WithContext(ctx, g.logger())
	seen := textutil.NewDuplicateSet(g.DuplicateThreshold)
	items := make([]itemstore.WorkItem, 0, size)

	logger.Info("generating batch",
		logging.Event("batch_generate_start"),
		logging.Int("size", size),
	)
	for i := 0; i < size; i++ {
		category, text, err := g.draw(ctx, logger, seen, i)
		if err != nil {
			return nil, err
		}
		seen.Add(text)
		items = append(items, itemstore.WorkItem{Text: text, Category: category, CreatedAt: created})
		logger.Debug("item generated",
			logging.Int("index", i+1),
			logging.Int("size", size),
			logging.String("category", category),
			logging.String("text", textutil.Preview(text, previewRune)),
		)
	}
	return items, nil
}

func (g *Generator) draw(ctx context.Context, logger *slog.Logger, seen *textutil.DuplicateSet, index int) (string, string, error) {
	var (
		category, text string
		err            error
	)
	for redraw := 0; ; redraw++ {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		category, text, err = g.Source.Next(ctx)
		if err != nil {
			return "", "", err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return "", "", services.New(services.KindFatal, "generate batch", "content source returned empty text")
		}
		score, dup := seen.Similar(text)
		if !dup {
			return category, text, nil
		}
		if redraw >= maxRedraws {
			logger.Warn("keeping near-duplicate proposition",
				logging.Int("index", index+1),
				logging.Float64("similarity", score),
				logging.Event("duplicate_kept"),
			)
			return category, text, nil
		}
		logger.Debug("redrawing near-duplicate proposition",
			logging.Int("index", index+1),
			logging.Float64("similarity", score),
		)
	}
}

func (g *Generator) now() time.Time {
	if g.Clock == nil {
		return time.Now()
	}
	return g.Clock()
}

func (g *Generator) logger() *slog.Logger {
	if g.Logger == nil {
		return logging.NewNop()
	}
	return g.Logger
}
