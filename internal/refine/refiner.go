package refine

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"refinery/internal/config"
	"refinery/internal/itemstore"
	"refinery/internal/logging"
	"refinery/internal/retry"
	"refinery/internal/services"
	"refinery/internal/services/llm"
	"refinery/internal/textutil"
)

const (
	defaultMaxTokens   = 400
	defaultTemperature = 0.3
	previewRunes       = 80
)

// Refiner rewrites one item's text through the remote service. It satisfies
// stage.Transform.
type Refiner struct {
	Service     llm.Service
	Executor    *retry.Executor
	Pacer       *rate.Limiter
	MaxTokens   int
	Temperature float64
	Logger      *slog.Logger
}

// New builds a refiner from the refinement settings. executor and pacer are
// shared with every other caller of the service.
func New(service llm.Service, executor *retry.Executor, pacer *rate.Limiter, settings config.Refinement, logger *slog.Logger) *Refiner {
	r := &Refiner{
		Service:     service,
		Executor:    executor,
		Pacer:       pacer,
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
		Logger:      logging.NewComponentLogger(logger, "refine"),
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = defaultMaxTokens
	}
	return r
}

// Apply returns item with its text replaced by the refined proposition.
func (r *Refiner) Apply(ctx context.Context, item itemstore.WorkItem) (itemstore.WorkItem, error) {
	if r.Service == nil {
		return itemstore.WorkItem{}, services.New(services.KindConfiguration, "refine", "text service is required")
	}
	if strings.TrimSpace(item.Text) == "" {
		return itemstore.WorkItem{}, services.New(services.KindFatal, "refine", "item has no text to refine")
	}
	prompt, err := BuildPrompt(item.Category, item.Text)
	if err != nil {
		return itemstore.WorkItem{}, services.Wrap(services.KindFatal, "refine", "render prompt", err)
	}

	if err := retry.Pace(ctx, r.Pacer); err != nil {
		return itemstore.WorkItem{}, err
	}

	req := llm.Request{Prompt: prompt, MaxTokens: r.maxTokens(), Temperature: r.Temperature}
	refined, err := retry.Do(ctx, r.executor(), func(ctx context.Context) (string, error) {
		out, err := r.Service.Generate(ctx, req)
		if err != nil {
			return "", err
		}
		cleaned := textutil.CleanOutput(out)
		if cleaned == "" {
			return "", services.New(services.KindTransient, "refine", "service returned an empty refinement")
		}
		return cleaned, nil
	})
	if err != nil {
		return itemstore.WorkItem{}, err
	}

	logging.WithContext(ctx, r.logger()).Debug("item refined",
		logging.String("category", item.Category),
		logging.String("before", textutil.Preview(item.Text, previewRunes)),
		logging.String("after", textutil.Preview(refined, previewRunes)),
	)
	return item.WithText(refined), nil
}

func (r *Refiner) maxTokens() int {
	if r.MaxTokens <= 0 {
		return defaultMaxTokens
	}
	return r.MaxTokens
}

func (r *Refiner) executor() *retry.Executor {
	if r.Executor == nil {
		return retry.NewExecutor(retry.DefaultPolicy(), r.Logger)
	}
	return r.Executor
}

func (r *Refiner) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.NewNop()
	}
	return r.Logger
}
