package generator

import (
	"context"
	"crypto/rand"
	"log/slog"
	"math/big"

	"golang.org/x/time/rate"

	"refinery/internal/config"
	"refinery/internal/logging"
	"refinery/internal/retry"
	"refinery/internal/services"
	"refinery/internal/services/llm"
	"refinery/internal/textutil"
)

const (
	minSeedWords = 2
	maxSeedWords = 4
)

// LLMSource asks the remote service for each proposition.
type LLMSource struct {
	Service     llm.Service
	Executor    *retry.Executor
	Pacer       *rate.Limiter
	Categories  []string
	SeedWords   []string
	Complexity  string
	MaxTokens   int
	Temperature float64
	// Intn returns a uniform value in [0,n); defaults to crypto/rand.
	Intn   func(n int) int
	Logger *slog.Logger
}

// NewLLMSource builds a source from the generation settings.
func NewLLMSource(service llm.Service, executor *retry.Executor, pacer *rate.Limiter, settings config.Generation, logger *slog.Logger) *LLMSource {
	return &LLMSource{
		Service:     service,
		Executor:    executor,
		Pacer:       pacer,
		Categories:  append([]string(nil), settings.Categories...),
		SeedWords:   append([]string(nil), settings.SeedWords...),
		Complexity:  settings.Complexity,
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
		Intn:        secureIntn,
		Logger:      logging.NewComponentLogger(logger, "generator"),
	}
}

// Next draws a category and seed words, then requests one proposition.
func (s *LLMSource) Next(ctx context.Context) (string, string, error) {
	if s.Service == nil {
		return "", "", services.New(services.KindConfiguration, "generate", "text service is required")
	}
	if len(s.Categories) == 0 {
		return "", "", services.New(services.KindConfiguration, "generate", "at least one category is required")
	}
	category := s.Categories[s.intn(len(s.Categories))]
	seeds := s.drawSeeds()

	prompt, err := BuildPrompt(category, s.Complexity, seeds)
	if err != nil {
		return "", "", services.Wrap(services.KindFatal, "generate", "render prompt", err)
	}
	if err := retry.Pace(ctx, s.Pacer); err != nil {
		return "", "", err
	}

	req := llm.Request{Prompt: prompt, MaxTokens: s.MaxTokens, Temperature: s.Temperature}
	executor := s.Executor
	if executor == nil {
		executor = retry.NewExecutor(retry.DefaultPolicy(), s.Logger)
	}
	text, err := retry.Do(ctx, executor, func(ctx context.Context) (string, error) {
		out, err := s.Service.Generate(ctx, req)
		if err != nil {
			return "", err
		}
		cleaned := textutil.CleanOutput(out)
		if cleaned == "" {
			return "", services.New(services.KindTransient, "generate", "service returned an empty proposition")
		}
		return cleaned, nil
	})
	if err != nil {
		return "", "", err
	}
	return category, text, nil
}

// drawSeeds picks two to four distinct words from the vocabulary, or none
// when no vocabulary is configured.
func (s *LLMSource) drawSeeds() []string {
	if len(s.SeedWords) == 0 {
		return nil
	}
	count := minSeedWords + s.intn(maxSeedWords-minSeedWords+1)
	pool := append([]string(nil), s.SeedWords...)
	if count > len(pool) {
		count = len(pool)
	}
	seeds := make([]string, 0, count)
	for i := 0; i < count; i++ {
		j := i + s.intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
		seeds = append(seeds, pool[i])
	}
	return seeds
}

func (s *LLMSource) intn(n int) int {
	if n <= 1 {
		return 0
	}
	fn := s.Intn
	if fn == nil {
		fn = secureIntn
	}
	v := fn(n)
	if v < 0 || v >= n {
		return 0
	}
	return v
}

func secureIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
