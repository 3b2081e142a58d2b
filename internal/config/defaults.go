package config

const (
	defaultWorkDir             = "."
	defaultBootstrapDir        = "propositions"
	defaultStagesDir           = "responses"
	defaultJournalFile         = "journal.db"
	defaultProvider            = ProviderAnthropic
	defaultAnthropicModel      = "claude-sonnet-4-20250514"
	defaultOpenRouterModel     = "anthropic/claude-sonnet-4"
	defaultGeminiModel         = "gemini-2.5-flash"
	defaultAnthropicBaseURL    = "https://api.anthropic.com"
	defaultOpenRouterBaseURL   = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMTimeoutSeconds   = 60
	defaultGenerationMaxTokens = 300
	defaultGenerationTemp      = 1.0
	defaultComplexity          = "high"
	defaultRefineMaxTokens     = 400
	defaultRefineTemp          = 0.3
	defaultBatchSize           = 10
	defaultTargetTotal         = 500
	defaultStages              = 5
	defaultCallDelaySeconds    = 1.5
	defaultConcurrency         = 1
	defaultMaxConsecutiveFails = 0
	defaultRetryMaxAttempts    = 5
	defaultRetryInitialDelay   = 1.0
	defaultRetryBackoffBase    = 2.0
	defaultLogFormat           = "console"
	defaultLogRetentionDays    = 14
	defaultLogLevel            = "info"

	minBatchSize        = 1
	maxBatchSize        = 50
	minCallDelaySeconds = 0.1
	maxCallDelaySeconds = 10
)

// defaultCategories mirrors the domains the proposition generator draws from.
var defaultCategories = []string{
	"philosophy", "physics", "mathematics", "linguistics", "biology",
	"computer science", "economics", "psychology", "sociology", "anthropology",
	"neuroscience", "chemistry", "geology", "astronomy", "political theory",
	"ethics", "epistemology", "aesthetics", "logic", "metaphysics",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	categories := make([]string, len(defaultCategories))
	copy(categories, defaultCategories)
	return Config{
		Paths: Paths{
			WorkDir:      defaultWorkDir,
			BootstrapDir: defaultBootstrapDir,
			StagesDir:    defaultStagesDir,
			Journal:      defaultJournalFile,
		},
		LLM: LLM{
			Provider:       defaultProvider,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Generation: Generation{
			MaxTokens:   defaultGenerationMaxTokens,
			Temperature: defaultGenerationTemp,
			Categories:  categories,
			Complexity:  defaultComplexity,
		},
		Refinement: Refinement{
			MaxTokens:   defaultRefineMaxTokens,
			Temperature: defaultRefineTemp,
		},
		Pipeline: Pipeline{
			BatchSize:              defaultBatchSize,
			TargetTotal:            defaultTargetTotal,
			Stages:                 defaultStages,
			CallDelaySeconds:       defaultCallDelaySeconds,
			Concurrency:            defaultConcurrency,
			MaxConsecutiveFailures: defaultMaxConsecutiveFails,
			Resume:                 true,
		},
		Retry: Retry{
			MaxAttempts:         defaultRetryMaxAttempts,
			InitialDelaySeconds: defaultRetryInitialDelay,
			BackoffBase:         defaultRetryBackoffBase,
			Jitter:              true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
