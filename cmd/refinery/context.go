package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"refinery/internal/config"
	"refinery/internal/logging"
	"refinery/internal/services/llm"
)

type serviceFactory func(ctx context.Context, cfg *config.Config) (llm.Service, error)

func defaultServiceFactory(ctx context.Context, cfg *config.Config) (llm.Service, error) {
	return llm.NewService(ctx, llm.ConfigFrom(cfg))
}

type commandContext struct {
	configFlag *string
	newService serviceFactory

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger
	logPath    string
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		newService: defaultServiceFactory,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// ensureLogger builds the process logger once and prunes stale run logs.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, logPath, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.loggerErr = err
			return
		}
		if removed := logging.PruneRunLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, logPath); removed > 0 {
			logger.Debug("pruned run logs", logging.Int("removed", removed))
		}
		c.logger = logger
		c.logPath = logPath
	})
	return c.logger, c.loggerErr
}

// openService builds the remote text service. The returned release function
// closes providers that hold connections and is always safe to call.
func (c *commandContext) openService(ctx context.Context, cfg *config.Config) (llm.Service, func(), error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, func() {}, err
	}
	svc, err := c.newService(ctx, cfg)
	if err != nil {
		return nil, func() {}, err
	}
	release := func() {
		if closer, ok := svc.(io.Closer); ok {
			_ = closer.Close()
		}
	}
	return svc, release, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
