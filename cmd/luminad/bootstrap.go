package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"lumina/pkg/agents"
	"lumina/pkg/audit"
	"lumina/pkg/checkpoint"
	"lumina/pkg/config"
	"lumina/pkg/contextmgr"
	"lumina/pkg/llm"
	"lumina/pkg/logx"
	"lumina/pkg/metrics"
	"lumina/pkg/orch"
	"lumina/pkg/resilience"
	"lumina/pkg/toolcache"
	"lumina/pkg/tools"
)

// app holds everything a running daemon needs plus the closers to tear it
// down in reverse order.
type app struct {
	cfg     *config.Config
	orch    *orch.Orchestrator
	store   checkpoint.Store
	logger  *logx.Logger
	closers []func() error
}

// buildApp wires the full stack from a config file path. Components that
// hold external resources register a closer; Close runs them in reverse.
func buildApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logx.NewLogger("luminad")}
	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)

	store, err := a.buildStore(ctx, cfg, recorder)
	if err != nil {
		return nil, err
	}
	a.store = store

	cache, err := a.buildCache(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	auditLog, err := audit.NewWriter(cfg.Audit.Dir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	a.closers = append(a.closers, auditLog.Close)

	retry := resilience.RetryConfig{
		MaxAttempts:   cfg.Resilience.MaxAttempts,
		InitialDelay:  cfg.Resilience.InitialDelay,
		MaxDelay:      cfg.Resilience.MaxDelay,
		BackoffFactor: cfg.Resilience.BackoffFactor,
	}
	breaker := resilience.BreakerConfig{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		Cooldown:         cfg.Resilience.Cooldown,
	}
	toolRes := resilience.NewExecutor(retry, breaker, cfg.Orchestrator.StepTimeout, recorder)
	llmRes := resilience.NewExecutor(retry, breaker, cfg.Orchestrator.ProviderTimeout, recorder)

	registry := buildRegistry(cfg)
	executor := tools.NewExecutor(registry, cache, cfg.Cache.TTLFor, toolRes, recorder, auditLog)

	cm, err := contextmgr.New(cfg.Orchestrator.ContextTokens)
	if err != nil {
		a.Close()
		return nil, err
	}

	primary, err := llm.New(cfg.Providers.Primary)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("primary provider: %w", err)
	}
	var fallback llm.Client
	if cfg.Providers.Fallback.Provider != "" {
		fallback, err = llm.New(cfg.Providers.Fallback)
		if err != nil {
			// A misconfigured fallback should not keep the daemon down.
			a.logger.Warn("fallback provider disabled: %v", err)
			fallback = nil
		}
	}

	a.orch = orch.New(cfg, store, executor, agents.NewRouter(), cm, primary, fallback, llmRes, recorder)
	return a, nil
}

func (a *app) buildStore(ctx context.Context, cfg *config.Config, recorder *metrics.Recorder) (checkpoint.Store, error) {
	switch cfg.Checkpoint.Backend {
	case config.BackendSQLite:
		store, err := checkpoint.NewSQLiteStore(cfg.Checkpoint.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open checkpoint db: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return checkpoint.Instrument(store, recorder), nil
	case config.BackendRedis:
		store, err := checkpoint.NewRedisStore(ctx, cfg.Checkpoint.RedisAddr, os.Getenv("REDIS_PASSWORD"), cfg.Checkpoint.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("connect checkpoint redis: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return checkpoint.Instrument(store, recorder), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Checkpoint.Backend)
	}
}

func (a *app) buildCache(ctx context.Context, cfg *config.Config) (toolcache.Cache, error) {
	switch cfg.Cache.Backend {
	case config.BackendMemory:
		return toolcache.NewMemoryCache(), nil
	case config.BackendRedis:
		cache, err := toolcache.NewRedisCache(ctx, cfg.Cache.RedisAddr, os.Getenv("REDIS_PASSWORD"), cfg.Cache.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("connect cache redis: %w", err)
		}
		a.closers = append(a.closers, cache.Close)
		return cache, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func buildRegistry(cfg *config.Config) *tools.Registry {
	fs := afero.NewOsFs()
	root := cfg.Workspace.AllowedRoot
	registry := tools.NewRegistry()
	registry.MustRegister(
		tools.NewReadFileTool(fs, root),
		tools.NewWriteFileTool(fs, root),
		tools.NewListFilesTool(fs, root),
		tools.NewTreeViewTool(fs, root),
		tools.NewDeleteFileTool(fs, root),
		tools.NewGrepSearchTool(fs, root),
		tools.NewReplaceInFileTool(fs, root),
		tools.NewShellTool(root, cfg.Shell.AllowedCommands, cfg.Shell.SafeCommands, cfg.Shell.Timeout),
		tools.NewWebFetchTool(),
		tools.NewWebSearchTool(),
		tools.NewGetWeatherTool(cfg.Weather.APIKey, cfg.Weather.BaseURL),
		tools.NewOSInfoTool(root),
	)
	return registry
}

// Close tears down held resources in reverse wiring order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("shutdown: %v", err)
		}
	}
	a.closers = nil
}
