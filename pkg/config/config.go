// Package config defines the immutable runtime configuration for the
// orchestrator. A single Config is loaded at startup, validated once, and
// passed by pointer into every component; nothing mutates it afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backend names accepted by the checkpoint and cache sections.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Provider names accepted by the reasoning-provider section.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// Config is the root configuration object.
type Config struct {
	Workspace    WorkspaceConfig    `yaml:"workspace"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Resilience   ResilienceConfig   `yaml:"resilience"`
	Checkpoint   CheckpointConfig   `yaml:"checkpoint"`
	Cache        CacheConfig        `yaml:"cache"`
	Providers    ProvidersConfig    `yaml:"providers"`
	Shell        ShellConfig        `yaml:"shell"`
	Audit        AuditConfig        `yaml:"audit"`
	Weather      WeatherConfig      `yaml:"weather"`
}

// WorkspaceConfig bounds all filesystem tool activity.
type WorkspaceConfig struct {
	// AllowedRoot is the directory every path argument must resolve inside.
	AllowedRoot string `yaml:"allowed_root"`
}

// OrchestratorConfig tunes the planning loop.
type OrchestratorConfig struct {
	MaxSteps        int           `yaml:"max_steps"`
	StepTimeout     time.Duration `yaml:"step_timeout"`
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
	// ContextTokens bounds the transcript sent to the reasoning provider.
	ContextTokens int `yaml:"context_tokens"`
}

// ResilienceConfig tunes retry and circuit-breaker behavior for all
// external dependencies.
type ResilienceConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	InitialDelay     time.Duration `yaml:"initial_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	BackoffFactor    float64       `yaml:"backoff_factor"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// CheckpointConfig selects the checkpoint store backend. Selection is a
// startup-time choice; there is no runtime failover between backends.
type CheckpointConfig struct {
	Backend    string `yaml:"backend"` // redis or sqlite
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	SQLitePath string `yaml:"sqlite_path"`
}

// CacheConfig selects the tool-result cache backend and per-tool TTLs.
type CacheConfig struct {
	Backend    string                   `yaml:"backend"` // redis or memory
	RedisAddr  string                   `yaml:"redis_addr"`
	RedisDB    int                      `yaml:"redis_db"`
	DefaultTTL time.Duration            `yaml:"default_ttl"`
	ToolTTLs   map[string]time.Duration `yaml:"tool_ttls"`
}

// TTLFor returns the cache TTL for a tool, falling back to the default.
func (c *CacheConfig) TTLFor(tool string) time.Duration {
	if ttl, ok := c.ToolTTLs[tool]; ok {
		return ttl
	}
	return c.DefaultTTL
}

// ModelConfig describes one reasoning-provider backend.
type ModelConfig struct {
	Provider string `yaml:"provider"` // anthropic, openai, ollama
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// ProvidersConfig pairs a primary reasoning provider with a fallback used
// when the primary's circuit is open or its retries are exhausted.
type ProvidersConfig struct {
	Primary     ModelConfig `yaml:"primary"`
	Fallback    ModelConfig `yaml:"fallback"`
	MaxTokens   int         `yaml:"max_tokens"`
	Temperature float32     `yaml:"temperature"`
}

// ShellConfig constrains the shell tool.
type ShellConfig struct {
	// AllowedCommands is the fixed allow-list of leading tokens.
	AllowedCommands []string `yaml:"allowed_commands"`
	// SafeCommands is the subset that never needs human approval.
	SafeCommands []string      `yaml:"safe_commands"`
	Timeout      time.Duration `yaml:"timeout"`
}

// AuditConfig controls the audit event sink.
type AuditConfig struct {
	Dir string `yaml:"dir"`
}

// WeatherConfig configures the get_weather tool.
type WeatherConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Config{
		Workspace: WorkspaceConfig{AllowedRoot: cwd},
		Orchestrator: OrchestratorConfig{
			MaxSteps:        25,
			StepTimeout:     2 * time.Minute,
			ProviderTimeout: 60 * time.Second,
			ContextTokens:   100_000,
		},
		Resilience: ResilienceConfig{
			MaxAttempts:      3,
			InitialDelay:     100 * time.Millisecond,
			MaxDelay:         10 * time.Second,
			BackoffFactor:    2.0,
			FailureThreshold: 5,
			Cooldown:         60 * time.Second,
		},
		Checkpoint: CheckpointConfig{
			Backend:    BackendSQLite,
			SQLitePath: filepath.Join(cwd, "lumina.db"),
			RedisAddr:  "localhost:6379",
		},
		Cache: CacheConfig{
			Backend:    BackendMemory,
			RedisAddr:  "localhost:6379",
			DefaultTTL: 5 * time.Minute,
			ToolTTLs: map[string]time.Duration{
				"read_file":   30 * time.Second,
				"list_files":  30 * time.Second,
				"tree_view":   30 * time.Second,
				"grep_search": 30 * time.Second,
				"web_search":  15 * time.Minute,
				"web_fetch":   15 * time.Minute,
				"get_weather": 10 * time.Minute,
				"os_info":     time.Hour,
			},
		},
		Providers: ProvidersConfig{
			Primary: ModelConfig{
				Provider: ProviderAnthropic,
				Model:    "claude-sonnet-4-20250514",
				APIKey:   os.Getenv("ANTHROPIC_API_KEY"),
			},
			Fallback: ModelConfig{
				Provider: ProviderOpenAI,
				Model:    "gpt-4o-mini",
				APIKey:   os.Getenv("OPENAI_API_KEY"),
			},
			MaxTokens:   4096,
			Temperature: 0.3,
		},
		Shell: ShellConfig{
			AllowedCommands: []string{
				"ls", "cat", "grep", "find", "git", "npm", "yarn",
				"python", "pytest", "echo", "pwd", "which",
			},
			SafeCommands: []string{"ls", "cat", "grep", "find", "echo", "pwd", "which"},
			Timeout:      20 * time.Second,
		},
		Audit:   AuditConfig{Dir: filepath.Join(cwd, "logs")},
		Weather: WeatherConfig{APIKey: os.Getenv("WEATHER_API_KEY"), BaseURL: "https://api.weatherapi.com/v1"},
	}
}

// Load reads a YAML config file over the defaults. Environment variables in
// the file are expanded (${VAR} or $VAR) before parsing so secrets can stay
// out of the file itself.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency. It is called once at load time.
func (c *Config) Validate() error {
	if c.Workspace.AllowedRoot == "" {
		return fmt.Errorf("workspace.allowed_root must be set")
	}
	if !filepath.IsAbs(c.Workspace.AllowedRoot) {
		return fmt.Errorf("workspace.allowed_root must be absolute, got %q", c.Workspace.AllowedRoot)
	}
	if c.Orchestrator.MaxSteps <= 0 {
		return fmt.Errorf("orchestrator.max_steps must be positive, got %d", c.Orchestrator.MaxSteps)
	}
	if c.Orchestrator.ContextTokens <= 0 {
		return fmt.Errorf("orchestrator.context_tokens must be positive, got %d", c.Orchestrator.ContextTokens)
	}
	if c.Resilience.MaxAttempts <= 0 {
		return fmt.Errorf("resilience.max_attempts must be positive, got %d", c.Resilience.MaxAttempts)
	}
	if c.Resilience.FailureThreshold <= 0 {
		return fmt.Errorf("resilience.failure_threshold must be positive, got %d", c.Resilience.FailureThreshold)
	}
	switch c.Checkpoint.Backend {
	case BackendRedis:
		if c.Checkpoint.RedisAddr == "" {
			return fmt.Errorf("checkpoint.redis_addr must be set for redis backend")
		}
	case BackendSQLite:
		if c.Checkpoint.SQLitePath == "" {
			return fmt.Errorf("checkpoint.sqlite_path must be set for sqlite backend")
		}
	default:
		return fmt.Errorf("checkpoint.backend must be %q or %q, got %q", BackendRedis, BackendSQLite, c.Checkpoint.Backend)
	}
	switch c.Cache.Backend {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("cache.backend must be %q or %q, got %q", BackendRedis, BackendMemory, c.Cache.Backend)
	}
	if len(c.Shell.AllowedCommands) == 0 {
		return fmt.Errorf("shell.allowed_commands must not be empty")
	}
	allowed := make(map[string]bool, len(c.Shell.AllowedCommands))
	for _, cmd := range c.Shell.AllowedCommands {
		allowed[cmd] = true
	}
	for _, cmd := range c.Shell.SafeCommands {
		if !allowed[cmd] {
			return fmt.Errorf("shell.safe_commands entry %q is not in allowed_commands", cmd)
		}
	}
	return nil
}
