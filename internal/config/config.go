// Package config loads the holmes configuration file and resolves
// defaults and environment fallbacks.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for holmes.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Agent    AgentConfig    `yaml:"agent"`
	Sessions SessionsConfig `yaml:"sessions"`
	Toolsets ToolsetsConfig `yaml:"toolsets"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LLMConfig struct {
	// Provider selects the backend: "anthropic" or "openai".
	Provider string `yaml:"provider"`

	// Model is the model used for requests and token accounting.
	Model string `yaml:"model"`

	Providers map[string]LLMProviderConfig `yaml:"providers"`
}

type LLMProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type AgentConfig struct {
	MaxSteps            int           `yaml:"max_steps"`
	Deadline            time.Duration `yaml:"deadline"`
	MaxToolOutputTokens int           `yaml:"max_tool_output_tokens"`
	RepetitionCap       int           `yaml:"repetition_cap"`
	DispatchConcurrency int           `yaml:"dispatch_concurrency"`
	PerToolTimeout      time.Duration `yaml:"per_tool_timeout"`
	DisableCompaction   bool          `yaml:"disable_compaction"`
}

type SessionsConfig struct {
	// IdleTTL evicts sessions untouched for this long. Zero uses the
	// store default; negative disables eviction.
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

type ToolsetsConfig struct {
	// Enabled lists toolset names to activate. Empty enables every
	// built-in toolset whose prerequisites pass.
	Enabled []string `yaml:"enabled"`

	// CheckTimeout bounds each prerequisite check.
	CheckTimeout time.Duration `yaml:"check_timeout"`

	// StatusCachePath persists prerequisite check results between runs.
	// Empty uses the default location under the user cache dir.
	StatusCachePath string `yaml:"status_cache_path"`

	// StatusCacheTTL is how long a cached check result stays valid.
	StatusCacheTTL time.Duration `yaml:"status_cache_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	// Endpoint is the OTLP gRPC endpoint. Empty disables tracing.
	Endpoint     string  `yaml:"endpoint"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Load reads and parses the configuration file. Environment variables
// referenced as ${VAR} in the file are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// Investigations hold the response open for the whole run.
		cfg.Server.WriteTimeout = 15 * time.Minute
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "claude-sonnet-4-20250514"
	}
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]LLMProviderConfig{}
	}
	for name, env := range map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
	} {
		p := cfg.LLM.Providers[name]
		if p.APIKey == "" {
			p.APIKey = os.Getenv(env)
		}
		cfg.LLM.Providers[name] = p
	}
	if cfg.Agent.MaxSteps == 0 {
		cfg.Agent.MaxSteps = 10
	}
	if cfg.Agent.Deadline == 0 {
		cfg.Agent.Deadline = 10 * time.Minute
	}
	if cfg.Toolsets.CheckTimeout == 0 {
		cfg.Toolsets.CheckTimeout = 10 * time.Second
	}
	if cfg.Toolsets.StatusCacheTTL == 0 {
		cfg.Toolsets.StatusCacheTTL = 24 * time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
	if cfg.Tracing.Environment == "" {
		cfg.Tracing.Environment = "production"
	}
}

// Validate checks that the configuration can actually run an agent.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Providers[c.LLM.Provider].APIKey == "" {
		return fmt.Errorf("no api key configured for provider %q", c.LLM.Provider)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}
