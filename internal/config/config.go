package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	FRED         FREDConfig         `mapstructure:"fred"`
	Reasoning    ReasoningConfig    `mapstructure:"reasoning"`
	Loop         LoopConfig         `mapstructure:"loop"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Prompts      PromptsConfig      `mapstructure:"prompts"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// FREDConfig holds the economic data source configuration
type FREDConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	LookbackYears int           `mapstructure:"lookback_years"`
	BatchSize     int           `mapstructure:"batch_size"`
	BatchPause    time.Duration `mapstructure:"batch_pause"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Series        []string      `mapstructure:"series"` // empty = full catalog
}

// ReasoningConfig holds the reasoning service configuration. An empty api_key disables it.
type ReasoningConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LoopConfig holds background scheduler configuration
type LoopConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	BackoffStep      time.Duration `mapstructure:"backoff_step"`
	BackoffCap       time.Duration `mapstructure:"backoff_cap"`
	SubscriberBuffer int           `mapstructure:"subscriber_buffer"`
	AutoStart        bool          `mapstructure:"auto_start"`
}

// OrchestratorConfig holds synthesis configuration
type OrchestratorConfig struct {
	RollingWindow    int           `mapstructure:"rolling_window"`
	SynthesisTimeout time.Duration `mapstructure:"synthesis_timeout"`
	BootstrapTimeout time.Duration `mapstructure:"bootstrap_timeout"`
	UserIntent       string        `mapstructure:"user_intent"`
	VerticalTTL      time.Duration `mapstructure:"vertical_ttl"`
}

// PromptsConfig holds prompt lifecycle configuration
type PromptsConfig struct {
	PromotionThreshold int     `mapstructure:"promotion_threshold"`
	MinGoodConfidence  float64 `mapstructure:"min_good_confidence"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath  string `mapstructure:"db_path"`
	MaxRuns int    `mapstructure:"max_runs"`
}

// ServerConfig holds the HTTP/WebSocket API configuration
type ServerConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// MACRO_ORACLE_LOOP_INTERVAL overrides loop.interval
	v.SetEnvPrefix("MACRO_ORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names used by the upstream services
	_ = v.BindEnv("fred.api_key", "MACRO_ORACLE_FRED_API_KEY", "FRED_API_KEY")
	_ = v.BindEnv("reasoning.api_key", "MACRO_ORACLE_REASONING_API_KEY", "ANTHROPIC_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// FRED defaults
	v.SetDefault("fred.base_url", "https://api.stlouisfed.org/fred")
	v.SetDefault("fred.api_key", "")
	v.SetDefault("fred.timeout", "30s")
	v.SetDefault("fred.cache_ttl", "15m")
	v.SetDefault("fred.lookback_years", 2)
	v.SetDefault("fred.batch_size", 4)
	v.SetDefault("fred.batch_pause", "100ms")
	v.SetDefault("fred.max_retries", 3)
	v.SetDefault("fred.retry_delay", "1s")
	v.SetDefault("fred.series", []string{})

	// Reasoning defaults
	v.SetDefault("reasoning.base_url", "https://api.anthropic.com/v1/messages")
	v.SetDefault("reasoning.api_key", "")
	v.SetDefault("reasoning.model", "claude-sonnet-4-20250514")
	v.SetDefault("reasoning.max_tokens", 4096)
	v.SetDefault("reasoning.timeout", "120s")

	// Loop defaults
	v.SetDefault("loop.interval", "15m")
	v.SetDefault("loop.backoff_step", "30s")
	v.SetDefault("loop.backoff_cap", "5m")
	v.SetDefault("loop.subscriber_buffer", 5)
	v.SetDefault("loop.auto_start", true)

	// Orchestrator defaults
	v.SetDefault("orchestrator.rolling_window", 30)
	v.SetDefault("orchestrator.synthesis_timeout", "60s")
	v.SetDefault("orchestrator.bootstrap_timeout", "90s")
	v.SetDefault("orchestrator.user_intent", "")
	v.SetDefault("orchestrator.vertical_ttl", "15m")

	// Prompt lifecycle defaults
	v.SetDefault("prompts.promotion_threshold", 20)
	v.SetDefault("prompts.min_good_confidence", 0.3)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/macrooracle.db")
	v.SetDefault("storage.max_runs", 5000)

	// Server defaults
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.enabled", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate FRED config
	if c.FRED.BaseURL == "" {
		return fmt.Errorf("fred.base_url is required")
	}
	if c.FRED.APIKey == "" {
		return fmt.Errorf("fred.api_key is required (or set FRED_API_KEY)")
	}
	if c.FRED.LookbackYears < 1 {
		return fmt.Errorf("fred.lookback_years must be at least 1")
	}
	if c.FRED.BatchSize < 1 {
		return fmt.Errorf("fred.batch_size must be at least 1")
	}
	if c.FRED.MaxRetries < 0 {
		return fmt.Errorf("fred.max_retries must not be negative")
	}
	if c.FRED.CacheTTL < 0 {
		return fmt.Errorf("fred.cache_ttl must not be negative")
	}

	// Validate Reasoning config
	if c.Reasoning.APIKey != "" {
		if c.Reasoning.BaseURL == "" {
			return fmt.Errorf("reasoning.base_url is required when reasoning is enabled")
		}
		if c.Reasoning.Model == "" {
			return fmt.Errorf("reasoning.model is required when reasoning is enabled")
		}
		if c.Reasoning.MaxTokens < 1 {
			return fmt.Errorf("reasoning.max_tokens must be at least 1")
		}
	}

	// Validate Loop config
	if c.Loop.Interval < 1*time.Minute {
		return fmt.Errorf("loop.interval must be at least 1 minute")
	}
	if c.Loop.BackoffStep < 0 || c.Loop.BackoffCap < c.Loop.BackoffStep {
		return fmt.Errorf("loop.backoff_cap must be at least loop.backoff_step")
	}
	if c.Loop.SubscriberBuffer < 1 {
		return fmt.Errorf("loop.subscriber_buffer must be at least 1")
	}

	// Validate Orchestrator config
	if c.Orchestrator.RollingWindow < 2 {
		return fmt.Errorf("orchestrator.rolling_window must be at least 2")
	}
	if c.Orchestrator.SynthesisTimeout <= 0 {
		return fmt.Errorf("orchestrator.synthesis_timeout must be positive")
	}
	if c.Orchestrator.BootstrapTimeout <= 0 {
		return fmt.Errorf("orchestrator.bootstrap_timeout must be positive")
	}
	if c.Orchestrator.VerticalTTL <= 0 {
		return fmt.Errorf("orchestrator.vertical_ttl must be positive")
	}

	// Validate Prompts config
	if c.Prompts.PromotionThreshold < 1 {
		return fmt.Errorf("prompts.promotion_threshold must be at least 1")
	}
	if c.Prompts.MinGoodConfidence < 0.0 || c.Prompts.MinGoodConfidence > 1.0 {
		return fmt.Errorf("prompts.min_good_confidence must be between 0.0 and 1.0")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		if c.Telegram.MaxRetries < 1 {
			return fmt.Errorf("telegram.max_retries must be at least 1")
		}
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxRuns < 1 {
		return fmt.Errorf("storage.max_runs must be at least 1")
	}

	// Validate Server config
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when server is enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// ReasoningEnabled reports whether a reasoning service is configured.
func (c *Config) ReasoningEnabled() bool {
	return c.Reasoning.APIKey != ""
}
