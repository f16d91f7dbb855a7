// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// Components receive this rather than the concrete struct so tests can swap
// in mocks.
type Interface interface {
	Logger() LoggerConfig
	Engine() EngineConfig
	Browser() BrowserConfig
	Resolver() ResolverConfig
	Session() SessionConfig
	Executor() ExecutorConfig
	Registry() RegistryConfig
	Adapt() AdaptConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	EngineCfg   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	ResolverCfg ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	SessionCfg  SessionConfig  `mapstructure:"session" yaml:"session"`
	ExecutorCfg ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	RegistryCfg RegistryConfig `mapstructure:"registry" yaml:"registry"`
	AdaptCfg    AdaptConfig    `mapstructure:"adapt" yaml:"adapt"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Engine() EngineConfig     { return c.EngineCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Resolver() ResolverConfig { return c.ResolverCfg }
func (c *Config) Session() SessionConfig   { return c.SessionCfg }
func (c *Config) Executor() ExecutorConfig { return c.ExecutorCfg }
func (c *Config) Registry() RegistryConfig { return c.RegistryCfg }
func (c *Config) Adapt() AdaptConfig       { return c.AdaptCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// EngineConfig tunes the job dispatcher.
type EngineConfig struct {
	// MaxConcurrentSessions bounds how many jobs may hold a live browser
	// session at once. Jobs beyond the bound wait in the queued state.
	MaxConcurrentSessions int64 `mapstructure:"max_concurrent_sessions" yaml:"max_concurrent_sessions"`
	// JobTimeout caps the total wall time of one job run.
	JobTimeout time.Duration `mapstructure:"job_timeout" yaml:"job_timeout"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	// ActionsPerSecond paces element actions against the target UI. Zero
	// disables pacing.
	ActionsPerSecond float64 `mapstructure:"actions_per_second" yaml:"actions_per_second"`
}

// ResolverConfig holds the selector resolver's scoring constants.
type ResolverConfig struct {
	// AcceptThreshold is the observed confidence a candidate must clear.
	AcceptThreshold float64 `mapstructure:"accept_threshold" yaml:"accept_threshold"`
	// AmbiguityPenalty scales the prior when a strategy matches more than
	// one element.
	AmbiguityPenalty float64 `mapstructure:"ambiguity_penalty" yaml:"ambiguity_penalty"`
}

// SessionConfig tunes the authentication session state machine.
type SessionConfig struct {
	// Expiry is the fallback expiry policy when the target system does not
	// hand back a token with its own expiry.
	Expiry time.Duration `mapstructure:"expiry" yaml:"expiry"`
	// ChallengeRetryBudget bounds consecutive rejected challenge codes
	// before the session is declared unrecoverable.
	ChallengeRetryBudget int `mapstructure:"challenge_retry_budget" yaml:"challenge_retry_budget"`
	// TokenCookie is the cookie name inspected for a bearer token.
	TokenCookie string `mapstructure:"token_cookie" yaml:"token_cookie"`
}

// ExecutorConfig tunes the step executor's retry policy.
type ExecutorConfig struct {
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay" yaml:"retry_max_delay"`
	// StepTimeout bounds a single action attempt against the browser.
	StepTimeout time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
}

// RegistryConfig selects and configures the job registry backend.
type RegistryConfig struct {
	// Backend is "memory" or "postgres".
	Backend     string `mapstructure:"backend" yaml:"backend"`
	PostgresURL string `mapstructure:"postgres_url" yaml:"postgres_url"`
}

// AdaptConfig selects the adaptation capability used when all known locators
// for a target fail.
type AdaptConfig struct {
	// Provider is "rules" or "gemini".
	Provider string       `mapstructure:"provider" yaml:"provider"`
	Gemini   GeminiConfig `mapstructure:"gemini" yaml:"gemini"`
}

// GeminiConfig defines the configuration for the model-backed proposer.
type GeminiConfig struct {
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// MarkupLimit truncates page markup before it is sent to the model.
	MarkupLimit int `mapstructure:"markup_limit" yaml:"markup_limit"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webpilot-cli")
	v.SetDefault("logger.log_file", "webpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Engine --
	v.SetDefault("engine.max_concurrent_sessions", 4)
	v.SetDefault("engine.job_timeout", "10m")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.actions_per_second", 5.0)

	// -- Resolver --
	v.SetDefault("resolver.accept_threshold", 0.8)
	v.SetDefault("resolver.ambiguity_penalty", 0.7)

	// -- Session --
	v.SetDefault("session.expiry", "20m")
	v.SetDefault("session.challenge_retry_budget", 3)
	v.SetDefault("session.token_cookie", "access_token")

	// -- Executor --
	v.SetDefault("executor.retry_base_delay", "500ms")
	v.SetDefault("executor.retry_max_delay", "8s")
	v.SetDefault("executor.step_timeout", "45s")

	// -- Registry --
	v.SetDefault("registry.backend", "memory")

	// -- Adapt --
	v.SetDefault("adapt.provider", "rules")
	v.SetDefault("adapt.gemini.model", "gemini-2.5-flash")
	v.SetDefault("adapt.gemini.api_timeout", "45s")
	v.SetDefault("adapt.gemini.temperature", 0.1)
	v.SetDefault("adapt.gemini.max_tokens", 2048)
	v.SetDefault("adapt.gemini.markup_limit", 30000)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Sensitive values come from the environment, never the config file.
	_ = v.BindEnv("adapt.gemini.api_key", "WEBPILOT_GEMINI_API_KEY")
	_ = v.BindEnv("registry.postgres_url", "WEBPILOT_POSTGRES_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.EngineCfg.MaxConcurrentSessions <= 0 {
		return fmt.Errorf("engine.max_concurrent_sessions must be a positive integer")
	}
	if c.ResolverCfg.AcceptThreshold <= 0 || c.ResolverCfg.AcceptThreshold > 1 {
		return fmt.Errorf("resolver.accept_threshold must be in (0, 1]")
	}
	if c.ResolverCfg.AmbiguityPenalty <= 0 || c.ResolverCfg.AmbiguityPenalty >= 1 {
		return fmt.Errorf("resolver.ambiguity_penalty must be in (0, 1)")
	}
	if c.SessionCfg.ChallengeRetryBudget <= 0 {
		return fmt.Errorf("session.challenge_retry_budget must be a positive integer")
	}
	if c.ExecutorCfg.RetryBaseDelay <= 0 || c.ExecutorCfg.RetryMaxDelay < c.ExecutorCfg.RetryBaseDelay {
		return fmt.Errorf("executor retry delays must satisfy 0 < base <= max")
	}
	switch c.RegistryCfg.Backend {
	case "memory":
	case "postgres":
		if c.RegistryCfg.PostgresURL == "" {
			return fmt.Errorf("registry.postgres_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("registry.backend must be \"memory\" or \"postgres\", got %q", c.RegistryCfg.Backend)
	}
	switch c.AdaptCfg.Provider {
	case "rules":
	case "gemini":
		if c.AdaptCfg.Gemini.APIKey == "" {
			return fmt.Errorf("adapt.gemini.api_key is required for the gemini provider (set WEBPILOT_GEMINI_API_KEY)")
		}
	default:
		return fmt.Errorf("adapt.provider must be \"rules\" or \"gemini\", got %q", c.AdaptCfg.Provider)
	}
	return nil
}
