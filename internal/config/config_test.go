package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "webpilot-cli", cfg.Logger().ServiceName)
	assert.Equal(t, int64(4), cfg.Engine().MaxConcurrentSessions)
	assert.Equal(t, 0.8, cfg.Resolver().AcceptThreshold)
	assert.Equal(t, 0.7, cfg.Resolver().AmbiguityPenalty)
	assert.Equal(t, 3, cfg.Session().ChallengeRetryBudget)
	assert.Equal(t, 500*time.Millisecond, cfg.Executor().RetryBaseDelay)
	assert.Equal(t, 8*time.Second, cfg.Executor().RetryMaxDelay)
	assert.Equal(t, "memory", cfg.Registry().Backend)
	assert.Equal(t, "rules", cfg.Adapt().Provider)

	require.NoError(t, cfg.Validate())
}

func TestNewConfigFromViper_Overrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("engine.max_concurrent_sessions", 2)
	v.Set("resolver.accept_threshold", 0.9)
	v.Set("session.expiry", "5m")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, int64(2), cfg.Engine().MaxConcurrentSessions)
	assert.Equal(t, 0.9, cfg.Resolver().AcceptThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Session().Expiry)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "zero concurrency",
			mutate: func(c *Config) { c.EngineCfg.MaxConcurrentSessions = 0 },
			want:   "max_concurrent_sessions",
		},
		{
			name:   "threshold out of range",
			mutate: func(c *Config) { c.ResolverCfg.AcceptThreshold = 1.5 },
			want:   "accept_threshold",
		},
		{
			name:   "ambiguity penalty not a penalty",
			mutate: func(c *Config) { c.ResolverCfg.AmbiguityPenalty = 1.0 },
			want:   "ambiguity_penalty",
		},
		{
			name:   "postgres backend without url",
			mutate: func(c *Config) { c.RegistryCfg.Backend = "postgres" },
			want:   "postgres_url",
		},
		{
			name:   "unknown registry backend",
			mutate: func(c *Config) { c.RegistryCfg.Backend = "etcd" },
			want:   "registry.backend",
		},
		{
			name:   "gemini provider without key",
			mutate: func(c *Config) { c.AdaptCfg.Provider = "gemini" },
			want:   "api_key",
		},
		{
			name: "inverted retry delays",
			mutate: func(c *Config) {
				c.ExecutorCfg.RetryBaseDelay = time.Second
				c.ExecutorCfg.RetryMaxDelay = time.Millisecond
			},
			want: "retry delays",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
