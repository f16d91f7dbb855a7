// File: cmd/components.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/adapt"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
	"github.com/xkilldash9x/webpilot-cli/internal/registry"
)

// newJobStore builds the configured registry backend. The returned cleanup
// releases the underlying pool and is safe to call on every path.
func newJobStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.JobStore, func(), error) {
	switch cfg.RegistryCfg.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.RegistryCfg.PostgresURL)
		if err != nil {
			return nil, func() {}, fmt.Errorf("creating postgres pool: %w", err)
		}
		store, err := registry.NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		return store, pool.Close, nil
	default:
		return registry.NewMemoryStore(), func() {}, nil
	}
}

// newProposer builds the configured adaptation provider.
func newProposer(cfg *config.Config, logger *zap.Logger) (schemas.ProposalProvider, error) {
	if cfg.AdaptCfg.Provider == "gemini" {
		return adapt.NewGeminiProposer(cfg.AdaptCfg.Gemini, logger)
	}
	return adapt.NewRulesProposer(logger), nil
}
