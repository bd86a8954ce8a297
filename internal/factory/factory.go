// Package factory constructs driver-specific dependencies from config.
package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/notecore/notecore/internal/config"
	"github.com/notecore/notecore/internal/store"
	"github.com/notecore/notecore/internal/store/postgres"
	"github.com/notecore/notecore/internal/store/sqlite"
)

// NewStore opens the store selected by DB_DRIVER.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		st, err := sqlite.OpenStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("sqlite store ready")
		return st, nil
	case "postgres":
		st, _, err := postgres.OpenStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		log.Info().Msg("postgres store ready")
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}
}
