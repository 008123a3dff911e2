package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/audit"
	"github.com/davidleathers/crossborder-health-compliance/internal/infrastructure/config"
)

// New selects a ledger store backend from configuration.
func New(ctx context.Context, cfg *config.LedgerConfig, logger *zap.Logger) (audit.Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		return NewSQLiteStore(cfg.SQLitePath, logger)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DatabaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
