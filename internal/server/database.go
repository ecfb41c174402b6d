package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/arrestlog/internal/common"
	"github.com/joseph-ayodele/arrestlog/internal/repository"
)

// ConnectDB opens the configured store, pings it and, when asked to, creates
// the tables.
func ConnectDB(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repository.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	logger.Info("connecting to database", "driver", cfg.Driver)
	db, err := repository.Open(ctx, repository.ConfigFrom(cfg), logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	if err := repository.HealthCheck(ctx, db, timeout, logger); err != nil {
		logger.Error("database ping failed", "error", err)
		db.Close(logger)
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := repository.Migrate(ctx, db); err != nil {
			logger.Error("database migration failed", "error", err)
			db.Close(logger)
			return nil, err
		}
		logger.Info("database schema up to date")
	}

	logger.Info("successfully connected to database", "dialect", db.Dialect())
	return db, nil
}
