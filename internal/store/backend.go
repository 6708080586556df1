package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"guardattend/internal/config"
	"guardattend/internal/metrics"
	"guardattend/internal/tablestore"
)

// OpenBackend builds the record store backend selected by cfg.StoreBackend,
// wrapped with instrumentation and, if enabled, the read cache. The returned
// close function releases any database handle.
func OpenBackend(ctx context.Context, cfg config.App, m *metrics.Collectors, log *zap.Logger) (tablestore.Backend, func() error, error) {
	var (
		backend tablestore.Backend
		closer  = func() error { return nil }
	)

	switch cfg.StoreBackend {
	case "xlsx", "":
		backend = tablestore.NewXLSX(cfg.DataDir)
	case "memory":
		backend = tablestore.NewMemory()
	case "sqlite":
		db, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		backend, closer = tablestore.NewSQL(db.Client, tablestore.SQLite), db.Close
	case "postgres":
		db, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		backend, closer = tablestore.NewSQL(db.Client, tablestore.Postgres), db.Close
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	log.Info("record store ready",
		zap.String("backend", cfg.StoreBackend), zap.Bool("cache", cfg.StoreCache))

	backend = tablestore.Instrument(backend, m, log.Named("store"))
	if cfg.StoreCache {
		backend = tablestore.NewCached(backend)
	}
	return backend, closer, nil
}
