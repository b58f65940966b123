package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"alpha-custody/internal/config"
	"alpha-custody/internal/storage"
	chstore "alpha-custody/internal/storage/clickhouse"
	"alpha-custody/internal/storage/memory"
	"alpha-custody/internal/storage/migrations"
	"alpha-custody/internal/storage/postgres"
)

// journal bundles the run and snapshot stores with their connections.
type journal struct {
	runs      storage.RunStore
	snapshots storage.SnapshotStore
	closers   []func()
}

// Close releases every backend connection.
func (j *journal) Close() {
	for i := len(j.closers) - 1; i >= 0; i-- {
		j.closers[i]()
	}
}

// openJournal returns memory stores unless a DSN selects postgres for runs
// or ClickHouse for snapshots. Migrations run before first use.
func openJournal(ctx context.Context, cfg config.JournalConfig, logger *zap.Logger) (*journal, error) {
	j := &journal{
		runs:      memory.NewRunStore(),
		snapshots: memory.NewSnapshotStore(),
	}

	if cfg.PostgresDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		j.closers = append(j.closers, pool.Close)

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			j.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		j.runs = postgres.NewRunStore(pool)
		logger.Info("run journal in postgres")
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			j.Close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		j.closers = append(j.closers, func() { _ = conn.Close() })
		j.snapshots = chstore.NewSnapshotStore(conn)
		logger.Info("stake snapshots in clickhouse")
	}

	return j, nil
}
