package migrations

import (
	"context"
	"fmt"
	"strings"

	"alpha-custody/internal/storage/postgres"
)

// RunPostgresMigrations applies all embedded SQL files in lexical order.
// Migrations are idempotent, so this runs on every start of a journaled run.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	contents, names, err := sqlFiles(PostgresFS, "postgres")
	if err != nil {
		return err
	}

	for _, name := range names {
		sql := contents[name]
		if strings.TrimSpace(sql) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}

	return nil
}
