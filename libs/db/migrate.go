package db

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies the goose SQL migrations stored under dir in fsys,
// tracking versions in table. Services embed their migrations and call this
// at startup; each service uses its own table so they can share a database.
func Migrate(ctx context.Context, pool *Pool, fsys fs.FS, dir, table string) (int, error) {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("migrations dir: %w", err)
	}

	// Goose works on *sql.DB; closing the provider closes only this wrapper, not the pool.
	provider, err := goose.NewProvider(goose.DialectPostgres, stdlib.OpenDBFromPool(pool.Pool), sub,
		goose.WithTableName(table),
	)
	if err != nil {
		return 0, fmt.Errorf("goose provider: %w", err)
	}
	defer func() { _ = provider.Close() }()

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	return len(results), nil
}
