package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"github.com/iliyamo/account-auth/internal/config"
)

//go:embed migrations
var migrations embed.FS

var gooseDialects = map[string]goose.Dialect{
	config.DriverMySQL:    goose.DialectMySQL,
	config.DriverPostgres: goose.DialectPostgres,
	config.DriverSQLite:   goose.DialectSQLite3,
}

// Migrate applies every pending migration of the driver's dialect and
// returns how many ran.
func Migrate(ctx context.Context, db *sql.DB, driver string) (int, error) {
	dialect, ok := gooseDialects[driver]
	if !ok {
		return 0, fmt.Errorf("database: unsupported driver %q", driver)
	}
	fsys, err := fs.Sub(migrations, "migrations/"+driver)
	if err != nil {
		return 0, fmt.Errorf("migrations for %s: %w", driver, err)
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate up: %w", err)
	}
	return len(results), nil
}
