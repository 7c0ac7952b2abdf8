package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/iliyamo/account-auth/internal/config"
	"github.com/iliyamo/account-auth/internal/repository"
)

// driverNames maps DB_DRIVER values to database/sql driver names.
var driverNames = map[string]string{
	config.DriverMySQL:    "mysql",
	config.DriverPostgres: "pgx",
	config.DriverSQLite:   "sqlite",
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	name, ok := driverNames[driver]
	if !ok {
		return nil, fmt.Errorf("database: unsupported driver %q", driver)
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	if driver == config.DriverSQLite {
		// One writer at a time; busy_timeout in the DSN covers the rest.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	// Ping with timeout
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// DialectFor returns the SQL dialect the repository layer speaks for driver.
func DialectFor(driver string) repository.Dialect {
	switch driver {
	case config.DriverPostgres:
		return repository.Postgres
	case config.DriverSQLite:
		return repository.SQLite
	default:
		return repository.MySQL
	}
}
