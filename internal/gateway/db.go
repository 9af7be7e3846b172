// Package gateway owns the process-wide database pool for the target
// relational database. The pool is opened once at startup by the composition
// root and injected into everything that needs it.
package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/mattn/go-sqlite3"
)

// Config selects the engine and tunes the connection pool.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// SupportedDrivers lists the registered database/sql driver names.
func SupportedDrivers() []string {
	return []string{"sqlite3", "pgx", "duckdb"}
}

func supported(driver string) bool {
	for _, candidate := range SupportedDrivers() {
		if candidate == driver {
			return true
		}
	}
	return false
}

// Open opens and pings the gateway database.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if !supported(cfg.Driver) {
		return nil, fmt.Errorf("unsupported driver %q (supported: %v)", cfg.Driver, SupportedDrivers())
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open gateway db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping gateway db: %w", err)
	}

	return db, nil
}
