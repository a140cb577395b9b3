package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/converso-io/converso-ce/internal/config"
)

// Connect opens the configured database and verifies the connection.
// Supported drivers are postgres for deployments and sqlite3 for local
// development and tests.
func Connect(ctx context.Context, cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	var dsn string
	switch cfg.Driver {
	case "postgres":
		dsn = cfg.GetDSN()
	case "sqlite3":
		dsn = cfg.Path + "?_foreign_keys=on"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
