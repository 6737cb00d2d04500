// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"

	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/logging"
)

// Supported SQL drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

// DB is the SQL-backed node, state and sample store.
type DB struct {
	conn   *sql.DB
	driver string
}

// New opens the configured database and ensures the schema exists.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	if cfg.Path != "" && cfg.Path != ":memory:" {
		dir := filepath.Dir(cfg.Path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	dsn, err := dataSourceName(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	if cfg.Driver == DriverSQLite {
		// SQLite serializes writers; a single connection also keeps
		// :memory: databases alive across calls.
		conn.SetMaxOpenConns(1)
		conn.SetConnMaxIdleTime(5 * time.Minute)
	} else if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	db := &DB{
		conn:   conn,
		driver: cfg.Driver,
	}

	ctx, cancel := schemaContext()
	defer cancel()
	if err := db.createTables(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().
		Str("driver", cfg.Driver).
		Str("path", cfg.Path).
		Msg("Database opened")

	return db, nil
}

func dataSourceName(driver, path string) (string, error) {
	switch driver {
	case DriverDuckDB:
		if path == ":memory:" {
			return "", nil
		}
		return path, nil
	case DriverSQLite:
		if path == "" || path == ":memory:" {
			return ":memory:", nil
		}
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Driver returns the SQL driver name in use.
func (db *DB) Driver() string {
	return db.driver
}

// Ping verifies the connection is usable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}
