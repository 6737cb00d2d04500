// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

/*
schema.go - Database Schema Management

Tables:
  - nodes: immutable spawned nodes, keyed by id and grouped by region_key
  - node_player_states: per-owner lifecycle rows, unique on (node_id, owner_id)
  - location_samples: append-only player positions for movement inference

All timestamps are stored as BIGINT unix milliseconds so the same DDL and
queries run unchanged on DuckDB and SQLite.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		region_key TEXT NOT NULL,
		cell_key TEXT NOT NULL,
		lat DOUBLE NOT NULL,
		lng DOUBLE NOT NULL,
		quality TEXT NOT NULL,
		starts_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL,
		group_id TEXT,
		event_key TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_region ON nodes(region_key, type, expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_expires ON nodes(expires_at)`,
	`CREATE TABLE IF NOT EXISTS node_player_states (
		id TEXT PRIMARY KEY,
		node_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		status TEXT NOT NULL,
		reserved_until BIGINT,
		arrived_at BIGINT,
		collected_at BIGINT,
		UNIQUE (node_id, owner_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_states_owner ON node_player_states(owner_id)`,
	`CREATE TABLE IF NOT EXISTS location_samples (
		owner_id TEXT NOT NULL,
		lat DOUBLE NOT NULL,
		lng DOUBLE NOT NULL,
		accuracy DOUBLE NOT NULL DEFAULT 0,
		speed_mps DOUBLE,
		heading_deg DOUBLE,
		captured_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_samples_owner_time ON location_samples(owner_id, captured_at)`,
}

// createTables applies the schema. Every statement is idempotent.
func (db *DB) createTables(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
