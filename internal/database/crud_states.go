// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/waymark/internal/models"
)

// GetState returns the state row with the given id.
func (db *DB) GetState(ctx context.Context, id string) (*models.NodePlayerState, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM node_player_states s WHERE s.id = ?`, id)
	return scanStateRow(row, id)
}

// GetStateByNodeOwner returns the owner's state row for a node.
func (db *DB) GetStateByNodeOwner(ctx context.Context, nodeID, ownerID string) (*models.NodePlayerState, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+stateColumns+` FROM node_player_states s
		WHERE s.node_id = ? AND s.owner_id = ?`, nodeID, ownerID)
	return scanStateRow(row, nodeID+"/"+ownerID)
}

// ListOwnerStatesByStatus returns the owner's rows in the given status.
func (db *DB) ListOwnerStatesByStatus(ctx context.Context, ownerID string, status models.NodeStatus) ([]models.NodePlayerState, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+stateColumns+` FROM node_player_states s
		WHERE s.owner_id = ? AND s.status = ?
		ORDER BY s.id`, ownerID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list owner states: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.NodePlayerState
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// ListOwnerStatesForNodes returns the owner's rows for the given nodes keyed by node id.
func (db *DB) ListOwnerStatesForNodes(ctx context.Context, ownerID string, nodeIDs []string) (map[string]*models.NodePlayerState, error) {
	out := make(map[string]*models.NodePlayerState, len(nodeIDs))
	if len(nodeIDs) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(nodeIDs)+1)
	args = append(args, ownerID)
	for _, id := range nodeIDs {
		args = append(args, id)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+stateColumns+` FROM node_player_states s
		WHERE s.owner_id = ? AND s.node_id IN (`+placeholders(len(nodeIDs))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list states for nodes: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}
		out[s.NodeID] = s
	}
	return out, rows.Err()
}

// InsertState creates a state row. ErrConflict is returned if the owner
// already has a row for the node.
func (db *DB) InsertState(ctx context.Context, s *models.NodePlayerState) error {
	return insertState(ctx, db.conn, s)
}

func insertState(ctx context.Context, ex execer, s *models.NodePlayerState) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO node_player_states (id, node_id, owner_id, status, reserved_until, arrived_at, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.NodeID, s.OwnerID, string(s.Status),
		toNullMillis(s.ReservedUntil), toNullMillis(s.ArrivedAt), toNullMillis(s.CollectedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("state for node %s owner %s: %w", s.NodeID, s.OwnerID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert state %s: %w", s.ID, err)
	}
	return nil
}

// UpdateState writes the mutable fields of a row whose stored status is
// still from. ErrConflict is returned when the row is missing or another
// request moved it first.
func (db *DB) UpdateState(ctx context.Context, s *models.NodePlayerState, from models.NodeStatus) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE node_player_states
		SET status = ?, reserved_until = ?, arrived_at = ?, collected_at = ?
		WHERE id = ? AND status = ?`,
		string(s.Status), toNullMillis(s.ReservedUntil), toNullMillis(s.ArrivedAt), toNullMillis(s.CollectedAt),
		s.ID, string(from))
	if err != nil {
		return fmt.Errorf("failed to update state %s: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update state %s: %w", s.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("state %s not in %s: %w", s.ID, from, ErrConflict)
	}
	return nil
}

// ExpireStates moves AVAILABLE and RESERVED rows of expired nodes to EXPIRED.
// ARRIVED rows are left for the collect grace window.
func (db *DB) ExpireStates(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE node_player_states
		SET status = 'EXPIRED'
		WHERE status IN ('AVAILABLE', 'RESERVED')
		  AND node_id IN (SELECT id FROM nodes WHERE expires_at <= ?)`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to expire states: %w", err)
	}
	return res.RowsAffected()
}

func scanStateRow(row *sql.Row, key string) (*models.NodePlayerState, error) {
	s, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return s, nil
}

func scanState(row rowScanner) (*models.NodePlayerState, error) {
	var (
		s                            models.NodePlayerState
		status                       string
		reserved, arrived, collected sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.NodeID, &s.OwnerID, &status, &reserved, &arrived, &collected); err != nil {
		return nil, err
	}
	s.Status = models.NodeStatus(status)
	s.ReservedUntil = fromNullMillis(reserved)
	s.ArrivedAt = fromNullMillis(arrived)
	s.CollectedAt = fromNullMillis(collected)
	return &s, nil
}
