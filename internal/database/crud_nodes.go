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
	"strings"
	"time"

	"github.com/tomtom215/waymark/internal/models"
)

const nodeColumns = `n.id, n.type, n.region_key, n.cell_key, n.lat, n.lng, n.quality,
	n.starts_at, n.expires_at, n.group_id, n.event_key`

const stateColumns = `s.id, s.node_id, s.owner_id, s.status, s.reserved_until, s.arrived_at, s.collected_at`

// activeStatuses is the SQL list of statuses that count toward a live allotment.
const activeStatuses = `('AVAILABLE', 'RESERVED', 'ARRIVED')`

type rowScanner interface {
	Scan(dest ...any) error
}

// InsertNode persists a node with no owner state (hotspots).
func (db *DB) InsertNode(ctx context.Context, n *models.Node) error {
	return insertNode(ctx, db.conn, n)
}

// InsertNodeWithState persists a node and its first owner state atomically.
func (db *DB) InsertNodeWithState(ctx context.Context, n *models.Node, s *models.NodePlayerState) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertNode(ctx, tx, n); err != nil {
		return err
	}
	if err := insertState(ctx, tx, s); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit node: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertNode(ctx context.Context, ex execer, n *models.Node) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO nodes (id, type, region_key, cell_key, lat, lng, quality, starts_at, expires_at, group_id, event_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, string(n.Type), n.RegionKey, n.CellKey, n.Lat, n.Lng, string(n.Quality),
		toMillis(n.StartsAt), toMillis(n.ExpiresAt), nullString(n.GroupID), nullString(n.EventKey))
	if err != nil {
		return fmt.Errorf("failed to insert node %s: %w", n.ID, err)
	}
	return nil
}

// GetNode returns the node with the given id. Every lookup reads the
// store, so a node deleted by another instance is never served.
func (db *DB) GetNode(ctx context.Context, id string) (*models.Node, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes n WHERE n.id = ?`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node %s: %w", id, err)
	}
	return n, nil
}

// CountOwnerActiveNodes counts the owner's unexpired nodes of type t whose
// state is still live. A non-empty eventKey restricts the count to that event.
func (db *DB) CountOwnerActiveNodes(ctx context.Context, ownerID string, t models.NodeType, eventKey string, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM node_player_states s
		JOIN nodes n ON n.id = s.node_id
		WHERE s.owner_id = ? AND n.type = ? AND n.expires_at > ?
		  AND s.status IN ` + activeStatuses
	args := []any{ownerID, string(t), toMillis(now)}
	if eventKey != "" {
		query += ` AND n.event_key = ?`
		args = append(args, eventKey)
	}

	var count int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count owner nodes: %w", err)
	}
	return count, nil
}

// CountRegionHotspots counts unexpired hotspot nodes in a region.
func (db *DB) CountRegionHotspots(ctx context.Context, regionKey string, now time.Time) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM nodes
		WHERE type = 'HOTSPOT' AND region_key = ? AND expires_at > ?`,
		regionKey, toMillis(now)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count region hotspots: %w", err)
	}
	return count, nil
}

// ListOwnerNodes returns the owner's unexpired personal and event nodes whose
// state is not terminal.
func (db *DB) ListOwnerNodes(ctx context.Context, ownerID string, now time.Time) ([]models.NodeWithState, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+nodeColumns+`, `+stateColumns+`
		FROM node_player_states s
		JOIN nodes n ON n.id = s.node_id
		WHERE s.owner_id = ? AND n.type IN ('PERSONAL', 'EVENT') AND n.expires_at > ?
		  AND s.status IN `+activeStatuses+`
		ORDER BY n.expires_at, n.id`,
		ownerID, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to list owner nodes: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.NodeWithState
	for rows.Next() {
		n, s, err := scanNodeWithState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan owner node: %w", err)
		}
		out = append(out, models.NodeWithState{Node: *n, State: s})
	}
	return out, rows.Err()
}

// ListRegionHotspots returns the unexpired hotspot nodes in a region.
func (db *DB) ListRegionHotspots(ctx context.Context, regionKey string, now time.Time) ([]models.Node, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes n
		WHERE n.type = 'HOTSPOT' AND n.region_key = ? AND n.expires_at > ?
		ORDER BY n.group_id, n.id`,
		regionKey, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to list region hotspots: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hotspot: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// DeleteNodesExpiredBefore removes nodes that expired before cutoff together
// with their state rows. It returns the number of nodes removed.
func (db *DB) DeleteNodesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ms := toMillis(cutoff)
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM node_player_states
		WHERE node_id IN (SELECT id FROM nodes WHERE expires_at < ?)`, ms); err != nil {
		return 0, fmt.Errorf("failed to delete states of old nodes: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE expires_at < ?`, ms)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old nodes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted nodes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit node deletion: %w", err)
	}
	return n, nil
}

func scanNode(row rowScanner) (*models.Node, error) {
	var (
		n                 models.Node
		typ, quality      string
		startsAt, expires int64
		groupID, eventKey sql.NullString
	)
	if err := row.Scan(&n.ID, &typ, &n.RegionKey, &n.CellKey, &n.Lat, &n.Lng, &quality,
		&startsAt, &expires, &groupID, &eventKey); err != nil {
		return nil, err
	}
	n.Type = models.NodeType(typ)
	n.Quality = models.Quality(quality)
	n.StartsAt = fromMillis(startsAt)
	n.ExpiresAt = fromMillis(expires)
	n.GroupID = groupID.String
	n.EventKey = eventKey.String
	return &n, nil
}

func scanNodeWithState(row rowScanner) (*models.Node, *models.NodePlayerState, error) {
	var (
		n                            models.Node
		s                            models.NodePlayerState
		typ, quality, status         string
		startsAt, expires            int64
		groupID, eventKey            sql.NullString
		reserved, arrived, collected sql.NullInt64
	)
	if err := row.Scan(&n.ID, &typ, &n.RegionKey, &n.CellKey, &n.Lat, &n.Lng, &quality,
		&startsAt, &expires, &groupID, &eventKey,
		&s.ID, &s.NodeID, &s.OwnerID, &status, &reserved, &arrived, &collected); err != nil {
		return nil, nil, err
	}
	n.Type = models.NodeType(typ)
	n.Quality = models.Quality(quality)
	n.StartsAt = fromMillis(startsAt)
	n.ExpiresAt = fromMillis(expires)
	n.GroupID = groupID.String
	n.EventKey = eventKey.String

	s.Status = models.NodeStatus(status)
	s.ReservedUntil = fromNullMillis(reserved)
	s.ArrivedAt = fromNullMillis(arrived)
	s.CollectedAt = fromNullMillis(collected)
	return &n, &s, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
