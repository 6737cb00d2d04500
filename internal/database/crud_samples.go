// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package database

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/tomtom215/waymark/internal/models"
)

// AppendSample records a location sample.
func (db *DB) AppendSample(ctx context.Context, s *models.LocationSample) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO location_samples (owner_id, lat, lng, accuracy, speed_mps, heading_deg, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.OwnerID, s.Lat, s.Lng, s.Accuracy, nullFloat(s.SpeedMps), nullFloat(s.HeadingDeg), toMillis(s.CapturedAt))
	if err != nil {
		return fmt.Errorf("failed to append sample: %w", err)
	}
	return nil
}

// RecentSamples returns up to limit of the owner's newest samples, oldest first.
func (db *DB) RecentSamples(ctx context.Context, ownerID string, limit int) ([]models.LocationSample, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT owner_id, lat, lng, accuracy, speed_mps, heading_deg, captured_at
		FROM location_samples
		WHERE owner_id = ?
		ORDER BY captured_at DESC
		LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent samples: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.LocationSample
	for rows.Next() {
		var (
			s              models.LocationSample
			speed, heading sql.NullFloat64
			captured       int64
		)
		if err := rows.Scan(&s.OwnerID, &s.Lat, &s.Lng, &s.Accuracy, &speed, &heading, &captured); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		s.SpeedMps = fromNullFloat(speed)
		s.HeadingDeg = fromNullFloat(heading)
		s.CapturedAt = fromMillis(captured)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(out)
	return out, nil
}

// PurgeSamplesBefore deletes samples captured before cutoff.
func (db *DB) PurgeSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM location_samples WHERE captured_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to purge samples: %w", err)
	}
	return res.RowsAffected()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
