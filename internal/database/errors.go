// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package database

import (
	"errors"
	"io"
	"strings"
)

var (
	// ErrNotFound is returned when a node or state row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert collides with an existing
	// (node, owner) state row, or a state update lost a race.
	ErrConflict = errors.New("conflict")
)

// isUniqueViolation matches the constraint errors raised by DuckDB and SQLite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint violation")
}

// closeQuietly closes a resource and explicitly ignores any error
// Use this for cleanup operations in error paths where Close() errors are not actionable
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
