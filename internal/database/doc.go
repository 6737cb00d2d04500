// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

/*
Package database persists nodes, per-owner node states and location samples.

# Backends

Three NodeStore implementations share one contract:

  - DB over DuckDB (default, github.com/duckdb/duckdb-go/v2)
  - DB over SQLite (modernc.org/sqlite, pure Go, no cgo)
  - MemoryStore, a mutex-guarded in-process store used by tests and demos

Location samples can live in the same SQL database or in BadgerDB through
BadgerSampleStore, whose keys carry a TTL equal to the sample retention window.

# Concurrency

UpdateState is a compare-and-set on the previous status. A lost race returns
ErrConflict, which the reservation machine maps to a domain error. Inserting
a second state row for the same (node, owner) pair also returns ErrConflict.

# Caching

Node rows never change after insert. DB keeps an LRU of nodes by id and
clears it whenever the retention sweep deletes rows.
*/
package database
