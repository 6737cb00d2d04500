// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package main

import (
	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/database"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/policy"
)

// storage bundles the opened stores and knows how to close them.
type storage struct {
	db      *database.DB
	samples database.SampleStore
	badger  *badger.DB
}

// initStorage opens the SQL store and, when SAMPLES_BACKEND=badger, a
// BadgerDB for location samples.
func initStorage(cfg *config.Config, pol *policy.Policy) (*storage, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, err
	}
	st := &storage{db: db, samples: db}

	if cfg.Samples.Backend != "badger" {
		return st, nil
	}

	bdb, err := database.OpenBadger(cfg.Samples.BadgerPath)
	if err != nil {
		st.close()
		return nil, err
	}
	st.badger = bdb
	st.samples = database.NewBadgerSampleStore(bdb, "", pol.Retention.Samples)

	logging.Info().
		Str("path", cfg.Samples.BadgerPath).
		Dur("ttl", pol.Retention.Samples).
		Msg("Location samples stored in BadgerDB")
	return st, nil
}

func (s *storage) close() {
	if closer, ok := s.samples.(*database.BadgerSampleStore); ok {
		if err := closer.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing sample store")
		}
	}
	if s.badger != nil {
		if err := s.badger.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing BadgerDB")
		}
	}
	if err := s.db.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing database")
	}
}
