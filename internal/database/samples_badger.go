// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package database

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/waymark/internal/models"
)

// ErrSampleStoreClosed is returned after Close.
var ErrSampleStoreClosed = errors.New("sample store is closed")

// BadgerSampleStore keeps location samples in BadgerDB with a TTL matching the
// retention window, so old samples age out even if the sweep never runs.
//
// Key layout: prefix | ownerID | 0x00 | captured_at unix nanos (big endian).
// Keys sort by owner then time, so the newest samples are found with one
// reverse seek.
type BadgerSampleStore struct {
	db     *badger.DB
	prefix []byte
	ttl    time.Duration
	closed bool
	mu     sync.RWMutex
}

// NewBadgerSampleStore creates a sample store over a shared BadgerDB.
// prefix defaults to "loc:".
func NewBadgerSampleStore(db *badger.DB, prefix string, ttl time.Duration) *BadgerSampleStore {
	if prefix == "" {
		prefix = "loc:"
	}
	return &BadgerSampleStore{
		db:     db,
		prefix: []byte(prefix),
		ttl:    ttl,
	}
}

// OpenBadger opens a BadgerDB at path, or an in-memory instance when path is empty.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", path, err)
	}
	return db, nil
}

func (s *BadgerSampleStore) ownerPrefix(ownerID string) []byte {
	key := make([]byte, 0, len(s.prefix)+len(ownerID)+1)
	key = append(key, s.prefix...)
	key = append(key, ownerID...)
	return append(key, 0)
}

func (s *BadgerSampleStore) makeKey(ownerID string, at time.Time) []byte {
	key := s.ownerPrefix(ownerID)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(at.UnixNano()))
	return append(key, ts[:]...)
}

func (s *BadgerSampleStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSampleStoreClosed
	}
	return nil
}

// AppendSample records a location sample.
func (s *BadgerSampleStore) AppendSample(ctx context.Context, sample *models.LocationSample) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to encode sample: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(s.makeKey(sample.OwnerID, sample.CapturedAt), data)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
}

// RecentSamples returns up to limit of the owner's newest samples, oldest first.
func (s *BadgerSampleStore) RecentSamples(ctx context.Context, ownerID string, limit int) ([]models.LocationSample, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	prefix := s.ownerPrefix(ownerID)
	var out []models.LocationSample

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(bytes.Clone(prefix), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			var sample models.LocationSample
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sample)
			}); err != nil {
				return fmt.Errorf("failed to decode sample: %w", err)
			}
			out = append(out, sample)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Reverse(out)
	return out, nil
}

// PurgeSamplesBefore deletes samples captured before cutoff.
func (s *BadgerSampleStore) PurgeSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		cutoffNanos := uint64(cutoff.UnixNano())
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if len(key) < len(s.prefix)+9 {
				continue
			}
			if binary.BigEndian.Uint64(key[len(key)-8:]) < cutoffNanos {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan samples: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("failed to delete sample: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush sample deletes: %w", err)
	}
	return int64(len(stale)), nil
}

// Close marks the store closed. The shared BadgerDB is left open.
func (s *BadgerSampleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
