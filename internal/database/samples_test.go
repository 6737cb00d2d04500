// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/models"
)

func setupTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("Failed to open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleStores(t *testing.T) map[string]SampleStore {
	t.Helper()
	sqlite, err := New(&config.DatabaseConfig{Driver: DriverSQLite, Path: ":memory:"})
	if err != nil {
		t.Fatalf("New(sqlite) error = %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]SampleStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
		"badger": NewBadgerSampleStore(setupTestBadger(t), "", 24*time.Hour),
	}
}

func TestSampleStores(t *testing.T) {
	for name, store := range sampleStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			speed := 1.5

			// Appended out of order on purpose.
			for _, offset := range []int{3, 0, 4, 1, 2} {
				s := &models.LocationSample{
					OwnerID:    "alice",
					Lat:        14.5995 + float64(offset)*0.0001,
					Lng:        120.9842,
					Accuracy:   5,
					CapturedAt: baseTime.Add(time.Duration(offset) * time.Minute),
				}
				if offset == 4 {
					s.SpeedMps = &speed
				}
				if err := store.AppendSample(ctx, s); err != nil {
					t.Fatalf("AppendSample() error = %v", err)
				}
			}
			if err := store.AppendSample(ctx, &models.LocationSample{
				OwnerID: "bob", Lat: 1, Lng: 1, CapturedAt: baseTime,
			}); err != nil {
				t.Fatal(err)
			}

			recent, err := store.RecentSamples(ctx, "alice", 3)
			if err != nil {
				t.Fatalf("RecentSamples() error = %v", err)
			}
			if len(recent) != 3 {
				t.Fatalf("RecentSamples() returned %d samples, want 3", len(recent))
			}
			for i, want := range []int{2, 3, 4} {
				if !recent[i].CapturedAt.Equal(baseTime.Add(time.Duration(want) * time.Minute)) {
					t.Errorf("recent[%d].CapturedAt = %v, want +%dm", i, recent[i].CapturedAt, want)
				}
				if recent[i].OwnerID != "alice" {
					t.Errorf("recent[%d] belongs to %q", i, recent[i].OwnerID)
				}
			}
			if recent[2].SpeedMps == nil || *recent[2].SpeedMps != speed {
				t.Errorf("SpeedMps not round-tripped: %v", recent[2].SpeedMps)
			}

			purged, err := store.PurgeSamplesBefore(ctx, baseTime.Add(2*time.Minute))
			if err != nil {
				t.Fatalf("PurgeSamplesBefore() error = %v", err)
			}
			// alice +0m, +1m and bob +0m.
			if purged != 3 {
				t.Errorf("PurgeSamplesBefore() = %d, want 3", purged)
			}

			all, err := store.RecentSamples(ctx, "alice", 10)
			if err != nil || len(all) != 3 {
				t.Errorf("after purge RecentSamples() = %d samples, %v; want 3", len(all), err)
			}
			none, err := store.RecentSamples(ctx, "carol", 5)
			if err != nil || len(none) != 0 {
				t.Errorf("unknown owner RecentSamples() = %v, %v", none, err)
			}
		})
	}
}

func TestBadgerSampleStore_OwnerPrefixIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewBadgerSampleStore(setupTestBadger(t), "loc:", time.Hour)

	// "al" is a byte prefix of "alice"; the separator keeps them apart.
	for _, owner := range []string{"al", "alice"} {
		if err := store.AppendSample(ctx, &models.LocationSample{OwnerID: owner, CapturedAt: baseTime}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.RecentSamples(ctx, "al", 10)
	if err != nil || len(got) != 1 || got[0].OwnerID != "al" {
		t.Errorf("RecentSamples(al) = %+v, %v; want only al's sample", got, err)
	}
}

func TestBadgerSampleStore_Closed(t *testing.T) {
	store := NewBadgerSampleStore(setupTestBadger(t), "", time.Hour)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	err := store.AppendSample(context.Background(), &models.LocationSample{OwnerID: "a", CapturedAt: baseTime})
	if !errors.Is(err, ErrSampleStoreClosed) {
		t.Errorf("AppendSample() after Close error = %v, want ErrSampleStoreClosed", err)
	}
}
