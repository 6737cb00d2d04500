// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/waymark/internal/config"
	"github.com/tomtom215/waymark/internal/models"
)

// baseTime is millisecond-aligned so SQL round trips compare equal.
var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type storeFactory struct {
	name string
	open func(t *testing.T) NodeStore
}

func storeFactories() []storeFactory {
	sqlStore := func(driver string) func(t *testing.T) NodeStore {
		return func(t *testing.T) NodeStore {
			t.Helper()
			db, err := New(&config.DatabaseConfig{Driver: driver, Path: ":memory:"})
			if err != nil {
				t.Fatalf("New(%s) error = %v", driver, err)
			}
			t.Cleanup(func() { _ = db.Close() })
			return db
		}
	}
	return []storeFactory{
		{"memory", func(t *testing.T) NodeStore { return NewMemoryStore() }},
		{"sqlite", sqlStore(DriverSQLite)},
		{"duckdb", sqlStore(DriverDuckDB)},
	}
}

func testNode(id string, typ models.NodeType, region string, expires time.Time) *models.Node {
	return &models.Node{
		ID:        id,
		Type:      typ,
		RegionKey: region,
		CellKey:   region + ":c",
		Lat:       14.5995,
		Lng:       120.9842,
		Quality:   models.QualityGood,
		StartsAt:  baseTime,
		ExpiresAt: expires,
	}
}

func testState(id, nodeID, owner string, status models.NodeStatus) *models.NodePlayerState {
	return &models.NodePlayerState{ID: id, NodeID: nodeID, OwnerID: owner, Status: status}
}

func TestStore_NodeRoundTrip(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s := f.open(t)

			n := testNode("n1", models.NodeTypeEvent, "r1", baseTime.Add(15*time.Minute))
			n.GroupID = "g1"
			n.EventKey = "night:2026-03-10"
			if err := s.InsertNode(ctx, n); err != nil {
				t.Fatalf("InsertNode() error = %v", err)
			}

			got, err := s.GetNode(ctx, "n1")
			if err != nil {
				t.Fatalf("GetNode() error = %v", err)
			}
			if got.Type != n.Type || got.Quality != n.Quality || got.GroupID != "g1" || got.EventKey != n.EventKey {
				t.Errorf("GetNode() = %+v, want %+v", got, n)
			}
			if !got.ExpiresAt.Equal(n.ExpiresAt) || !got.StartsAt.Equal(n.StartsAt) {
				t.Errorf("times = %v/%v, want %v/%v", got.StartsAt, got.ExpiresAt, n.StartsAt, n.ExpiresAt)
			}

			if _, err := s.GetNode(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetNode(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_StateLifecycle(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s := f.open(t)

			n := testNode("n1", models.NodeTypePersonal, "r1", baseTime.Add(15*time.Minute))
			st := testState("s1", "n1", "alice", models.StatusAvailable)
			if err := s.InsertNodeWithState(ctx, n, st); err != nil {
				t.Fatalf("InsertNodeWithState() error = %v", err)
			}

			dup := testState("s2", "n1", "alice", models.StatusAvailable)
			if err := s.InsertState(ctx, dup); !errors.Is(err, ErrConflict) {
				t.Fatalf("duplicate InsertState() error = %v, want ErrConflict", err)
			}

			until := baseTime.Add(5 * time.Minute)
			st.Status = models.StatusReserved
			st.ReservedUntil = &until
			if err := s.UpdateState(ctx, st, models.StatusAvailable); err != nil {
				t.Fatalf("UpdateState() error = %v", err)
			}
			// A second writer still expecting AVAILABLE loses.
			if err := s.UpdateState(ctx, st, models.StatusAvailable); !errors.Is(err, ErrConflict) {
				t.Errorf("stale UpdateState() error = %v, want ErrConflict", err)
			}

			got, err := s.GetStateByNodeOwner(ctx, "n1", "alice")
			if err != nil {
				t.Fatalf("GetStateByNodeOwner() error = %v", err)
			}
			if got.ID != "s1" || got.Status != models.StatusReserved {
				t.Errorf("state = %+v, want s1 RESERVED", got)
			}
			if got.ReservedUntil == nil || !got.ReservedUntil.Equal(until) {
				t.Errorf("ReservedUntil = %v, want %v", got.ReservedUntil, until)
			}

			reserved, err := s.ListOwnerStatesByStatus(ctx, "alice", models.StatusReserved)
			if err != nil || len(reserved) != 1 {
				t.Fatalf("ListOwnerStatesByStatus() = %v, %v; want one row", reserved, err)
			}

			if err := s.UpdateState(ctx, testState("nope", "n1", "alice", models.StatusArrived), models.StatusReserved); !errors.Is(err, ErrConflict) {
				t.Errorf("UpdateState(missing) error = %v, want ErrConflict", err)
			}
			if _, err := s.GetState(ctx, "nope"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetState(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_CountsAndListings(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s := f.open(t)
			now := baseTime
			later := now.Add(10 * time.Minute)

			mustInsert := func(n *models.Node, st *models.NodePlayerState) {
				t.Helper()
				var err error
				if st == nil {
					err = s.InsertNode(ctx, n)
				} else {
					err = s.InsertNodeWithState(ctx, n, st)
				}
				if err != nil {
					t.Fatal(err)
				}
			}

			mustInsert(testNode("p1", models.NodeTypePersonal, "r1", later), testState("s1", "p1", "alice", models.StatusAvailable))
			mustInsert(testNode("p2", models.NodeTypePersonal, "r1", later), testState("s2", "p2", "alice", models.StatusCollected))
			mustInsert(testNode("p3", models.NodeTypePersonal, "r1", now.Add(-time.Minute)), testState("s3", "p3", "alice", models.StatusAvailable))
			mustInsert(testNode("p4", models.NodeTypePersonal, "r1", later), testState("s4", "p4", "bob", models.StatusReserved))

			ev := testNode("e1", models.NodeTypeEvent, "r1", later)
			ev.EventKey = "night:2026-03-10"
			mustInsert(ev, testState("s5", "e1", "alice", models.StatusArrived))

			mustInsert(testNode("h1", models.NodeTypeHotspot, "r1", later), nil)
			mustInsert(testNode("h2", models.NodeTypeHotspot, "r1", now), nil)
			mustInsert(testNode("h3", models.NodeTypeHotspot, "r2", later), nil)

			count, err := s.CountOwnerActiveNodes(ctx, "alice", models.NodeTypePersonal, "", now)
			if err != nil || count != 1 {
				t.Errorf("personal count = %d, %v; want 1", count, err)
			}
			count, err = s.CountOwnerActiveNodes(ctx, "alice", models.NodeTypeEvent, "night:2026-03-10", now)
			if err != nil || count != 1 {
				t.Errorf("event count = %d, %v; want 1", count, err)
			}
			count, err = s.CountOwnerActiveNodes(ctx, "alice", models.NodeTypeEvent, "lunch:2026-03-10", now)
			if err != nil || count != 0 {
				t.Errorf("other event count = %d, %v; want 0", count, err)
			}

			// h2 expires exactly at now and no longer counts.
			count, err = s.CountRegionHotspots(ctx, "r1", now)
			if err != nil || count != 1 {
				t.Errorf("hotspot count = %d, %v; want 1", count, err)
			}

			owned, err := s.ListOwnerNodes(ctx, "alice", now)
			if err != nil {
				t.Fatal(err)
			}
			ids := map[string]bool{}
			for _, o := range owned {
				ids[o.Node.ID] = true
				if o.State == nil || o.State.OwnerID != "alice" {
					t.Errorf("owned node %s has state %+v", o.Node.ID, o.State)
				}
			}
			if len(owned) != 2 || !ids["p1"] || !ids["e1"] {
				t.Errorf("ListOwnerNodes() ids = %v, want p1 and e1", ids)
			}

			hotspots, err := s.ListRegionHotspots(ctx, "r1", now)
			if err != nil || len(hotspots) != 1 || hotspots[0].ID != "h1" {
				t.Errorf("ListRegionHotspots() = %v, %v; want [h1]", hotspots, err)
			}

			if err := s.InsertState(ctx, testState("s6", "h1", "alice", models.StatusReserved)); err != nil {
				t.Fatal(err)
			}
			states, err := s.ListOwnerStatesForNodes(ctx, "alice", []string{"h1", "h3"})
			if err != nil || len(states) != 1 || states["h1"] == nil || states["h1"].ID != "s6" {
				t.Errorf("ListOwnerStatesForNodes() = %v, %v; want h1 -> s6", states, err)
			}
			empty, err := s.ListOwnerStatesForNodes(ctx, "alice", nil)
			if err != nil || len(empty) != 0 {
				t.Errorf("ListOwnerStatesForNodes(nil) = %v, %v", empty, err)
			}
		})
	}
}

func TestStore_Sweeps(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s := f.open(t)
			now := baseTime

			expired := now.Add(-time.Minute)
			for _, tc := range []struct {
				id     string
				status models.NodeStatus
			}{
				{"a", models.StatusAvailable},
				{"r", models.StatusReserved},
				{"v", models.StatusArrived},
				{"c", models.StatusCollected},
			} {
				n := testNode("n-"+tc.id, models.NodeTypePersonal, "r1", expired)
				if err := s.InsertNodeWithState(ctx, n, testState("s-"+tc.id, n.ID, "alice", tc.status)); err != nil {
					t.Fatal(err)
				}
			}
			live := testNode("n-live", models.NodeTypePersonal, "r1", now.Add(time.Minute))
			if err := s.InsertNodeWithState(ctx, live, testState("s-live", live.ID, "alice", models.StatusAvailable)); err != nil {
				t.Fatal(err)
			}
			// A lapsed reservation on a live node is left for the next reserve.
			lapsedNode := testNode("n-lapsed", models.NodeTypePersonal, "r1", now.Add(time.Minute))
			lapsed := testState("s-lapsed", lapsedNode.ID, "alice", models.StatusReserved)
			until := now.Add(-time.Second)
			lapsed.ReservedUntil = &until
			if err := s.InsertNodeWithState(ctx, lapsedNode, lapsed); err != nil {
				t.Fatal(err)
			}

			n, err := s.ExpireStates(ctx, now)
			if err != nil || n != 2 {
				t.Fatalf("ExpireStates() = %d, %v; want 2", n, err)
			}
			for id, want := range map[string]models.NodeStatus{
				"s-a":      models.StatusExpired,
				"s-r":      models.StatusExpired,
				"s-v":      models.StatusArrived,
				"s-c":      models.StatusCollected,
				"s-live":   models.StatusAvailable,
				"s-lapsed": models.StatusReserved,
			} {
				got, err := s.GetState(ctx, id)
				if err != nil || got.Status != want {
					t.Errorf("state %s = %v, %v; want %s", id, got, err, want)
				}
			}

			// Idempotent.
			if n, err := s.ExpireStates(ctx, now); err != nil || n != 0 {
				t.Errorf("second ExpireStates() = %d, %v; want 0", n, err)
			}

			old := testNode("n-old", models.NodeTypePersonal, "r1", now.Add(-8*24*time.Hour))
			if err := s.InsertNodeWithState(ctx, old, testState("s-old", old.ID, "alice", models.StatusExpired)); err != nil {
				t.Fatal(err)
			}
			deleted, err := s.DeleteNodesExpiredBefore(ctx, now.Add(-7*24*time.Hour))
			if err != nil || deleted != 1 {
				t.Fatalf("DeleteNodesExpiredBefore() = %d, %v; want 1", deleted, err)
			}
			if _, err := s.GetNode(ctx, "n-old"); !errors.Is(err, ErrNotFound) {
				t.Errorf("old node still present: %v", err)
			}
			if _, err := s.GetState(ctx, "s-old"); !errors.Is(err, ErrNotFound) {
				t.Errorf("old state still present: %v", err)
			}
			if _, err := s.GetNode(ctx, "n-a"); err != nil {
				t.Errorf("recently expired node removed: %v", err)
			}
		})
	}
}

// TestDB_NodeDeletedByOtherInstance runs two stores over one SQLite file the
// way two server instances share a database.
func TestDB_NodeDeletedByOtherInstance(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "waymark.db")
	open := func() *DB {
		db, err := New(&config.DatabaseConfig{Driver: DriverSQLite, Path: path})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = db.Close() })
		return db
	}
	a, b := open(), open()

	if err := a.InsertNode(ctx, testNode("n1", models.NodeTypeHotspot, "r1", baseTime.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}
	if _, err := a.GetNode(ctx, "n1"); err != nil {
		t.Fatalf("GetNode() before delete error = %v", err)
	}

	n, err := b.DeleteNodesExpiredBefore(ctx, baseTime.Add(2*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("DeleteNodesExpiredBefore() = %d, %v; want 1", n, err)
	}
	if _, err := a.GetNode(ctx, "n1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetNode() after delete on other instance error = %v, want ErrNotFound", err)
	}
}
