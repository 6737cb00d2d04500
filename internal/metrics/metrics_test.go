// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSpawn(t *testing.T) {
	before := testutil.ToFloat64(NodesSpawned.WithLabelValues("HOTSPOT"))

	RecordSpawn("HOTSPOT", 3, 2*time.Millisecond)
	RecordSpawn("HOTSPOT", 0, time.Millisecond)

	if got := testutil.ToFloat64(NodesSpawned.WithLabelValues("HOTSPOT")) - before; got != 3 {
		t.Errorf("NodesSpawned delta = %v, want 3", got)
	}
}

func TestRecordSweep(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus string
	}{
		{"success", nil, "success"},
		{"failure", errors.New("database is locked"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := SweepRuns.WithLabelValues("expire", tt.wantStatus)
			rows := SweepRows.WithLabelValues("expire", "node_player_states")
			beforeRuns := testutil.ToFloat64(runs)
			beforeRows := testutil.ToFloat64(rows)

			RecordSweep("expire", map[string]int64{"node_player_states": 4, "nodes": 0}, time.Millisecond, tt.err)

			if got := testutil.ToFloat64(runs) - beforeRuns; got != 1 {
				t.Errorf("SweepRuns delta = %v, want 1", got)
			}
			if got := testutil.ToFloat64(rows) - beforeRows; got != 4 {
				t.Errorf("SweepRows delta = %v, want 4", got)
			}
		})
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests) - before; got != 1 {
		t.Errorf("APIActiveRequests delta = %v, want 1", got)
	}
}

func TestRecordTransitionAndPublish(t *testing.T) {
	RecordTransition("collect", "GRACE_ELAPSED")
	RecordEventPublish("node_collected", "circuit_open")
	RecordLocationUpdate("mqtt", "rate_limited")

	if got := testutil.ToFloat64(StateTransitions.WithLabelValues("collect", "GRACE_ELAPSED")); got < 1 {
		t.Errorf("StateTransitions = %v, want >= 1", got)
	}
	if got := testutil.ToFloat64(EventsPublished.WithLabelValues("node_collected", "circuit_open")); got < 1 {
		t.Errorf("EventsPublished = %v, want >= 1", got)
	}
	if got := testutil.ToFloat64(LocationUpdates.WithLabelValues("mqtt", "rate_limited")); got < 1 {
		t.Errorf("LocationUpdates = %v, want >= 1", got)
	}
}

func TestRecordIngestLimiters(t *testing.T) {
	RecordIngestLimiters(7)
	if got := testutil.ToFloat64(IngestLimiters); got != 7 {
		t.Errorf("IngestLimiters = %v, want 7", got)
	}
	RecordIngestLimiters(0)
	if got := testutil.ToFloat64(IngestLimiters); got != 0 {
		t.Errorf("IngestLimiters = %v, want 0", got)
	}
}
