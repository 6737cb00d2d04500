// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package metrics holds the Prometheus instrumentation for Waymark.
//
// Collectors are registered on the default registry through promauto and
// exposed by the API at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Spawning
	NodesSpawned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_nodes_spawned_total",
			Help: "Total number of nodes created by top-up",
		},
		[]string{"type"}, // PERSONAL, HOTSPOT, EVENT
	)

	SpawnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waymark_spawn_duration_seconds",
			Help:    "Duration of a top-up pass in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"type"},
	)

	// Location ingestion
	LocationUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_location_updates_total",
			Help: "Total number of location updates by source and outcome",
		},
		[]string{"source", "outcome"}, // source: api, mqtt; outcome: accepted, rate_limited, invalid, error
	)

	TeleportFlags = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waymark_teleport_flags_total",
			Help: "Total number of queries answered empty because of an implausible jump",
		},
	)

	// Reservation state machine
	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_state_transitions_total",
			Help: "Total number of node player state transitions",
		},
		[]string{"operation", "outcome"}, // operation: reserve, arrive, collect; outcome: ok or error code
	)

	// Maintenance
	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_sweep_runs_total",
			Help: "Total number of maintenance sweeps",
		},
		[]string{"sweep", "status"}, // sweep: expire, retention; status: success, error
	)

	SweepRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_sweep_rows_total",
			Help: "Total number of rows touched by maintenance sweeps",
		},
		[]string{"sweep", "table"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waymark_sweep_duration_seconds",
			Help:    "Duration of maintenance sweeps in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sweep"},
	)

	// Events
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_events_published_total",
			Help: "Total number of node events handed to the publisher",
		},
		[]string{"kind", "status"}, // status: success, error, circuit_open
	)

	IngestLimiters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waymark_ingest_limiters",
			Help: "Per-owner location throttles held by this instance",
		},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waymark_websocket_clients",
			Help: "Current number of connected websocket clients",
		},
	)

	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_auth_attempts_total",
			Help: "Authentication attempts by mode and outcome",
		},
		[]string{"mode", "outcome"}, // outcome: success, missing, invalid, expired
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waymark_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waymark_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waymark_api_active_requests",
			Help: "Current number of active API requests",
		},
	)
)

// RecordSpawn records a top-up pass for one node type.
func RecordSpawn(nodeType string, created int, duration time.Duration) {
	if created > 0 {
		NodesSpawned.WithLabelValues(nodeType).Add(float64(created))
	}
	SpawnDuration.WithLabelValues(nodeType).Observe(duration.Seconds())
}

// RecordLocationUpdate records an ingested location update.
func RecordLocationUpdate(source, outcome string) {
	LocationUpdates.WithLabelValues(source, outcome).Inc()
}

// RecordTransition records a reservation state machine outcome.
func RecordTransition(operation, outcome string) {
	StateTransitions.WithLabelValues(operation, outcome).Inc()
}

// RecordSweep records a maintenance sweep and the rows it touched per table.
func RecordSweep(sweep string, rows map[string]int64, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SweepRuns.WithLabelValues(sweep, status).Inc()
	SweepDuration.WithLabelValues(sweep).Observe(duration.Seconds())
	for table, n := range rows {
		if n > 0 {
			SweepRows.WithLabelValues(sweep, table).Add(float64(n))
		}
	}
}

// RecordEventPublish records the outcome of publishing a node event.
func RecordEventPublish(kind, status string) {
	EventsPublished.WithLabelValues(kind, status).Inc()
}

// RecordIngestLimiters records how many owner throttles are held.
func RecordIngestLimiters(n int) {
	IngestLimiters.Set(float64(n))
}

// RecordAuth records an authentication attempt.
func RecordAuth(mode, outcome string) {
	AuthAttempts.WithLabelValues(mode, outcome).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
