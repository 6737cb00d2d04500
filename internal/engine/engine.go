// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package engine is the single entry point the transports call. It
// sequences ingestion, teleport screening, generation, querying and the
// reservation state machine, and fans successful transitions out to the
// event publisher and the owner's websocket clients.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/waymark/internal/events"
	"github.com/tomtom215/waymark/internal/geo"
	"github.com/tomtom215/waymark/internal/ingest"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/metrics"
	"github.com/tomtom215/waymark/internal/models"
	"github.com/tomtom215/waymark/internal/policy"
	"github.com/tomtom215/waymark/internal/query"
	"github.com/tomtom215/waymark/internal/reservation"
	"github.com/tomtom215/waymark/internal/spawn"
)

// ErrInvalidLocation is returned by QueryNodes for impossible coordinates.
var ErrInvalidLocation = errors.New("invalid location")

// NodeStore is everything the engine's components need from node storage.
type NodeStore interface {
	spawn.Store
	reservation.Store
	query.Store
}

// Publisher receives node lifecycle events.
type Publisher interface {
	PublishEvent(ctx context.Context, e *events.NodeEvent) error
}

// Notifier pushes invalidations to an owner's live clients.
type Notifier interface {
	InvalidateOwner(ownerID, reason, nodeID string)
}

// Options wires optional collaborators and test seams.
type Options struct {
	// Publisher and Notifier may be nil.
	Publisher Publisher
	Notifier  Notifier

	// Ingest throttling.
	RatePerSecond float64
	Burst         int
	LimiterIdle   time.Duration

	Now   func() time.Time
	Rand  geo.Rand
	NewID func() string
}

// Engine implements the inbound operations.
type Engine struct {
	ingest  *ingest.Ingestor
	gen     *spawn.Generator
	machine *reservation.Machine
	query   *query.Builder

	pub    Publisher
	notify Notifier
	now    func() time.Time
}

// New assembles an Engine over the given stores.
func New(nodes NodeStore, samples ingest.Store, pol *policy.Policy, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		ingest: ingest.New(samples, pol, ingest.Options{
			RatePerSecond: opts.RatePerSecond,
			Burst:         opts.Burst,
			LimiterIdle:   opts.LimiterIdle,
			Now:           opts.Now,
		}),
		gen:     spawn.New(nodes, pol, spawn.Options{Now: opts.Now, Rand: opts.Rand, NewID: opts.NewID}),
		machine: reservation.New(nodes, pol, reservation.Options{Now: opts.Now, Rand: opts.Rand, NewID: opts.NewID}),
		query:   query.NewBuilder(nodes, pol, opts.Now),
		pub:     opts.Publisher,
		notify:  opts.Notifier,
		now:     opts.Now,
	}
}

// UpdateLocation records a location sample. source labels the transport
// ("api", "mqtt") in metrics.
func (e *Engine) UpdateLocation(ctx context.Context, source string, s *models.LocationSample) error {
	err := e.ingest.Record(ctx, s)
	switch {
	case err == nil:
		metrics.RecordLocationUpdate(source, "ok")
	case errors.Is(err, ingest.ErrRateLimited):
		metrics.RecordLocationUpdate(source, "rate_limited")
	case errors.Is(err, ingest.ErrInvalidSample):
		metrics.RecordLocationUpdate(source, "invalid")
	default:
		metrics.RecordLocationUpdate(source, "error")
		logging.Ctx(ctx).Error().Err(err).Str("source", source).Msg("Location update failed")
	}
	return err
}

// QueryNodes tops up the owner's nodes around (lat, lng) and returns what
// they can see. When recent samples show an implausible jump the payload is
// empty and flagged instead; this is a soft signal, not an error.
func (e *Engine) QueryNodes(ctx context.Context, ownerID string, lat, lng float64) (*models.MapPayload, error) {
	if !geo.ValidCoordinate(lat, lng) {
		return nil, ErrInvalidLocation
	}

	tp, flagged, err := e.ingest.CheckTeleport(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if flagged {
		metrics.TeleportFlags.Inc()
		logging.Ctx(ctx).Warn().
			Float64("distance_m", tp.DistanceM).
			Dur("elapsed", tp.Elapsed).
			Float64("speed_mps", tp.SpeedMps).
			Msg("Implausible movement, serving empty map")
		return e.query.Flagged(lat, lng, fmt.Sprintf("implausible movement: %.0f m in %s", tp.DistanceM, tp.Elapsed.Round(time.Second))), nil
	}

	mv, err := e.ingest.Movement(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	req := spawn.Request{OwnerID: ownerID, Lat: lat, Lng: lng, Movement: mv}
	if _, err := e.gen.TopUp(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to generate nodes: %w", err)
	}
	return e.query.Build(ctx, ownerID, lat, lng)
}

// Reserve claims a node for the owner.
func (e *Engine) Reserve(ctx context.Context, ownerID, nodeID string) (*models.ReservationResult, error) {
	res, err := e.machine.Reserve(ctx, ownerID, nodeID)
	if err != nil {
		return nil, err
	}
	e.announce(ctx, events.NewNodeEvent(events.KindReserved, ownerID, res.NodeID, res.ReservationID, res.Status, e.now()))
	return res, nil
}

// Arrive confirms the owner reached a reserved node.
func (e *Engine) Arrive(ctx context.Context, ownerID, reservationID string, lat, lng *float64) (*models.ArrivalResult, error) {
	res, err := e.machine.Arrive(ctx, ownerID, reservationID, lat, lng)
	if err != nil {
		return nil, err
	}
	e.announce(ctx, events.NewNodeEvent(events.KindArrived, ownerID, res.NodeID, res.ReservationID, res.Status, res.ArrivedAt))
	return res, nil
}

// Collect finishes a node. id is a reservation id or a node id.
func (e *Engine) Collect(ctx context.Context, ownerID, id string) (*models.CollectResult, error) {
	res, err := e.machine.Collect(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	ev := events.NewNodeEvent(events.KindCollected, ownerID, res.NodeID, res.ReservationID, res.Status, res.CollectedAt)
	ev.Quality = res.Quality
	ev.Rarity = res.Rarity
	e.announce(ctx, ev)
	return res, nil
}

// announce publishes ev and invalidates the owner's clients. Failures are
// logged and never surface to the caller.
func (e *Engine) announce(ctx context.Context, ev *events.NodeEvent) {
	if e.pub != nil {
		if err := e.pub.PublishEvent(ctx, ev); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("kind", string(ev.Kind)).Str("node_id", ev.NodeID).Msg("Failed to publish node event")
		}
	}
	if e.notify != nil {
		e.notify.InvalidateOwner(ev.OwnerID, string(ev.Kind), ev.NodeID)
	}
}

// PruneLimiters drops ingest throttles idle for longer than Options.LimiterIdle.
func (e *Engine) PruneLimiters() int {
	return e.ingest.PruneLimiters()
}
