// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package reservation implements the per-owner node lifecycle:
//
//	AVAILABLE -> RESERVED -> ARRIVED -> COLLECTED
//
// with EXPIRED reached through the node's clock and a direct path to
// COLLECTED inside the post-expiry grace window. COLLECTED and EXPIRED are
// terminal.
//
// Every write is conditional on the status that was read, so two racing
// requests for the same row cannot both succeed.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/waymark/internal/database"
	"github.com/tomtom215/waymark/internal/geo"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/metrics"
	"github.com/tomtom215/waymark/internal/models"
	"github.com/tomtom215/waymark/internal/policy"
)

// Store is the persistence the state machine needs.
type Store interface {
	GetNode(ctx context.Context, id string) (*models.Node, error)
	GetState(ctx context.Context, id string) (*models.NodePlayerState, error)
	GetStateByNodeOwner(ctx context.Context, nodeID, ownerID string) (*models.NodePlayerState, error)
	ListOwnerStatesByStatus(ctx context.Context, ownerID string, status models.NodeStatus) ([]models.NodePlayerState, error)
	InsertState(ctx context.Context, s *models.NodePlayerState) error
	UpdateState(ctx context.Context, s *models.NodePlayerState, from models.NodeStatus) error
}

// Options injects the clock, random source and ID generator.
type Options struct {
	Now   func() time.Time
	Rand  geo.Rand
	NewID func() string
}

// Machine applies reservation transitions.
type Machine struct {
	store Store
	pol   *policy.Policy
	now   func() time.Time
	rng   geo.Rand
	newID func() string
}

// New creates a Machine.
func New(store Store, pol *policy.Policy, opts Options) *Machine {
	m := &Machine{store: store, pol: pol, now: opts.Now, rng: opts.Rand, newID: opts.NewID}
	if m.now == nil {
		m.now = time.Now
	}
	if m.rng == nil {
		m.rng = geo.DefaultRand
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m
}

// Reserve claims a node for the owner until now + Reservation.Duration.
//
// With MaxActive == 1 any other reservation the owner holds is released to
// AVAILABLE first. With a larger limit, reserving beyond it fails with
// ErrReservationLimit. Re-reserving a node the owner already holds refreshes
// the deadline.
func (m *Machine) Reserve(ctx context.Context, ownerID, nodeID string) (*models.ReservationResult, error) {
	res, err := m.reserve(ctx, ownerID, nodeID)
	recordOutcome(ctx, "reserve", err)
	return res, err
}

func (m *Machine) reserve(ctx context.Context, ownerID, nodeID string) (*models.ReservationResult, error) {
	now := m.now()

	node, err := m.loadNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.Expired(now) {
		return nil, ErrNodeExpired
	}

	existing, err := m.stateFor(ctx, node, ownerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := reservable(existing.Status); err != nil {
			return nil, err
		}
	}

	if err := m.makeRoom(ctx, ownerID, existing, now); err != nil {
		return nil, err
	}

	until := now.Add(m.pol.Reservation.Duration)
	if existing == nil {
		st := &models.NodePlayerState{
			ID:            m.newID(),
			NodeID:        node.ID,
			OwnerID:       ownerID,
			Status:        models.StatusReserved,
			ReservedUntil: &until,
		}
		if err := m.store.InsertState(ctx, st); err != nil {
			return nil, writeError("reserve node", node.ID, err)
		}
		return reservationResult(st), nil
	}

	from := existing.Status
	existing.Status = models.StatusReserved
	existing.ReservedUntil = &until
	if err := m.store.UpdateState(ctx, existing, from); err != nil {
		return nil, writeError("reserve node", node.ID, err)
	}
	return reservationResult(existing), nil
}

func reservable(s models.NodeStatus) error {
	switch s {
	case models.StatusCollected:
		return ErrAlreadyCollected
	case models.StatusExpired:
		return ErrStateExpired
	case models.StatusArrived:
		return ErrAlreadyArrived
	}
	return nil
}

// writeError maps a lost compare-and-set or unique insert to
// ErrStateConflict and wraps anything else.
func writeError(op, id string, err error) error {
	if errors.Is(err, database.ErrConflict) {
		return ErrStateConflict
	}
	return fmt.Errorf("failed to %s %s: %w", op, id, err)
}

// makeRoom enforces MaxActive for a new reservation. keep is the row being
// reserved, which never counts against the limit.
func (m *Machine) makeRoom(ctx context.Context, ownerID string, keep *models.NodePlayerState, now time.Time) error {
	held, err := m.store.ListOwnerStatesByStatus(ctx, ownerID, models.StatusReserved)
	if err != nil {
		return fmt.Errorf("failed to list reservations: %w", err)
	}

	others := held[:0]
	for _, s := range held {
		if keep != nil && s.ID == keep.ID {
			continue
		}
		others = append(others, s)
	}

	if m.pol.Reservation.MaxActive == 1 {
		for i := range others {
			prior := others[i]
			prior.Status = models.StatusAvailable
			prior.ReservedUntil = nil
			err := m.store.UpdateState(ctx, &prior, models.StatusReserved)
			if err != nil && !errors.Is(err, database.ErrConflict) {
				return fmt.Errorf("failed to release reservation %s: %w", prior.ID, err)
			}
			logging.Ctx(ctx).Debug().Str("state_id", prior.ID).Str("node_id", prior.NodeID).Msg("Prior reservation released")
		}
		return nil
	}

	live := 0
	for i := range others {
		if others[i].ReservationLive(now) {
			live++
		}
	}
	if live >= m.pol.Reservation.MaxActive {
		return ErrReservationLimit
	}
	return nil
}

// Arrive confirms the owner reached the node. lat and lng are optional; when
// both are given the player must be within Reservation.ArrivalDistanceM.
func (m *Machine) Arrive(ctx context.Context, ownerID, reservationID string, lat, lng *float64) (*models.ArrivalResult, error) {
	res, err := m.arrive(ctx, ownerID, reservationID, lat, lng)
	recordOutcome(ctx, "arrive", err)
	return res, err
}

func (m *Machine) arrive(ctx context.Context, ownerID, reservationID string, lat, lng *float64) (*models.ArrivalResult, error) {
	now := m.now()

	st, err := m.loadOwnState(ctx, ownerID, reservationID)
	if err != nil {
		return nil, err
	}
	if err := reservable(st.Status); err != nil {
		return nil, err
	}

	node, err := m.loadNode(ctx, st.NodeID)
	if err != nil {
		return nil, err
	}
	if node.Expired(now) {
		return nil, ErrNodeExpired
	}

	result := &models.ArrivalResult{ReservationID: st.ID, NodeID: node.ID}
	if lat != nil && lng != nil {
		d := geo.DistanceMeters(*lat, *lng, node.Lat, node.Lng)
		if d > m.pol.Reservation.ArrivalDistanceM {
			return nil, &TooFarError{DistanceM: d, LimitM: m.pol.Reservation.ArrivalDistanceM}
		}
		result.DistanceM = &d
	}

	from := st.Status
	st.Status = models.StatusArrived
	st.ArrivedAt = &now
	if err := m.store.UpdateState(ctx, st, from); err != nil {
		return nil, writeError("record arrival on", st.ID, err)
	}

	result.Status = st.Status
	result.ArrivedAt = now
	return result, nil
}

// Collect finishes a node. id may be a reservation (state) id or a node id.
//
// ARRIVED rows always collect. AVAILABLE and RESERVED rows, and hotspots the
// owner never touched, collect only inside [ExpiresAt, ExpiresAt+GraceOnExpire].
// Rows the expire sweep already moved to EXPIRED keep the same window.
// The result carries the node quality and a rarity rolled against it.
func (m *Machine) Collect(ctx context.Context, ownerID, id string) (*models.CollectResult, error) {
	res, err := m.collect(ctx, ownerID, id)
	recordOutcome(ctx, "collect", err)
	return res, err
}

func (m *Machine) collect(ctx context.Context, ownerID, id string) (*models.CollectResult, error) {
	now := m.now()

	node, st, err := m.resolveCollectTarget(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	var from models.NodeStatus
	if st != nil {
		from = st.Status
	}
	graceOver := now.After(node.ExpiresAt.Add(m.pol.Reservation.GraceOnExpire))
	switch from {
	case models.StatusCollected:
		return nil, ErrAlreadyCollected
	case models.StatusExpired:
		// The expire sweep can run inside the grace window.
		if graceOver {
			return nil, ErrStateExpired
		}
	case models.StatusArrived:
	default:
		if !node.Expired(now) {
			return nil, ErrNotArrived
		}
		if graceOver {
			return nil, ErrGraceElapsed
		}
	}

	rarity := m.pol.RollRarity(m.rng, node.Quality)

	if st == nil {
		st = &models.NodePlayerState{
			ID:          m.newID(),
			NodeID:      node.ID,
			OwnerID:     ownerID,
			Status:      models.StatusCollected,
			CollectedAt: &now,
		}
		if err := m.store.InsertState(ctx, st); err != nil {
			if errors.Is(err, database.ErrConflict) {
				return nil, ErrAlreadyCollected
			}
			return nil, fmt.Errorf("failed to collect node %s: %w", node.ID, err)
		}
	} else {
		st.Status = models.StatusCollected
		st.CollectedAt = &now
		if err := m.store.UpdateState(ctx, st, from); err != nil {
			if errors.Is(err, database.ErrConflict) {
				return nil, ErrAlreadyCollected
			}
			return nil, fmt.Errorf("failed to collect node %s: %w", node.ID, err)
		}
	}

	return &models.CollectResult{
		ReservationID: st.ID,
		NodeID:        node.ID,
		Status:        st.Status,
		Quality:       node.Quality,
		Rarity:        rarity,
		CollectedAt:   now,
	}, nil
}

// resolveCollectTarget looks id up as a state id first, then as a node id.
// The returned state is nil for a hotspot the owner has no row for.
func (m *Machine) resolveCollectTarget(ctx context.Context, ownerID, id string) (*models.Node, *models.NodePlayerState, error) {
	st, err := m.store.GetState(ctx, id)
	switch {
	case err == nil:
		if st.OwnerID != ownerID {
			return nil, nil, ErrReservationNotFound
		}
		node, err := m.loadNode(ctx, st.NodeID)
		return node, st, err
	case !errors.Is(err, database.ErrNotFound):
		return nil, nil, fmt.Errorf("failed to load state %s: %w", id, err)
	}

	node, err := m.store.GetNode(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load node %s: %w", id, err)
	}
	st, err = m.stateFor(ctx, node, ownerID)
	if err != nil {
		return nil, nil, err
	}
	return node, st, nil
}

// stateFor returns the owner's row for node, nil for an untouched hotspot.
// Personal and event nodes are owner-exclusive: another owner sees
// ErrNodeNotFound.
func (m *Machine) stateFor(ctx context.Context, node *models.Node, ownerID string) (*models.NodePlayerState, error) {
	st, err := m.store.GetStateByNodeOwner(ctx, node.ID, ownerID)
	if errors.Is(err, database.ErrNotFound) {
		if node.Type == models.NodeTypeHotspot {
			return nil, nil
		}
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state for node %s: %w", node.ID, err)
	}
	return st, nil
}

func (m *Machine) loadNode(ctx context.Context, id string) (*models.Node, error) {
	node, err := m.store.GetNode(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load node %s: %w", id, err)
	}
	return node, nil
}

// loadOwnState returns the state row if it belongs to ownerID. Rows of other
// owners are reported as not found.
func (m *Machine) loadOwnState(ctx context.Context, ownerID, id string) (*models.NodePlayerState, error) {
	st, err := m.store.GetState(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state %s: %w", id, err)
	}
	if st.OwnerID != ownerID {
		return nil, ErrReservationNotFound
	}
	return st, nil
}

func reservationResult(st *models.NodePlayerState) *models.ReservationResult {
	return &models.ReservationResult{
		ReservationID: st.ID,
		NodeID:        st.NodeID,
		Status:        st.Status,
		ReservedUntil: *st.ReservedUntil,
	}
}

func recordOutcome(ctx context.Context, op string, err error) {
	if err == nil {
		metrics.RecordTransition(op, "ok")
		return
	}
	code := Code(err)
	if code == "" {
		code = "error"
		logging.Ctx(ctx).Error().Err(err).Str("operation", op).Msg("Reservation transition failed")
	}
	metrics.RecordTransition(op, code)
}
