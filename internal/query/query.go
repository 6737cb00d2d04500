// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package query assembles the map payload a client renders: the owner's
// personal and event nodes plus the shared hotspots of the surrounding region.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/waymark/internal/geo"
	"github.com/tomtom215/waymark/internal/models"
	"github.com/tomtom215/waymark/internal/policy"
)

// Store is the read side the builder needs.
type Store interface {
	ListOwnerNodes(ctx context.Context, ownerID string, now time.Time) ([]models.NodeWithState, error)
	ListRegionHotspots(ctx context.Context, regionKey string, now time.Time) ([]models.Node, error)
	ListOwnerStatesForNodes(ctx context.Context, ownerID string, nodeIDs []string) (map[string]*models.NodePlayerState, error)
}

// Builder produces MapPayloads.
type Builder struct {
	store Store
	grid  policy.GridPolicy
	now   func() time.Time
}

// NewBuilder creates a Builder. A nil now uses time.Now.
func NewBuilder(store Store, pol *policy.Policy, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{store: store, grid: pol.Grid, now: now}
}

// Build returns everything visible to ownerID standing at (lat, lng).
func (b *Builder) Build(ctx context.Context, ownerID string, lat, lng float64) (*models.MapPayload, error) {
	now := b.now()
	payload := b.empty(lat, lng, now)

	owned, err := b.store.ListOwnerNodes(ctx, ownerID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list owner nodes: %w", err)
	}
	for i := range owned {
		v := nodeView(&owned[i].Node, owned[i].State, now)
		switch owned[i].Node.Type {
		case models.NodeTypeEvent:
			payload.Events = append(payload.Events, v)
		default:
			payload.PersonalNodes = append(payload.PersonalNodes, v)
		}
	}

	hotspots, err := b.store.ListRegionHotspots(ctx, payload.RegionKey, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list hotspots: %w", err)
	}
	if len(hotspots) == 0 {
		return payload, nil
	}

	ids := make([]string, len(hotspots))
	for i := range hotspots {
		ids[i] = hotspots[i].ID
	}
	states, err := b.store.ListOwnerStatesForNodes(ctx, ownerID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load hotspot states: %w", err)
	}
	payload.Hotspots = MergeHotspots(hotspots, states, now)
	return payload, nil
}

// Flagged returns an empty payload carrying a warning, served instead of
// nodes when the owner's movement looks implausible.
func (b *Builder) Flagged(lat, lng float64, warning string) *models.MapPayload {
	p := b.empty(lat, lng, b.now())
	p.Flagged = true
	p.Warning = warning
	return p
}

func (b *Builder) empty(lat, lng float64, now time.Time) *models.MapPayload {
	return &models.MapPayload{
		PersonalNodes: []models.NodeView{},
		Hotspots:      []models.NodeView{},
		Events:        []models.NodeView{},
		RegionKey:     geo.RegionKey(lat, lng, b.grid.RegionSizeKm),
		CellKey:       geo.CellKey(lat, lng, b.grid.CellSizeKm),
		GeneratedAt:   now,
	}
}

// MergeHotspots overlays the viewer's own states on shared hotspot nodes.
// Hotspots without a state row are AVAILABLE; hotspots the viewer already
// collected or let expire are left out.
func MergeHotspots(nodes []models.Node, statesByNode map[string]*models.NodePlayerState, now time.Time) []models.NodeView {
	out := make([]models.NodeView, 0, len(nodes))
	for i := range nodes {
		st := statesByNode[nodes[i].ID]
		if st != nil && st.Status.Terminal() {
			continue
		}
		out = append(out, nodeView(&nodes[i], st, now))
	}
	return out
}

// nodeView renders a node for its viewer. A reservation whose deadline has
// passed shows as AVAILABLE, matching what Reserve will accept.
func nodeView(n *models.Node, st *models.NodePlayerState, now time.Time) models.NodeView {
	v := models.NodeView{
		ID:        n.ID,
		Type:      n.Type,
		Lat:       n.Lat,
		Lng:       n.Lng,
		Quality:   n.Quality,
		ExpiresAt: n.ExpiresAt,
		Status:    models.StatusAvailable,
		GroupID:   n.GroupID,
		EventKey:  n.EventKey,
	}
	if st != nil {
		v.StateID = st.ID
		v.Status = st.Status
		if st.ReservationLive(now) {
			v.ReservedUntil = st.ReservedUntil
		} else if st.Status == models.StatusReserved {
			v.Status = models.StatusAvailable
		}
	}
	return v
}
