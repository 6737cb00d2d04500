// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/waymark/internal/models"
)

// MemoryStore is an in-process implementation of the SQL store's surface,
// for tests and single-node development runs.
type MemoryStore struct {
	mu      sync.RWMutex
	nodes   map[string]models.Node
	states  map[string]models.NodePlayerState
	byPair  map[string]string // node_id|owner_id -> state id
	samples map[string][]models.LocationSample
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:   make(map[string]models.Node),
		states:  make(map[string]models.NodePlayerState),
		byPair:  make(map[string]string),
		samples: make(map[string][]models.LocationSample),
	}
}

func pairKey(nodeID, ownerID string) string {
	return nodeID + "|" + ownerID
}

// InsertNode persists a node with no owner state.
func (m *MemoryStore) InsertNode(ctx context.Context, n *models.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[n.ID]; ok {
		return fmt.Errorf("node %s: %w", n.ID, ErrConflict)
	}
	m.nodes[n.ID] = *n
	return nil
}

// InsertNodeWithState persists a node and its first owner state.
func (m *MemoryStore) InsertNodeWithState(ctx context.Context, n *models.Node, s *models.NodePlayerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[n.ID]; ok {
		return fmt.Errorf("node %s: %w", n.ID, ErrConflict)
	}
	if err := m.insertStateLocked(s); err != nil {
		return err
	}
	m.nodes[n.ID] = *n
	return nil
}

// GetNode returns the node with the given id.
func (m *MemoryStore) GetNode(ctx context.Context, id string) (*models.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &n, nil
}

// CountOwnerActiveNodes counts the owner's unexpired live nodes of type t.
func (m *MemoryStore) CountOwnerActiveNodes(ctx context.Context, ownerID string, t models.NodeType, eventKey string, now time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, s := range m.states {
		if s.OwnerID != ownerID || !s.Status.Active() {
			continue
		}
		n, ok := m.nodes[s.NodeID]
		if !ok || n.Type != t || n.Expired(now) {
			continue
		}
		if eventKey != "" && n.EventKey != eventKey {
			continue
		}
		count++
	}
	return count, nil
}

// CountRegionHotspots counts unexpired hotspot nodes in a region.
func (m *MemoryStore) CountRegionHotspots(ctx context.Context, regionKey string, now time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, n := range m.nodes {
		if n.Type == models.NodeTypeHotspot && n.RegionKey == regionKey && !n.Expired(now) {
			count++
		}
	}
	return count, nil
}

// ListOwnerNodes returns the owner's unexpired personal and event nodes with live state.
func (m *MemoryStore) ListOwnerNodes(ctx context.Context, ownerID string, now time.Time) ([]models.NodeWithState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.NodeWithState
	for _, s := range m.states {
		if s.OwnerID != ownerID || !s.Status.Active() {
			continue
		}
		n, ok := m.nodes[s.NodeID]
		if !ok || n.Type == models.NodeTypeHotspot || n.Expired(now) {
			continue
		}
		st := s
		out = append(out, models.NodeWithState{Node: n, State: &st})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Node.ExpiresAt.Equal(out[j].Node.ExpiresAt) {
			return out[i].Node.ExpiresAt.Before(out[j].Node.ExpiresAt)
		}
		return out[i].Node.ID < out[j].Node.ID
	})
	return out, nil
}

// ListRegionHotspots returns the unexpired hotspot nodes in a region.
func (m *MemoryStore) ListRegionHotspots(ctx context.Context, regionKey string, now time.Time) ([]models.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Node
	for _, n := range m.nodes {
		if n.Type == models.NodeTypeHotspot && n.RegionKey == regionKey && !n.Expired(now) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupID != out[j].GroupID {
			return out[i].GroupID < out[j].GroupID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteNodesExpiredBefore removes nodes that expired before cutoff and their states.
func (m *MemoryStore) DeleteNodesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, n := range m.nodes {
		if !n.ExpiresAt.Before(cutoff) {
			continue
		}
		for sid, s := range m.states {
			if s.NodeID == id {
				delete(m.states, sid)
				delete(m.byPair, pairKey(s.NodeID, s.OwnerID))
			}
		}
		delete(m.nodes, id)
		deleted++
	}
	return deleted, nil
}

// GetState returns the state row with the given id.
func (m *MemoryStore) GetState(ctx context.Context, id string) (*models.NodePlayerState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// GetStateByNodeOwner returns the owner's state row for a node.
func (m *MemoryStore) GetStateByNodeOwner(ctx context.Context, nodeID, ownerID string) (*models.NodePlayerState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPair[pairKey(nodeID, ownerID)]
	if !ok {
		return nil, ErrNotFound
	}
	s := m.states[id]
	return &s, nil
}

// ListOwnerStatesByStatus returns the owner's rows in the given status.
func (m *MemoryStore) ListOwnerStatesByStatus(ctx context.Context, ownerID string, status models.NodeStatus) ([]models.NodePlayerState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.NodePlayerState
	for _, s := range m.states {
		if s.OwnerID == ownerID && s.Status == status {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListOwnerStatesForNodes returns the owner's rows for the given nodes keyed by node id.
func (m *MemoryStore) ListOwnerStatesForNodes(ctx context.Context, ownerID string, nodeIDs []string) (map[string]*models.NodePlayerState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*models.NodePlayerState, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		if id, ok := m.byPair[pairKey(nodeID, ownerID)]; ok {
			s := m.states[id]
			out[nodeID] = &s
		}
	}
	return out, nil
}

// InsertState creates a state row.
func (m *MemoryStore) InsertState(ctx context.Context, s *models.NodePlayerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertStateLocked(s)
}

func (m *MemoryStore) insertStateLocked(s *models.NodePlayerState) error {
	key := pairKey(s.NodeID, s.OwnerID)
	if _, ok := m.byPair[key]; ok {
		return fmt.Errorf("state for node %s owner %s: %w", s.NodeID, s.OwnerID, ErrConflict)
	}
	if _, ok := m.states[s.ID]; ok {
		return fmt.Errorf("state %s: %w", s.ID, ErrConflict)
	}
	m.states[s.ID] = cloneState(*s)
	m.byPair[key] = s.ID
	return nil
}

// UpdateState writes the mutable fields of a row whose stored status is still from.
func (m *MemoryStore) UpdateState(ctx context.Context, s *models.NodePlayerState, from models.NodeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.states[s.ID]
	if !ok || cur.Status != from {
		return fmt.Errorf("state %s not in %s: %w", s.ID, from, ErrConflict)
	}
	cur.Status = s.Status
	cur.ReservedUntil = s.ReservedUntil
	cur.ArrivedAt = s.ArrivedAt
	cur.CollectedAt = s.CollectedAt
	m.states[s.ID] = cloneState(cur)
	return nil
}

// ExpireStates moves AVAILABLE and RESERVED rows of expired nodes to EXPIRED.
func (m *MemoryStore) ExpireStates(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.states {
		if s.Status != models.StatusAvailable && s.Status != models.StatusReserved {
			continue
		}
		node, ok := m.nodes[s.NodeID]
		if !ok || !node.Expired(now) {
			continue
		}
		s.Status = models.StatusExpired
		m.states[id] = s
		n++
	}
	return n, nil
}

// AppendSample records a location sample.
func (m *MemoryStore) AppendSample(ctx context.Context, s *models.LocationSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append(m.samples[s.OwnerID], *s)
	sort.SliceStable(list, func(i, j int) bool { return list[i].CapturedAt.Before(list[j].CapturedAt) })
	m.samples[s.OwnerID] = list
	return nil
}

// RecentSamples returns up to limit of the owner's newest samples, oldest first.
func (m *MemoryStore) RecentSamples(ctx context.Context, ownerID string, limit int) ([]models.LocationSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.samples[ownerID]
	if limit < len(list) {
		list = list[len(list)-limit:]
	}
	out := make([]models.LocationSample, len(list))
	copy(out, list)
	return out, nil
}

// PurgeSamplesBefore deletes samples captured before cutoff.
func (m *MemoryStore) PurgeSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for owner, list := range m.samples {
		kept := list[:0]
		for _, s := range list {
			if s.CapturedAt.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			delete(m.samples, owner)
		} else {
			m.samples[owner] = kept
		}
	}
	return n, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// cloneState copies the pointer fields so callers cannot mutate stored rows.
func cloneState(s models.NodePlayerState) models.NodePlayerState {
	s.ReservedUntil = cloneTime(s.ReservedUntil)
	s.ArrivedAt = cloneTime(s.ArrivedAt)
	s.CollectedAt = cloneTime(s.CollectedAt)
	return s
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
