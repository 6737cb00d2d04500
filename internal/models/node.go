// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package models

import (
	"time"
)

// NodeType is the category of a spawned node.
type NodeType string

const (
	// NodeTypePersonal nodes are visible to and collectible by a single owner.
	NodeTypePersonal NodeType = "PERSONAL"

	// NodeTypeHotspot nodes are shared by every player in a region.
	NodeTypeHotspot NodeType = "HOTSPOT"

	// NodeTypeEvent nodes are owner-exclusive drops spawned during event windows.
	NodeTypeEvent NodeType = "EVENT"
)

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypePersonal, NodeTypeHotspot, NodeTypeEvent:
		return true
	}
	return false
}

// Quality is the tier of a node. Higher tiers weight the reward roll toward rarer results.
type Quality string

const (
	QualityPoor      Quality = "POOR"
	QualityGood      Quality = "GOOD"
	QualityGreat     Quality = "GREAT"
	QualityExcellent Quality = "EXCELLENT"
)

// Qualities lists every tier from worst to best.
var Qualities = []Quality{QualityPoor, QualityGood, QualityGreat, QualityExcellent}

// Rank returns the position of q in Qualities, or -1 if unknown.
func (q Quality) Rank() int {
	for i, v := range Qualities {
		if v == q {
			return i
		}
	}
	return -1
}

// Rarity is the outcome of the reward roll made on collection.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Rarities lists every rarity from most to least common.
var Rarities = []Rarity{RarityCommon, RarityRare, RarityEpic, RarityLegendary}

// NodeStatus is the per-owner lifecycle state of a node.
type NodeStatus string

const (
	StatusAvailable NodeStatus = "AVAILABLE"
	StatusReserved  NodeStatus = "RESERVED"
	StatusArrived   NodeStatus = "ARRIVED"
	StatusCollected NodeStatus = "COLLECTED"
	StatusExpired   NodeStatus = "EXPIRED"
)

// Terminal reports whether no further transition is possible from s.
func (s NodeStatus) Terminal() bool {
	return s == StatusCollected || s == StatusExpired
}

// Active reports whether s counts toward a player's live node allotment.
func (s NodeStatus) Active() bool {
	return s == StatusAvailable || s == StatusReserved || s == StatusArrived
}

// Node is a spawned, location-anchored collectible. Nodes are immutable once
// created; a stale node is superseded by a new one, never renewed.
type Node struct {
	ID        string    `json:"id"`
	Type      NodeType  `json:"type"`
	RegionKey string    `json:"region_key"`
	CellKey   string    `json:"cell_key"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Quality   Quality   `json:"quality"`
	StartsAt  time.Time `json:"starts_at"`
	ExpiresAt time.Time `json:"expires_at"`
	GroupID   string    `json:"group_id,omitempty"`
	EventKey  string    `json:"event_key,omitempty"`
}

// Expired reports whether the node is past its expiry at now.
func (n *Node) Expired(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}

// NodePlayerState is one owner's progress on one node. The ID doubles as the
// reservation id handed to clients.
type NodePlayerState struct {
	ID            string     `json:"id"`
	NodeID        string     `json:"node_id"`
	OwnerID       string     `json:"owner_id"`
	Status        NodeStatus `json:"status"`
	ReservedUntil *time.Time `json:"reserved_until,omitempty"`
	ArrivedAt     *time.Time `json:"arrived_at,omitempty"`
	CollectedAt   *time.Time `json:"collected_at,omitempty"`
}

// ReservationLive reports whether the state holds an unexpired reservation at now.
func (s *NodePlayerState) ReservationLive(now time.Time) bool {
	return s.Status == StatusReserved && s.ReservedUntil != nil && now.Before(*s.ReservedUntil)
}

// NodeWithState pairs a node with the viewer's state row, if any.
type NodeWithState struct {
	Node  Node
	State *NodePlayerState
}

// LocationSample is a single reported player position.
type LocationSample struct {
	OwnerID    string    `json:"owner_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Accuracy   float64   `json:"accuracy,omitempty"`
	SpeedMps   *float64  `json:"speed_mps,omitempty"`
	HeadingDeg *float64  `json:"heading_deg,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}
