// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package models

import "time"

// NodeView is a node as presented on a player's map.
type NodeView struct {
	ID            string     `json:"id"`
	Type          NodeType   `json:"type"`
	Lat           float64    `json:"lat"`
	Lng           float64    `json:"lng"`
	Quality       Quality    `json:"quality"`
	ExpiresAt     time.Time  `json:"expires_at"`
	Status        NodeStatus `json:"status"`
	StateID       string     `json:"state_id,omitempty"`
	ReservedUntil *time.Time `json:"reserved_until,omitempty"`
	GroupID       string     `json:"group_id,omitempty"`
	EventKey      string     `json:"event_key,omitempty"`
}

// MapPayload is the visible node set for one player at one location.
//
// Flagged is set when recent movement looked like a spoofed location; the
// node lists are empty in that case and Warning carries the reason.
type MapPayload struct {
	PersonalNodes []NodeView `json:"personal_nodes"`
	Hotspots      []NodeView `json:"hotspots"`
	Events        []NodeView `json:"events"`
	RegionKey     string     `json:"region_key"`
	CellKey       string     `json:"cell_key"`
	GeneratedAt   time.Time  `json:"generated_at"`
	Flagged       bool       `json:"flagged,omitempty"`
	Warning       string     `json:"warning,omitempty"`
}

// ReservationResult is returned by a successful reserve.
type ReservationResult struct {
	ReservationID string     `json:"reservation_id"`
	NodeID        string     `json:"node_id"`
	Status        NodeStatus `json:"status"`
	ReservedUntil time.Time  `json:"reserved_until"`
}

// ArrivalResult is returned by a successful arrive.
type ArrivalResult struct {
	ReservationID string     `json:"reservation_id"`
	NodeID        string     `json:"node_id"`
	Status        NodeStatus `json:"status"`
	ArrivedAt     time.Time  `json:"arrived_at"`
	DistanceM     *float64   `json:"distance_m,omitempty"`
}

// CollectResult is returned by a successful collect. Quality drives the
// external reward; Rarity is the engine's roll against that quality.
type CollectResult struct {
	ReservationID string     `json:"reservation_id"`
	NodeID        string     `json:"node_id"`
	Status        NodeStatus `json:"status"`
	Quality       Quality    `json:"quality"`
	Rarity        Rarity     `json:"rarity"`
	CollectedAt   time.Time  `json:"collected_at"`
}
