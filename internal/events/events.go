// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package events publishes node lifecycle events for downstream
// collaborators such as the economy service.
//
// Events go through a Watermill publisher: an in-process GoChannel when NATS
// is disabled, or core NATS (optionally an embedded server) otherwise. Every
// publish passes a circuit breaker so a dead broker cannot slow down
// reservation requests.
package events

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/waymark/internal/models"
)

// Kind names a lifecycle transition.
type Kind string

const (
	KindReserved  Kind = "node.reserved"
	KindArrived   Kind = "node.arrived"
	KindCollected Kind = "node.collected"
)

// Kinds lists every event kind.
var Kinds = []Kind{KindReserved, KindArrived, KindCollected}

// NodeEvent is the payload published on every transition.
type NodeEvent struct {
	EventID       string            `json:"event_id"`
	Kind          Kind              `json:"kind"`
	OwnerID       string            `json:"owner_id"`
	NodeID        string            `json:"node_id"`
	ReservationID string            `json:"reservation_id"`
	Status        models.NodeStatus `json:"status"`
	OccurredAt    time.Time         `json:"occurred_at"`

	// Set on node.collected only.
	Quality models.Quality `json:"quality,omitempty"`
	Rarity  models.Rarity  `json:"rarity,omitempty"`
}

// NewNodeEvent creates an event with a fresh id.
func NewNodeEvent(kind Kind, ownerID, nodeID, reservationID string, status models.NodeStatus, at time.Time) *NodeEvent {
	return &NodeEvent{
		EventID:       uuid.NewString(),
		Kind:          kind,
		OwnerID:       ownerID,
		NodeID:        nodeID,
		ReservationID: reservationID,
		Status:        status,
		OccurredAt:    at.UTC(),
	}
}

// Topic returns the topic (NATS subject) for the event under prefix.
func (e *NodeEvent) Topic(prefix string) string {
	return Topic(prefix, e.Kind)
}

// Topic joins prefix and kind. An empty prefix yields the bare kind.
func Topic(prefix string, kind Kind) string {
	if prefix == "" {
		return string(kind)
	}
	return prefix + "." + string(kind)
}

// Validate checks required fields.
func (e *NodeEvent) Validate() error {
	switch {
	case e.EventID == "":
		return fmt.Errorf("event_id is required")
	case e.OwnerID == "":
		return fmt.Errorf("owner_id is required")
	case e.NodeID == "":
		return fmt.Errorf("node_id is required")
	}
	for _, k := range Kinds {
		if e.Kind == k {
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", e.Kind)
}

// Marshal validates and encodes an event.
func Marshal(e *NodeEvent) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Unmarshal decodes an event.
func Unmarshal(data []byte) (*NodeEvent, error) {
	var e NodeEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &e, nil
}
