// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package database

import (
	"context"
	"time"

	"github.com/tomtom215/waymark/internal/models"
)

// NodeStore is the persistence surface for nodes and per-owner state.
// Consumers declare the narrower subsets they need; this union documents
// what every backend implements.
type NodeStore interface {
	InsertNode(ctx context.Context, n *models.Node) error
	InsertNodeWithState(ctx context.Context, n *models.Node, s *models.NodePlayerState) error
	GetNode(ctx context.Context, id string) (*models.Node, error)
	CountOwnerActiveNodes(ctx context.Context, ownerID string, t models.NodeType, eventKey string, now time.Time) (int, error)
	CountRegionHotspots(ctx context.Context, regionKey string, now time.Time) (int, error)
	ListOwnerNodes(ctx context.Context, ownerID string, now time.Time) ([]models.NodeWithState, error)
	ListRegionHotspots(ctx context.Context, regionKey string, now time.Time) ([]models.Node, error)
	DeleteNodesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)

	GetState(ctx context.Context, id string) (*models.NodePlayerState, error)
	GetStateByNodeOwner(ctx context.Context, nodeID, ownerID string) (*models.NodePlayerState, error)
	ListOwnerStatesByStatus(ctx context.Context, ownerID string, status models.NodeStatus) ([]models.NodePlayerState, error)
	ListOwnerStatesForNodes(ctx context.Context, ownerID string, nodeIDs []string) (map[string]*models.NodePlayerState, error)
	InsertState(ctx context.Context, s *models.NodePlayerState) error
	UpdateState(ctx context.Context, s *models.NodePlayerState, from models.NodeStatus) error
	ExpireStates(ctx context.Context, now time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// SampleStore persists location samples.
type SampleStore interface {
	AppendSample(ctx context.Context, s *models.LocationSample) error
	RecentSamples(ctx context.Context, ownerID string, limit int) ([]models.LocationSample, error)
	PurgeSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var (
	_ NodeStore   = (*DB)(nil)
	_ NodeStore   = (*MemoryStore)(nil)
	_ SampleStore = (*DB)(nil)
	_ SampleStore = (*MemoryStore)(nil)
	_ SampleStore = (*BadgerSampleStore)(nil)
)
