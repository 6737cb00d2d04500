// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package spawn tops up the personal, hotspot and event nodes around a player.
//
// Generation is count-then-create without locking: two concurrent top-ups for
// the same owner may both create the shortfall, overshooting the target until
// the surplus expires.
package spawn

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/waymark/internal/geo"
	"github.com/tomtom215/waymark/internal/logging"
	"github.com/tomtom215/waymark/internal/metrics"
	"github.com/tomtom215/waymark/internal/models"
	"github.com/tomtom215/waymark/internal/policy"
)

// maxRegionAttempts bounds resampling of hotspot points that land outside
// the player's region.
const maxRegionAttempts = 8

// Store is the node persistence the generator needs.
type Store interface {
	InsertNode(ctx context.Context, n *models.Node) error
	InsertNodeWithState(ctx context.Context, n *models.Node, s *models.NodePlayerState) error
	CountOwnerActiveNodes(ctx context.Context, ownerID string, t models.NodeType, eventKey string, now time.Time) (int, error)
	CountRegionHotspots(ctx context.Context, regionKey string, now time.Time) (int, error)
}

// Options injects the clock, random source and ID generator.
type Options struct {
	Now   func() time.Time
	Rand  geo.Rand
	NewID func() string
}

// Generator creates nodes according to a Policy.
type Generator struct {
	store Store
	pol   *policy.Policy
	now   func() time.Time
	rng   geo.Rand
	newID func() string
}

// Request is one player's position and recent motion.
type Request struct {
	OwnerID  string
	Lat      float64
	Lng      float64
	Movement geo.Movement
}

// Result counts the nodes created by a top-up.
type Result struct {
	Personal int
	Hotspot  int
	Event    int
	EventKey string
}

// Total is the number of nodes created across all types.
func (r Result) Total() int {
	return r.Personal + r.Hotspot + r.Event
}

// New creates a Generator. Zero Options fields default to time.Now,
// geo.DefaultRand and random UUIDs.
func New(store Store, pol *policy.Policy, opts Options) *Generator {
	g := &Generator{store: store, pol: pol, now: opts.Now, rng: opts.Rand, newID: opts.NewID}
	if g.now == nil {
		g.now = time.Now
	}
	if g.rng == nil {
		g.rng = geo.DefaultRand
	}
	if g.newID == nil {
		g.newID = uuid.NewString
	}
	return g
}

// TopUp brings every node type up to its target for the request. Nodes
// created before an error are kept and counted in the returned Result.
func (g *Generator) TopUp(ctx context.Context, req Request) (Result, error) {
	var res Result
	var err error

	if res.Personal, err = g.TopUpPersonal(ctx, req); err != nil {
		return res, err
	}
	if res.Hotspot, err = g.TopUpHotspots(ctx, req); err != nil {
		return res, err
	}
	res.Event, res.EventKey, err = g.TopUpEvents(ctx, req)
	if err != nil {
		return res, err
	}

	if res.Total() > 0 {
		logging.Debug().
			Str("owner_id", req.OwnerID).
			Int("personal", res.Personal).
			Int("hotspot", res.Hotspot).
			Int("event", res.Event).
			Msg("Nodes topped up")
	}
	return res, nil
}

// TopUpPersonal creates personal nodes until the owner holds
// Personal.ActiveAtOnce active ones.
func (g *Generator) TopUpPersonal(ctx context.Context, req Request) (int, error) {
	start := time.Now()
	now := g.now()
	pp := g.pol.Personal

	active, err := g.store.CountOwnerActiveNodes(ctx, req.OwnerID, models.NodeTypePersonal, "", now)
	if err != nil {
		return 0, fmt.Errorf("failed to count personal nodes: %w", err)
	}

	created := 0
	for i := active; i < pp.ActiveAtOnce; i++ {
		lat, lng := g.personalPoint(req)
		n := g.newNode(models.NodeTypePersonal, lat, lng, policy.DrawQuality(g.rng, pp.Quality), now, pp.Expire)
		if err := g.store.InsertNodeWithState(ctx, n, g.availableState(n.ID, req.OwnerID)); err != nil {
			metrics.RecordSpawn(string(models.NodeTypePersonal), created, time.Since(start))
			return created, fmt.Errorf("failed to create personal node: %w", err)
		}
		created++
	}
	metrics.RecordSpawn(string(models.NodeTypePersonal), created, time.Since(start))
	return created, nil
}

// personalPoint places a node ahead of a moving player when route-runner mode
// applies, otherwise in a weighted distance bucket around them.
func (g *Generator) personalPoint(req Request) (float64, float64) {
	rr := g.pol.Personal.RouteRunner
	mv := req.Movement
	if rr.Enabled && mv.HasHeading && mv.SpeedMps >= rr.MovingSpeedMps {
		return geo.RandomPointInCone(g.rng, req.Lat, req.Lng, mv.HeadingDeg, rr.ConeDeg, rr.MinM, rr.MaxM)
	}

	idx, _ := policy.Draw(g.rng, g.pol.BucketWeights())
	b := g.pol.Personal.Buckets[idx]
	return geo.RandomPointInRadius(g.rng, req.Lat, req.Lng, b.MinM, b.MaxM)
}

// TopUpHotspots creates a full set of hotspot clusters when the player's
// region holds fewer live hotspot nodes than the target.
func (g *Generator) TopUpHotspots(ctx context.Context, req Request) (int, error) {
	start := time.Now()
	now := g.now()
	hp := g.pol.Hotspot
	region := geo.RegionKey(req.Lat, req.Lng, g.pol.Grid.RegionSizeKm)

	live, err := g.store.CountRegionHotspots(ctx, region, now)
	if err != nil {
		return 0, fmt.Errorf("failed to count hotspots in %s: %w", region, err)
	}
	if live >= hp.Target() {
		metrics.RecordSpawn(string(models.NodeTypeHotspot), 0, time.Since(start))
		return 0, nil
	}

	created := 0
	for a := 0; a < hp.HotspotsPerCell; a++ {
		anchorLat, anchorLng := g.pointInRegion(region, func() (float64, float64) {
			return geo.RandomPointInRadius(g.rng, req.Lat, req.Lng, hp.AnchorMinM, hp.AnchorMaxM)
		})
		groupID := g.newID()

		for j := 0; j < hp.NodesPerHotspot; j++ {
			lat, lng := g.pointInRegion(region, func() (float64, float64) {
				return geo.RandomPointInRadius(g.rng, anchorLat, anchorLng, 0, hp.ClusterRadiusM)
			})
			n := g.newNode(models.NodeTypeHotspot, lat, lng, policy.DrawQuality(g.rng, hp.Quality), now, hp.Expire)
			n.GroupID = groupID
			if err := g.store.InsertNode(ctx, n); err != nil {
				metrics.RecordSpawn(string(models.NodeTypeHotspot), created, time.Since(start))
				return created, fmt.Errorf("failed to create hotspot node: %w", err)
			}
			created++
		}
	}
	metrics.RecordSpawn(string(models.NodeTypeHotspot), created, time.Since(start))
	return created, nil
}

// pointInRegion resamples until the point falls in region, keeping the last
// sample after maxRegionAttempts.
func (g *Generator) pointInRegion(region string, sample func() (float64, float64)) (float64, float64) {
	var lat, lng float64
	for i := 0; i < maxRegionAttempts; i++ {
		lat, lng = sample()
		if geo.RegionKey(lat, lng, g.pol.Grid.RegionSizeKm) == region {
			break
		}
	}
	return lat, lng
}

// TopUpEvents creates event drops for the active window, if any. The window
// key is returned so callers can tell which occurrence was topped up.
func (g *Generator) TopUpEvents(ctx context.Context, req Request) (int, string, error) {
	start := time.Now()
	now := g.now()

	w, key, ok := g.pol.ActiveWindow(now)
	if !ok {
		return 0, "", nil
	}

	active, err := g.store.CountOwnerActiveNodes(ctx, req.OwnerID, models.NodeTypeEvent, key, now)
	if err != nil {
		return 0, key, fmt.Errorf("failed to count event nodes for %s: %w", key, err)
	}

	created := 0
	for i := active; i < w.DropsPer; i++ {
		lat, lng := geo.RandomPointInRadius(g.rng, req.Lat, req.Lng, w.MinM, w.MaxM)
		n := g.newNode(models.NodeTypeEvent, lat, lng, w.Quality, now, w.Expire)
		n.EventKey = key
		if err := g.store.InsertNodeWithState(ctx, n, g.availableState(n.ID, req.OwnerID)); err != nil {
			metrics.RecordSpawn(string(models.NodeTypeEvent), created, time.Since(start))
			return created, key, fmt.Errorf("failed to create event node: %w", err)
		}
		created++
	}
	metrics.RecordSpawn(string(models.NodeTypeEvent), created, time.Since(start))
	return created, key, nil
}

func (g *Generator) newNode(t models.NodeType, lat, lng float64, q models.Quality, now time.Time, ttl time.Duration) *models.Node {
	return &models.Node{
		ID:        g.newID(),
		Type:      t,
		RegionKey: geo.RegionKey(lat, lng, g.pol.Grid.RegionSizeKm),
		CellKey:   geo.CellKey(lat, lng, g.pol.Grid.CellSizeKm),
		Lat:       lat,
		Lng:       lng,
		Quality:   q,
		StartsAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

func (g *Generator) availableState(nodeID, ownerID string) *models.NodePlayerState {
	return &models.NodePlayerState{
		ID:      g.newID(),
		NodeID:  nodeID,
		OwnerID: ownerID,
		Status:  models.StatusAvailable,
	}
}
