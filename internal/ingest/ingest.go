// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package ingest records player location samples and derives the movement
// signals (speed, heading, teleport) that spawning and queries depend on.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/waymark/internal/cache"
	"github.com/tomtom215/waymark/internal/geo"
	"github.com/tomtom215/waymark/internal/metrics"
	"github.com/tomtom215/waymark/internal/models"
	"github.com/tomtom215/waymark/internal/policy"
)

var (
	// ErrRateLimited is returned when an owner reports locations faster than allowed.
	ErrRateLimited = errors.New("location update rate exceeded")

	// ErrInvalidSample is returned for samples with no owner or impossible coordinates.
	ErrInvalidSample = errors.New("invalid location sample")
)

// Store is the sample persistence the ingestor needs.
type Store interface {
	AppendSample(ctx context.Context, s *models.LocationSample) error
	RecentSamples(ctx context.Context, ownerID string, limit int) ([]models.LocationSample, error)
}

// maxLimiters bounds per-owner throttles. Evicting one only resets that
// owner's bucket.
const maxLimiters = 100000

// Options tunes an Ingestor.
type Options struct {
	// RatePerSecond and Burst bound accepted updates per owner. A zero rate
	// disables throttling.
	RatePerSecond float64
	Burst         int

	// LimiterIdle is how long an owner's throttle survives without updates.
	// Defaults to 30 minutes.
	LimiterIdle time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Ingestor appends samples and answers movement questions about an owner.
type Ingestor struct {
	store Store
	pol   *policy.Policy
	now   func() time.Time

	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *cache.LRU[string, *rate.Limiter]
}

// New creates an Ingestor.
func New(store Store, pol *policy.Policy, opts Options) *Ingestor {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	idle := opts.LimiterIdle
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Ingestor{
		store:    store,
		pol:      pol,
		now:      now,
		limit:    limit,
		burst:    burst,
		limiters: cache.NewLRU[string, *rate.Limiter](maxLimiters, idle).WithClock(now),
	}
}

// Record validates, throttles and persists one sample. CapturedAt is always
// overwritten with the receipt time; teleport detection must not depend on a
// client clock.
func (i *Ingestor) Record(ctx context.Context, s *models.LocationSample) error {
	if s.OwnerID == "" || !geo.ValidCoordinate(s.Lat, s.Lng) || s.Accuracy < 0 {
		return ErrInvalidSample
	}

	now := i.now()
	if !i.allow(s.OwnerID, now) {
		return ErrRateLimited
	}
	s.CapturedAt = now.UTC()

	if err := i.store.AppendSample(ctx, s); err != nil {
		return fmt.Errorf("failed to record sample for %s: %w", s.OwnerID, err)
	}
	return nil
}

func (i *Ingestor) allow(owner string, now time.Time) bool {
	if i.limit == rate.Inf {
		return true
	}
	// mu makes get-or-create atomic so one owner never gets two buckets.
	i.mu.Lock()
	defer i.mu.Unlock()

	lim, ok := i.limiters.Get(owner)
	if !ok {
		lim = rate.NewLimiter(i.limit, i.burst)
	}
	i.limiters.Add(owner, lim)
	return lim.AllowN(now, 1)
}

// PruneLimiters drops throttles idle longer than Options.LimiterIdle and
// returns how many were removed.
func (i *Ingestor) PruneLimiters() int {
	n := i.limiters.CleanupExpired()
	metrics.RecordIngestLimiters(i.limiters.Len())
	return n
}

// Recent returns the owner's last n samples as fixes, oldest first.
func (i *Ingestor) Recent(ctx context.Context, ownerID string, n int) ([]geo.Fix, error) {
	samples, err := i.store.RecentSamples(ctx, ownerID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples for %s: %w", ownerID, err)
	}
	fixes := make([]geo.Fix, len(samples))
	for j, s := range samples {
		fixes[j] = geo.Fix{Lat: s.Lat, Lng: s.Lng, At: s.CapturedAt}
	}
	return fixes, nil
}

// Movement estimates the owner's current speed and heading from the personal
// sample window.
func (i *Ingestor) Movement(ctx context.Context, ownerID string) (geo.Movement, error) {
	fixes, err := i.Recent(ctx, ownerID, i.pol.Personal.SampleWindow)
	if err != nil {
		return geo.Movement{}, err
	}
	return geo.EstimateMovement(fixes, i.pol.Personal.RouteRunner.MinHeadingDisplacementM), nil
}

// CheckTeleport reports whether the owner's recent samples contain an
// implausible jump.
func (i *Ingestor) CheckTeleport(ctx context.Context, ownerID string) (geo.Teleport, bool, error) {
	fixes, err := i.Recent(ctx, ownerID, i.pol.Teleport.SampleWindow)
	if err != nil {
		return geo.Teleport{}, false, err
	}
	t, flagged := geo.DetectTeleport(fixes, i.pol.Teleport.Config())
	return t, flagged, nil
}
