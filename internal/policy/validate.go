// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package policy

import (
	"fmt"
	"math"

	"github.com/tomtom215/waymark/internal/models"
)

// sumTolerance absorbs YAML float rounding in probability tables.
const sumTolerance = 1e-6

// Validate checks that the policy is internally consistent.
func (p *Policy) Validate() error {
	if err := p.validateGrid(); err != nil {
		return err
	}
	if err := p.validatePersonal(); err != nil {
		return err
	}
	if err := p.validateHotspot(); err != nil {
		return err
	}
	if err := p.validateEvents(); err != nil {
		return err
	}
	if err := p.validateReservation(); err != nil {
		return err
	}
	if err := p.validateTeleport(); err != nil {
		return err
	}
	if err := p.validateRetention(); err != nil {
		return err
	}
	return p.validateRarity()
}

func (p *Policy) validateGrid() error {
	if p.Grid.RegionSizeKm <= 0 || p.Grid.CellSizeKm <= 0 {
		return fmt.Errorf("grid sizes must be positive (region=%v, cell=%v)", p.Grid.RegionSizeKm, p.Grid.CellSizeKm)
	}
	if p.Grid.CellSizeKm > p.Grid.RegionSizeKm {
		return fmt.Errorf("grid.cell_size_km (%v) must not exceed grid.region_size_km (%v)", p.Grid.CellSizeKm, p.Grid.RegionSizeKm)
	}
	return nil
}

func (p *Policy) validatePersonal() error {
	pp := p.Personal
	if pp.ActiveAtOnce < 0 {
		return fmt.Errorf("personal.active_at_once must be >= 0, got %d", pp.ActiveAtOnce)
	}
	if pp.Expire <= 0 {
		return fmt.Errorf("personal.expire must be positive")
	}
	if len(pp.Buckets) == 0 {
		return fmt.Errorf("personal.buckets must not be empty")
	}
	for _, b := range pp.Buckets {
		if err := validateRange("personal.buckets."+b.Name, b.MinM, b.MaxM); err != nil {
			return err
		}
	}
	if err := validateTable("personal.buckets", p.BucketWeights()); err != nil {
		return err
	}
	if err := validateQualityTable("personal.quality", pp.Quality); err != nil {
		return err
	}

	rr := pp.RouteRunner
	if rr.Enabled {
		if rr.ConeDeg <= 0 || rr.ConeDeg > 360 {
			return fmt.Errorf("personal.route_runner.cone_deg must be in (0,360], got %v", rr.ConeDeg)
		}
		if err := validateRange("personal.route_runner", rr.MinM, rr.MaxM); err != nil {
			return err
		}
		if pp.SampleWindow < 2 {
			return fmt.Errorf("personal.sample_window must be >= 2 when route runner is enabled")
		}
	}
	return nil
}

func (p *Policy) validateHotspot() error {
	h := p.Hotspot
	if h.HotspotsPerCell < 0 || h.NodesPerHotspot < 0 {
		return fmt.Errorf("hotspot counts must be >= 0")
	}
	if h.Target() == 0 {
		return nil
	}
	if err := validateRange("hotspot.anchor", h.AnchorMinM, h.AnchorMaxM); err != nil {
		return err
	}
	if h.ClusterRadiusM <= 0 {
		return fmt.Errorf("hotspot.cluster_radius_m must be positive")
	}
	if h.Expire <= 0 {
		return fmt.Errorf("hotspot.expire must be positive")
	}
	return validateQualityTable("hotspot.quality", h.Quality)
}

func (p *Policy) validateEvents() error {
	seen := make(map[string]bool, len(p.Event.Windows))
	for _, w := range p.Event.Windows {
		if w.ID == "" {
			return fmt.Errorf("event window id is required")
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate event window id %q", w.ID)
		}
		seen[w.ID] = true

		if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 1 || w.EndHour > 24 || w.StartHour == w.EndHour {
			return fmt.Errorf("event window %q has invalid hours [%d,%d)", w.ID, w.StartHour, w.EndHour)
		}
		if w.Quality.Rank() < 0 {
			return fmt.Errorf("event window %q has unknown quality %q", w.ID, w.Quality)
		}
		if w.DropsPer < 0 {
			return fmt.Errorf("event window %q drops_per must be >= 0", w.ID)
		}
		if w.Expire <= 0 {
			return fmt.Errorf("event window %q expire must be positive", w.ID)
		}
		if err := validateRange("event window "+w.ID, w.MinM, w.MaxM); err != nil {
			return err
		}
	}
	return nil
}

func (p *Policy) validateReservation() error {
	r := p.Reservation
	if r.MaxActive < 1 {
		return fmt.Errorf("reservation.max_active must be >= 1, got %d", r.MaxActive)
	}
	if r.Duration <= 0 {
		return fmt.Errorf("reservation.duration must be positive")
	}
	if r.ArrivalDistanceM <= 0 {
		return fmt.Errorf("reservation.arrival_distance_m must be positive")
	}
	if r.GraceOnExpire < 0 {
		return fmt.Errorf("reservation.grace_on_expire must be >= 0")
	}
	return nil
}

func (p *Policy) validateTeleport() error {
	t := p.Teleport
	if t.MaxSpeedMps <= 0 {
		return fmt.Errorf("teleport.max_speed_mps must be positive")
	}
	if t.SampleWindow < 2 {
		return fmt.Errorf("teleport.sample_window must be >= 2")
	}
	return nil
}

func (p *Policy) validateRetention() error {
	if p.Retention.Samples <= 0 || p.Retention.Nodes <= 0 {
		return fmt.Errorf("retention periods must be positive")
	}
	return nil
}

// validateRarity requires a distribution for every quality and that better
// qualities are never less likely to reach any rarity tier.
func (p *Policy) validateRarity() error {
	for _, q := range models.Qualities {
		table, ok := p.Rarity[q]
		if !ok {
			return fmt.Errorf("rarity table missing quality %s", q)
		}
		if err := validateTable("rarity."+string(q), table); err != nil {
			return err
		}
	}

	for tier := 1; tier < len(models.Rarities); tier++ {
		prev := -1.0
		for _, q := range models.Qualities {
			atLeast := 0.0
			for _, r := range models.Rarities[tier:] {
				atLeast += p.Rarity[q][r]
			}
			if atLeast+sumTolerance < prev {
				return fmt.Errorf("rarity.%s: chance of %s or better (%.4f) is below the previous quality (%.4f)",
					q, models.Rarities[tier], atLeast, prev)
			}
			prev = atLeast
		}
	}
	return nil
}

func validateQualityTable(name string, table map[models.Quality]float64) error {
	for q := range table {
		if q.Rank() < 0 {
			return fmt.Errorf("%s: unknown quality %q", name, q)
		}
	}
	return validateTable(name, table)
}

func validateTable[K comparable](name string, table map[K]float64) error {
	if len(table) == 0 {
		return fmt.Errorf("%s must not be empty", name)
	}
	var sum float64
	for k, w := range table {
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("%s: weight for %v must be >= 0", name, k)
		}
		sum += w
	}
	if math.Abs(sum-1) > sumTolerance {
		return fmt.Errorf("%s: weights sum to %.6f, want 1", name, sum)
	}
	return nil
}

func validateRange(name string, minM, maxM float64) error {
	if minM < 0 || maxM <= 0 || minM > maxM {
		return fmt.Errorf("%s: invalid distance range [%v,%v]", name, minM, maxM)
	}
	return nil
}
