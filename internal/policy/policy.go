// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package policy holds the tunables that drive node generation and the
// reservation lifecycle.
//
// A Policy is resolved once at startup from the embedded defaults, an optional
// policy file and an optional named scenario overlay, then treated as an
// immutable value for the life of the process:
//
//	pol, err := policy.Resolve(policy.Options{
//	    File:     "/etc/waymark/policy.yaml",
//	    Scenario: "festival",
//	})
//
// Layering (later wins, maps merged recursively, lists replaced):
//  1. default.yaml embedded in this package
//  2. the policy file, if any
//  3. scenarios.<name> from the merged document, if a scenario is selected
package policy

import (
	"time"

	"github.com/tomtom215/waymark/internal/geo"
	"github.com/tomtom215/waymark/internal/models"
)

// Policy is the resolved, validated tunable set.
type Policy struct {
	Version     string            `koanf:"version"`
	Scenario    string            `koanf:"-"`
	Grid        GridPolicy        `koanf:"grid"`
	Personal    PersonalPolicy    `koanf:"personal"`
	Hotspot     HotspotPolicy     `koanf:"hotspot"`
	Event       EventPolicy       `koanf:"event"`
	Reservation ReservationPolicy `koanf:"reservation"`
	Teleport    TeleportPolicy    `koanf:"teleport"`
	Retention   RetentionPolicy   `koanf:"retention"`

	// Rarity maps each quality tier to its rarity distribution.
	Rarity map[models.Quality]map[models.Rarity]float64 `koanf:"rarity"`

	location *time.Location
}

// GridPolicy sets the spatial quantization.
type GridPolicy struct {
	RegionSizeKm float64 `koanf:"region_size_km"`
	CellSizeKm   float64 `koanf:"cell_size_km"`
}

// PersonalPolicy controls owner-exclusive nodes.
type PersonalPolicy struct {
	ActiveAtOnce int                        `koanf:"active_at_once"`
	Expire       time.Duration              `koanf:"expire"`
	SampleWindow int                        `koanf:"sample_window"`
	Buckets      []DistanceBucket           `koanf:"buckets"`
	Quality      map[models.Quality]float64 `koanf:"quality"`
	RouteRunner  RouteRunnerPolicy          `koanf:"route_runner"`
}

// DistanceBucket is one ring of the weighted spawn-distance table.
type DistanceBucket struct {
	Name        string  `koanf:"name"`
	MinM        float64 `koanf:"min_m"`
	MaxM        float64 `koanf:"max_m"`
	Probability float64 `koanf:"probability"`
}

// RouteRunnerPolicy places personal nodes ahead of a moving player.
type RouteRunnerPolicy struct {
	Enabled                 bool    `koanf:"enabled"`
	ConeDeg                 float64 `koanf:"cone_deg"`
	MinM                    float64 `koanf:"min_m"`
	MaxM                    float64 `koanf:"max_m"`
	MovingSpeedMps          float64 `koanf:"moving_speed_mps"`
	MinHeadingDisplacementM float64 `koanf:"min_heading_displacement_m"`
}

// HotspotPolicy controls shared regional clusters.
type HotspotPolicy struct {
	HotspotsPerCell int                        `koanf:"hotspots_per_cell"`
	NodesPerHotspot int                        `koanf:"nodes_per_hotspot"`
	AnchorMinM      float64                    `koanf:"anchor_min_m"`
	AnchorMaxM      float64                    `koanf:"anchor_max_m"`
	ClusterRadiusM  float64                    `koanf:"cluster_radius_m"`
	Expire          time.Duration              `koanf:"expire"`
	Quality         map[models.Quality]float64 `koanf:"quality"`
}

// Target is the number of live hotspot nodes a region should hold.
func (h HotspotPolicy) Target() int {
	return h.HotspotsPerCell * h.NodesPerHotspot
}

// EventPolicy holds the time-windowed event drops.
type EventPolicy struct {
	Timezone string        `koanf:"timezone"`
	Windows  []EventWindow `koanf:"windows"`
}

// EventWindow is an hour range in the event time zone. StartHour is inclusive
// and EndHour exclusive; a window with StartHour > EndHour crosses midnight.
type EventWindow struct {
	ID        string         `koanf:"id"`
	StartHour int            `koanf:"start_hour"`
	EndHour   int            `koanf:"end_hour"`
	Quality   models.Quality `koanf:"quality"`
	DropsPer  int            `koanf:"drops_per"`
	Expire    time.Duration  `koanf:"expire"`
	MinM      float64        `koanf:"min_m"`
	MaxM      float64        `koanf:"max_m"`
}

// ReservationPolicy guards the reservation state machine.
type ReservationPolicy struct {
	MaxActive        int           `koanf:"max_active"`
	Duration         time.Duration `koanf:"duration"`
	ArrivalDistanceM float64       `koanf:"arrival_distance_m"`
	GraceOnExpire    time.Duration `koanf:"grace_on_expire"`
}

// TeleportPolicy configures spoofed-location detection.
type TeleportPolicy struct {
	MaxSpeedMps  float64       `koanf:"max_speed_mps"`
	Window       time.Duration `koanf:"window"`
	MinDistanceM float64       `koanf:"min_distance_m"`
	SampleWindow int           `koanf:"sample_window"`
}

// Config converts the policy into the geo detector thresholds.
func (t TeleportPolicy) Config() geo.TeleportConfig {
	return geo.TeleportConfig{
		MaxSpeedMps:  t.MaxSpeedMps,
		MaxElapsed:   t.Window,
		MinDistanceM: t.MinDistanceM,
	}
}

// RetentionPolicy bounds storage growth.
type RetentionPolicy struct {
	Samples time.Duration `koanf:"samples"`
	Nodes   time.Duration `koanf:"nodes"`
}

// Location returns the event time zone. Falls back to UTC for a Policy that
// did not come from Resolve.
func (p *Policy) Location() *time.Location {
	if p.location == nil {
		return time.UTC
	}
	return p.location
}

// BucketWeights returns the personal distance buckets as a draw table keyed
// by bucket index.
func (p *Policy) BucketWeights() map[int]float64 {
	out := make(map[int]float64, len(p.Personal.Buckets))
	for i, b := range p.Personal.Buckets {
		out[i] = b.Probability
	}
	return out
}

// MaxPersonalRadiusM is the furthest a personal node can spawn from the player.
func (p *Policy) MaxPersonalRadiusM() float64 {
	maxM := 0.0
	for _, b := range p.Personal.Buckets {
		maxM = max(maxM, b.MaxM)
	}
	if p.Personal.RouteRunner.Enabled {
		maxM = max(maxM, p.Personal.RouteRunner.MaxM)
	}
	return maxM
}

// ActiveWindow returns the first window containing t (in the event time zone)
// and the key identifying that window's occurrence. The key combines the
// window id with the local date the window opened on, so a window crossing
// midnight keeps one key until it closes.
func (p *Policy) ActiveWindow(t time.Time) (EventWindow, string, bool) {
	local := t.In(p.Location())
	hour := local.Hour()

	for _, w := range p.Event.Windows {
		if !w.contains(hour) {
			continue
		}
		opened := local
		if w.StartHour > w.EndHour && hour < w.EndHour {
			opened = local.AddDate(0, 0, -1)
		}
		return w, w.ID + ":" + opened.Format("2006-01-02"), true
	}
	return EventWindow{}, "", false
}

func (w EventWindow) contains(hour int) bool {
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}
