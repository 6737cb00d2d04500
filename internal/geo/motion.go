// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package geo

import (
	"slices"
	"time"
)

// Fix is a single timestamped position in a movement history.
type Fix struct {
	Lat float64
	Lng float64
	At  time.Time
}

// TeleportConfig holds the thresholds for DetectTeleport.
type TeleportConfig struct {
	// MaxSpeedMps is the fastest plausible physical movement.
	MaxSpeedMps float64

	// MaxElapsed limits detection to consecutive fixes close together in time.
	// Long gaps can legitimately cover large distances (transit, flights).
	MaxElapsed time.Duration

	// MinDistanceM ignores jumps smaller than typical GPS drift.
	MinDistanceM float64
}

// Movement summarizes recent motion for spawn placement.
type Movement struct {
	SpeedMps   float64
	HeadingDeg float64
	HasHeading bool
}

// EstimateMovement derives speed and heading from a fix history.
func EstimateMovement(fixes []Fix, minDisplacementM float64) Movement {
	heading, ok := HeadingFromSamples(fixes, minDisplacementM)
	return Movement{
		SpeedMps:   AverageSpeed(fixes),
		HeadingDeg: heading,
		HasHeading: ok,
	}
}

// Teleport describes the pair of fixes that tripped DetectTeleport.
type Teleport struct {
	From      Fix
	To        Fix
	DistanceM float64
	Elapsed   time.Duration
	SpeedMps  float64
}

// HeadingFromSamples returns the bearing from the oldest to the newest fix.
// ok is false when there are fewer than two fixes or they are closer than
// minDisplacementM, in which case no stable heading exists.
func HeadingFromSamples(fixes []Fix, minDisplacementM float64) (deg float64, ok bool) {
	if len(fixes) < 2 {
		return 0, false
	}
	sorted := chronological(fixes)
	first, last := sorted[0], sorted[len(sorted)-1]

	if DistanceMeters(first.Lat, first.Lng, last.Lat, last.Lng) < minDisplacementM {
		return 0, false
	}
	return Bearing(first.Lat, first.Lng, last.Lat, last.Lng), true
}

// AverageSpeed returns the mean of consecutive pairwise speeds in m/s.
// Pairs with a non-positive time delta are skipped; zero is returned when no
// pair qualifies.
func AverageSpeed(fixes []Fix) float64 {
	sorted := chronological(fixes)

	var total float64
	var n int
	for i := 1; i < len(sorted); i++ {
		dt := sorted[i].At.Sub(sorted[i-1].At).Seconds()
		if dt <= 0 {
			continue
		}
		d := DistanceMeters(sorted[i-1].Lat, sorted[i-1].Lng, sorted[i].Lat, sorted[i].Lng)
		total += d / dt
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// DetectTeleport scans consecutive fixes for a jump that implies movement
// faster than cfg.MaxSpeedMps over less than cfg.MaxElapsed. A jump of at least
// cfg.MinDistanceM with no elapsed time is always flagged.
func DetectTeleport(fixes []Fix, cfg TeleportConfig) (Teleport, bool) {
	sorted := chronological(fixes)

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		elapsed := cur.At.Sub(prev.At)
		if cfg.MaxElapsed > 0 && elapsed >= cfg.MaxElapsed {
			continue
		}

		d := DistanceMeters(prev.Lat, prev.Lng, cur.Lat, cur.Lng)
		if d < cfg.MinDistanceM {
			continue
		}

		secs := elapsed.Seconds()
		if secs <= 0 {
			return Teleport{From: prev, To: cur, DistanceM: d, Elapsed: elapsed}, true
		}

		speed := d / secs
		if speed > cfg.MaxSpeedMps {
			return Teleport{From: prev, To: cur, DistanceM: d, Elapsed: elapsed, SpeedMps: speed}, true
		}
	}
	return Teleport{}, false
}

// chronological returns a copy of fixes ordered oldest first.
func chronological(fixes []Fix) []Fix {
	out := slices.Clone(fixes)
	slices.SortStableFunc(out, func(a, b Fix) int {
		return a.At.Compare(b.At)
	})
	return out
}
