// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package geo

import (
	"math"
	"math/rand/v2"
)

// Rand is the random source used by the sampling functions.
// *math/rand/v2.Rand satisfies it; tests supply fixed sequences.
type Rand interface {
	Float64() float64
}

// DefaultRand draws from the math/rand/v2 global source, which is safe for
// concurrent use.
var DefaultRand Rand = globalRand{}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// RandomPointInRadius samples a point uniformly over the area of the annulus
// [minM, maxM] around (lat, lng).
//
// The distance is drawn as sqrt(u*(max²-min²)+min²) so that squared distance is
// uniform, which avoids clustering samples near the center.
func RandomPointInRadius(rng Rand, lat, lng, minM, maxM float64) (float64, float64) {
	bearing := rng.Float64() * 360
	d := annulusDistance(rng.Float64(), minM, maxM)
	return Offset(lat, lng, bearing, d)
}

// RandomPointInCone is RandomPointInRadius restricted to bearings within
// headingDeg ± coneDeg/2.
func RandomPointInCone(rng Rand, lat, lng, headingDeg, coneDeg, minM, maxM float64) (float64, float64) {
	bearing := normalizeDegrees(headingDeg + (rng.Float64()-0.5)*coneDeg)
	d := annulusDistance(rng.Float64(), minM, maxM)
	return Offset(lat, lng, bearing, d)
}

func annulusDistance(u, minM, maxM float64) float64 {
	if maxM < minM {
		minM, maxM = maxM, minM
	}
	if minM < 0 {
		minM = 0
	}
	return math.Sqrt(u*(maxM*maxM-minM*minM) + minM*minM)
}
