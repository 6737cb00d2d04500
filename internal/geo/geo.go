// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

// Package geo provides the pure spatial math used by the spawning engine:
// great-circle distance, grid keys, area-uniform point sampling and
// movement inference over short location histories.
//
// All functions are deterministic given their inputs (sampling functions take
// an explicit random source), so they are safe for concurrent use.
package geo

import (
	"fmt"
	"math"
)

const (
	// EarthRadiusMeters is the mean earth radius used by the haversine formula.
	EarthRadiusMeters = 6371008.8

	// KmPerDegree is the approximate length of one degree of latitude.
	KmPerDegree = 111.32

	metersPerDegree = KmPerDegree * 1000
)

// DistanceMeters returns the haversine great-circle distance between two points.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Bearing returns the initial bearing in degrees [0,360) from point 1 to point 2.
func Bearing(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dLambda := toRadians(lng2 - lng1)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)

	return normalizeDegrees(toDegrees(math.Atan2(y, x)))
}

// Offset projects a point distanceM meters away along bearingDeg using an
// equirectangular approximation. Accurate to well under a meter at city scale.
func Offset(lat, lng, bearingDeg, distanceM float64) (float64, float64) {
	theta := toRadians(bearingDeg)
	dLat := distanceM * math.Cos(theta) / metersPerDegree

	cosLat := math.Cos(toRadians(lat))
	if math.Abs(cosLat) < 1e-9 {
		cosLat = 1e-9
	}
	dLng := distanceM * math.Sin(theta) / (metersPerDegree * cosLat)

	return lat + dLat, lng + dLng
}

// RegionKey quantizes a coordinate into the coarse region grid.
func RegionKey(lat, lng, regionSizeKm float64) string {
	return gridKey(lat, lng, regionSizeKm)
}

// CellKey quantizes a coordinate into the fine cell grid.
func CellKey(lat, lng, cellSizeKm float64) string {
	return gridKey(lat, lng, cellSizeKm)
}

// gridKey floors lat/lng scaled to the grid size and joins the integer indices.
// Two points share a key iff they fall in the same grid square.
func gridKey(lat, lng, sizeKm float64) string {
	deg := sizeKm / KmPerDegree
	latIdx := int64(math.Floor(lat / deg))
	lngIdx := int64(math.Floor(lng / deg))
	return fmt.Sprintf("%d:%d", latIdx, lngIdx)
}

// ValidCoordinate reports whether lat/lng are finite and within WGS84 bounds.
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func normalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
