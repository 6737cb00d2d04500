// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package geo

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"
)

const (
	manilaLat = 14.5995
	manilaLng = 120.9842
)

func TestDistanceMeters(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lng1      float64
		lat2      float64
		lng2      float64
		want      float64
		tolerance float64
	}{
		{"same point", manilaLat, manilaLng, manilaLat, manilaLng, 0, 0.001},
		{"one degree latitude", 0, 0, 1, 0, 111195, 50},
		{"new york to london", 40.7128, -74.0060, 51.5074, -0.1278, 5570000, 10000},
		{"antipodal", 0, 0, 0, 180, math.Pi * EarthRadiusMeters, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("DistanceMeters() = %.1f, want %.1f ± %.1f", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestGridKeys(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			lat := -80 + float64(i)*1.6
			lng := -170 + float64(i)*3.4
			if RegionKey(lat, lng, 2) != RegionKey(lat, lng, 2) {
				t.Fatalf("RegionKey not deterministic at %f,%f", lat, lng)
			}
			if CellKey(lat, lng, 0.25) != CellKey(lat, lng, 0.25) {
				t.Fatalf("CellKey not deterministic at %f,%f", lat, lng)
			}
		}
	})

	t.Run("known key", func(t *testing.T) {
		// 2km grid: deg = 2/111.32 = 0.017966...
		// 14.5995/0.017966 = 812.6 -> 812; 120.9842/0.017966 = 6733.9 -> 6733
		if got := RegionKey(manilaLat, manilaLng, 2); got != "812:6733" {
			t.Errorf("RegionKey() = %q, want %q", got, "812:6733")
		}
	})

	t.Run("negative coordinates floor", func(t *testing.T) {
		if got := CellKey(-0.0001, -0.0001, 1); got != "-1:-1" {
			t.Errorf("CellKey() = %q, want %q", got, "-1:-1")
		}
	})

	t.Run("nearby points share region", func(t *testing.T) {
		a := RegionKey(manilaLat, manilaLng, 2)
		lat, lng := Offset(manilaLat, manilaLng, 90, 10)
		if b := RegionKey(lat, lng, 2); a != b {
			t.Errorf("points 10m apart landed in different regions: %s vs %s", a, b)
		}
	})

	t.Run("finer grid distinguishes", func(t *testing.T) {
		lat, lng := Offset(manilaLat, manilaLng, 0, 1000)
		if CellKey(manilaLat, manilaLng, 0.25) == CellKey(lat, lng, 0.25) {
			t.Error("points 1km apart share a 250m cell")
		}
	})
}

func TestRandomPointInRadius_AreaUniform(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	const n = 10000
	const minM, maxM = 100.0, 200.0

	bins := make([]int, 4)
	lo, hi := minM*minM, maxM*maxM
	width := (hi - lo) / float64(len(bins))

	var sumSq float64
	for i := 0; i < n; i++ {
		lat, lng := RandomPointInRadius(rng, manilaLat, manilaLng, minM, maxM)
		d := DistanceMeters(manilaLat, manilaLng, lat, lng)
		if d < minM-1 || d > maxM+1 {
			t.Fatalf("sample %d at %.2fm outside annulus [%v,%v]", i, d, minM, maxM)
		}
		sq := d * d
		sumSq += sq

		idx := int((sq - lo) / width)
		if idx < 0 {
			idx = 0
		}
		if idx >= len(bins) {
			idx = len(bins) - 1
		}
		bins[idx]++
	}

	expected := float64(n) / float64(len(bins))
	for i, c := range bins {
		if math.Abs(float64(c)-expected) > expected*0.1 {
			t.Errorf("bin %d has %d samples, want ~%.0f (squared distance should be uniform)", i, c, expected)
		}
	}

	mean := sumSq / n
	if want := (lo + hi) / 2; math.Abs(mean-want)/want > 0.02 {
		t.Errorf("mean squared distance = %.0f, want ~%.0f", mean, want)
	}
}

func TestRandomPointInCone(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	const heading, cone = 350.0, 60.0

	for i := 0; i < 1000; i++ {
		lat, lng := RandomPointInCone(rng, manilaLat, manilaLng, heading, cone, 80, 250)
		b := Bearing(manilaLat, manilaLng, lat, lng)

		diff := math.Abs(b - heading)
		if diff > 180 {
			diff = 360 - diff
		}
		if diff > cone/2+0.5 {
			t.Fatalf("bearing %.2f outside cone %v±%v", b, heading, cone/2)
		}

		d := DistanceMeters(manilaLat, manilaLng, lat, lng)
		if d < 79 || d > 251 {
			t.Fatalf("distance %.2f outside [80,250]", d)
		}
	}
}

func TestHeadingFromSamples(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	northLat, northLng := Offset(manilaLat, manilaLng, 0, 100)
	eastLat, eastLng := Offset(manilaLat, manilaLng, 90, 100)

	tests := []struct {
		name    string
		fixes   []Fix
		want    float64
		wantOK  bool
		minDisp float64
	}{
		{"no fixes", nil, 0, false, 15},
		{"single fix", []Fix{{manilaLat, manilaLng, base}}, 0, false, 15},
		{
			"too close",
			[]Fix{{manilaLat, manilaLng, base}, {manilaLat + 0.00001, manilaLng, base.Add(10 * time.Second)}},
			0, false, 15,
		},
		{
			"north",
			[]Fix{{manilaLat, manilaLng, base}, {northLat, northLng, base.Add(time.Minute)}},
			0, true, 15,
		},
		{
			"east, unordered input",
			[]Fix{{eastLat, eastLng, base.Add(time.Minute)}, {manilaLat, manilaLng, base}},
			90, true, 15,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := HeadingFromSamples(tt.fixes, tt.minDisp)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			diff := math.Abs(got - tt.want)
			if diff > 180 {
				diff = 360 - diff
			}
			if diff > 0.5 {
				t.Errorf("heading = %.2f, want %.2f", got, tt.want)
			}
		})
	}
}

func TestAverageSpeed(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	lat1, lng1 := Offset(manilaLat, manilaLng, 0, 100)
	lat2, lng2 := Offset(lat1, lng1, 0, 300)

	fixes := []Fix{
		{manilaLat, manilaLng, base},
		{lat1, lng1, base.Add(100 * time.Second)}, // ~1 m/s
		{lat2, lng2, base.Add(200 * time.Second)}, // ~3 m/s
	}

	got := AverageSpeed(fixes)
	if math.Abs(got-2) > 0.05 {
		t.Errorf("AverageSpeed() = %.3f, want ~2", got)
	}

	if AverageSpeed(fixes[:1]) != 0 {
		t.Error("AverageSpeed() of a single fix should be 0")
	}

	same := []Fix{{manilaLat, manilaLng, base}, {lat1, lng1, base}}
	if AverageSpeed(same) != 0 {
		t.Error("AverageSpeed() should skip zero time deltas")
	}
}

func TestDetectTeleport(t *testing.T) {
	cfg := TeleportConfig{MaxSpeedMps: 70, MaxElapsed: 5 * time.Minute, MinDistanceM: 300}
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	farLat, farLng := Offset(manilaLat, manilaLng, 45, 2000)
	nearLat, nearLng := Offset(manilaLat, manilaLng, 45, 50)

	tests := []struct {
		name  string
		fixes []Fix
		want  bool
	}{
		{
			"2km in 5 seconds",
			[]Fix{{manilaLat, manilaLng, base}, {farLat, farLng, base.Add(5 * time.Second)}},
			true,
		},
		{
			"2km in 10 minutes",
			[]Fix{{manilaLat, manilaLng, base}, {farLat, farLng, base.Add(10 * time.Minute)}},
			false,
		},
		{
			"2km with no elapsed time",
			[]Fix{{manilaLat, manilaLng, base}, {farLat, farLng, base}},
			true,
		},
		{
			"gps drift below minimum distance",
			[]Fix{{manilaLat, manilaLng, base}, {nearLat, nearLng, base.Add(100 * time.Millisecond)}},
			false,
		},
		{
			"walking pace",
			[]Fix{{manilaLat, manilaLng, base}, {nearLat, nearLng, base.Add(40 * time.Second)}},
			false,
		},
		{"single fix", []Fix{{manilaLat, manilaLng, base}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp, got := DetectTeleport(tt.fixes, cfg)
			if got != tt.want {
				t.Errorf("DetectTeleport() = %v, want %v (distance %.0fm, speed %.1fm/s)",
					got, tt.want, tp.DistanceM, tp.SpeedMps)
			}
		})
	}
}

func TestValidCoordinate(t *testing.T) {
	tests := []struct {
		lat, lng float64
		want     bool
	}{
		{manilaLat, manilaLng, true},
		{90, 180, true},
		{-90.1, 0, false},
		{0, 180.5, false},
		{math.NaN(), 0, false},
		{0, math.Inf(1), false},
	}
	for _, tt := range tests {
		if got := ValidCoordinate(tt.lat, tt.lng); got != tt.want {
			t.Errorf("ValidCoordinate(%v, %v) = %v, want %v", tt.lat, tt.lng, got, tt.want)
		}
	}
}
