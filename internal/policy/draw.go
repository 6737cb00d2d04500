// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package policy

import (
	"cmp"
	"slices"

	"github.com/tomtom215/waymark/internal/geo"
	"github.com/tomtom215/waymark/internal/models"
)

// Draw picks a key from weights with probability proportional to its weight.
//
// Keys are walked in sorted order so a given random sequence always yields the
// same result. If rounding leaves the draw past the final cumulative bound, the
// last positively weighted key is returned. ok is false only when no key has a
// positive weight.
func Draw[K cmp.Ordered](rng geo.Rand, weights map[K]float64) (K, bool) {
	keys := make([]K, 0, len(weights))
	var total float64
	for k, w := range weights {
		if w > 0 {
			keys = append(keys, k)
			total += w
		}
	}
	if len(keys) == 0 {
		var zero K
		return zero, false
	}
	slices.Sort(keys)

	u := rng.Float64() * total
	var cum float64
	for _, k := range keys {
		cum += weights[k]
		if u < cum {
			return k, true
		}
	}
	return keys[len(keys)-1], true
}

// DrawQuality draws from a quality table, defaulting to POOR for an empty table.
func DrawQuality(rng geo.Rand, table map[models.Quality]float64) models.Quality {
	q, ok := Draw(rng, table)
	if !ok {
		return models.QualityPoor
	}
	return q
}

// RollRarity draws a reward rarity for a node of quality q.
func (p *Policy) RollRarity(rng geo.Rand, q models.Quality) models.Rarity {
	r, ok := Draw(rng, p.Rarity[q])
	if !ok {
		return models.RarityCommon
	}
	return r
}
