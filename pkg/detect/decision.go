package detect

import (
	"math"
	"sort"
)

// confidenceScale maps distance from the threshold onto [0.5, 1.0]; a score
// 0.35 away from the threshold saturates confidence.
const confidenceScale = 0.35

// WeightedScore combines the produced signal scores using the weight map,
// renormalizing over the keys actually present. Weight assigned to signals
// no extractor produced (the reserved similar_incidents slot) is excluded
// from the denominator, so the live signals always sum to full weight.
func WeightedScore(scores map[string]float64, weights map[string]float64) float64 {
	// Summation order is fixed so identical inputs give bit-identical
	// results regardless of map iteration order.
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)

	var sum, totalWeight float64
	for _, name := range names {
		w, ok := weights[name]
		if !ok {
			continue
		}
		sum += scores[name] * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return sum / totalWeight
}

// Confidence maps the weighted score's distance from the threshold onto
// [0.5, 1.0]. A borderline score yields minimum confidence.
func Confidence(weightedScore, threshold float64) float64 {
	c := math.Abs(weightedScore-threshold) / confidenceScale
	if c < 0.5 {
		return 0.5
	}
	if c > 1.0 {
		return 1.0
	}
	return c
}
