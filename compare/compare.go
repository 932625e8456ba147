// Package compare implements the lap comparator: greedy nearest-distance
// matching of braking zones and corners between a baseline and a comparison
// lap, producing per-entity deltas and a lap-level summary.
package compare

import (
	"github.com/trackside/telemetry-core/config"
	"github.com/trackside/telemetry-core/models"
)

// CompareLaps matches baseline against comparison and reports deltas as
// comparison minus baseline throughout, including the lap-time delta.
func CompareLaps(baseline, comparison models.LapMetrics, cfg config.AnalysisConfig) models.LapComparison {
	brakingMatches := matchByDistance(len(baseline.Braking), len(comparison.Braking),
		func(i int) float64 { return baseline.Braking[i].EntryDistancePct },
		func(j int) float64 { return comparison.Braking[j].EntryDistancePct },
		cfg.DistanceMatchThreshold)

	cornerMatches := matchByDistance(len(baseline.Corners), len(comparison.Corners),
		func(i int) float64 { return baseline.Corners[i].ApexDistancePct },
		func(j int) float64 { return comparison.Corners[j].ApexDistancePct },
		cfg.DistanceMatchThreshold)

	braking := make([]models.BrakingComparison, len(baseline.Braking))
	matchedBraking := 0
	for i, b := range baseline.Braking {
		bc := models.BrakingComparison{Baseline: b, TrailBraking: trailBrakingCategory(b.HasTrailBraking, false)}
		if j, ok := brakingMatches[i]; ok {
			c := comparison.Braking[j]
			bc.Comparison = &c
			bc.DistanceDelta = ptr(wrapSignedDelta(b.EntryDistancePct, c.EntryDistancePct))
			bc.EntrySpeedDelta = ptr(c.EntrySpeed - b.EntrySpeed)
			bc.MinimumSpeedDelta = ptr(c.MinimumSpeed - b.MinimumSpeed)
			bc.DurationDelta = ptr(c.DurationS - b.DurationS)
			bc.PeakPressureDelta = ptr(c.PeakBrakePressure - b.PeakBrakePressure)
			bc.EfficiencyDelta = ptr(c.BrakingEfficiency - b.BrakingEfficiency)
			bc.TrailBraking = trailBrakingCategory(b.HasTrailBraking, c.HasTrailBraking)
			matchedBraking++
		}
		braking[i] = bc
	}

	corners := make([]models.CornerComparison, len(baseline.Corners))
	matchedCorners := 0
	for i, b := range baseline.Corners {
		cc := models.CornerComparison{Baseline: b}
		if j, ok := cornerMatches[i]; ok {
			c := comparison.Corners[j]
			cc.Comparison = &c
			cc.DistanceDelta = ptr(wrapSignedDelta(b.ApexDistancePct, c.ApexDistancePct))
			cc.ApexSpeedDelta = ptr(c.ApexSpeed - b.ApexSpeed)
			cc.TurnInSpeedDelta = ptr(c.TurnInSpeed - b.TurnInSpeed)
			cc.ExitSpeedDelta = ptr(c.ExitSpeed - b.ExitSpeed)
			cc.MaxLateralGDelta = ptr(c.MaxLateralG - b.MaxLateralG)
			cc.TimeInCornerDelta = ptr(c.TimeInCornerS - b.TimeInCornerS)
			cc.SpeedLossDelta = ptr(c.SpeedLossMS - b.SpeedLossMS)
			cc.SpeedGainDelta = ptr(c.SpeedGainMS - b.SpeedGainMS)
			matchedCorners++
		}
		corners[i] = cc
	}

	var lapTimeDelta *float64
	if baseline.LapTimeS != 0 && comparison.LapTimeS != 0 {
		lapTimeDelta = ptr(comparison.LapTimeS - baseline.LapTimeS)
	}

	summary := models.ComparisonSummary{
		LapTimeDelta:           lapTimeDelta,
		MaxSpeedDelta:          comparison.MaxSpeed - baseline.MaxSpeed,
		MinSpeedDelta:          comparison.MinSpeed - baseline.MinSpeed,
		AvgCornerSpeedDelta:    comparison.AverageCornerSpeed - baseline.AverageCornerSpeed,
		BaselineBrakingCount:   len(baseline.Braking),
		ComparisonBrakingCount: len(comparison.Braking),
		MatchedBrakingCount:    matchedBraking,
		BaselineCornerCount:    len(baseline.Corners),
		ComparisonCornerCount:  len(comparison.Corners),
		MatchedCornerCount:     matchedCorners,
	}

	return models.LapComparison{Summary: summary, Braking: braking, Corners: corners}
}

func trailBrakingCategory(baseline, comparison bool) models.TrailBrakingComparison {
	switch {
	case baseline && comparison:
		return models.TrailBrakingBoth
	case baseline && !comparison:
		return models.TrailBrakingBaselineOnly
	case !baseline && comparison:
		return models.TrailBrakingComparisonOnly
	default:
		return models.TrailBrakingNeither
	}
}

// matchByDistance greedily pairs each baseline index with the nearest
// comparison index (wrap-normalized distance) within threshold, processing
// baseline entities in order and ties broken by the lower comparison index.
// Each comparison index is consumed by at most one match.
func matchByDistance(nBase, nComp int, baseDist func(int) float64, compDist func(int) float64, threshold float64) map[int]int {
	matches := make(map[int]int, nBase)
	used := make(map[int]bool, nComp)
	for i := 0; i < nBase; i++ {
		bestJ := -1
		var bestDist float64
		for j := 0; j < nComp; j++ {
			if used[j] {
				continue
			}
			d := wrapAbsDelta(baseDist(i), compDist(j))
			if d > threshold {
				continue
			}
			// Ascending j order means a strict (not <=) improvement keeps
			// the lower index on ties.
			if bestJ == -1 || d < bestDist {
				bestDist = d
				bestJ = j
			}
		}
		if bestJ >= 0 {
			matches[i] = bestJ
			used[bestJ] = true
		}
	}
	return matches
}

// wrapAbsDelta is the shorter of the two wrap-normalized distances between a
// and b on the [0,1) ring.
func wrapAbsDelta(a, b float64) float64 {
	d1 := models.WrapDelta(a, b, 1.0)
	d2 := models.WrapDelta(b, a, 1.0)
	if d1 < d2 {
		return d1
	}
	return d2
}

// wrapSignedDelta returns whichever of the two wrap-normalized directions
// has the smaller magnitude, signed so positive means comparison sits later
// on the lap than baseline.
func wrapSignedDelta(baseline, comparison float64) float64 {
	forward := models.WrapDelta(baseline, comparison, 1.0)
	backward := models.WrapDelta(comparison, baseline, 1.0)
	if forward <= backward {
		return forward
	}
	return -backward
}

func ptr(v float64) *float64 { return &v }
