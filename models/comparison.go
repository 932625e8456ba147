package models

// TrailBrakingComparison classifies how two matched braking zones relate on
// the trail-braking flag.
type TrailBrakingComparison string

const (
	TrailBrakingBoth           TrailBrakingComparison = "both"
	TrailBrakingBaselineOnly   TrailBrakingComparison = "baseline_only"
	TrailBrakingComparisonOnly TrailBrakingComparison = "comparison_only"
	TrailBrakingNeither        TrailBrakingComparison = "neither"
)

// BrakingComparison is a delta between one baseline zone and its matched
// comparison zone. Baseline is always present; Comparison is nil when the
// baseline zone had no match within DISTANCE_MATCH_THRESHOLD.
type BrakingComparison struct {
	Baseline   BrakingMetrics
	Comparison *BrakingMetrics

	// DistanceDelta is the wrap-normalized difference in entry distance
	// between the matched zones; nil when unmatched.
	DistanceDelta       *float64
	EntrySpeedDelta     *float64
	MinimumSpeedDelta   *float64
	DurationDelta       *float64
	PeakPressureDelta   *float64
	EfficiencyDelta     *float64
	TrailBraking        TrailBrakingComparison
}

// CornerComparison is a delta between one baseline corner and its matched
// comparison corner. Comparison is nil when unmatched.
type CornerComparison struct {
	Baseline   CornerMetrics
	Comparison *CornerMetrics

	// DistanceDelta is the wrap-normalized difference in apex distance
	// between the matched corners; nil when unmatched.
	DistanceDelta      *float64
	ApexSpeedDelta     *float64
	TurnInSpeedDelta   *float64
	ExitSpeedDelta     *float64
	MaxLateralGDelta   *float64
	TimeInCornerDelta  *float64
	SpeedLossDelta     *float64
	SpeedGainDelta     *float64
}

// ComparisonSummary aggregates lap-level deltas.
type ComparisonSummary struct {
	LapTimeDelta     *float64 // comparison - baseline; nil if either lap time unknown
	MaxSpeedDelta    float64
	MinSpeedDelta    float64
	AvgCornerSpeedDelta float64

	BaselineBrakingCount   int
	ComparisonBrakingCount int
	MatchedBrakingCount    int

	BaselineCornerCount   int
	ComparisonCornerCount int
	MatchedCornerCount    int
}

// LapComparison is the full output of comparing two laps.
type LapComparison struct {
	Summary ComparisonSummary
	Braking []BrakingComparison
	Corners []CornerComparison
}
