// Package analysis implements the metrics extractor: a deterministic,
// single forward pass over one lap's frame sequence that runs a braking
// state machine and a corner state machine concurrently, producing
// braking-zone and corner records plus lap-level aggregates.
package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/trackside/telemetry-core/config"
	"github.com/trackside/telemetry-core/models"
)

type brakingState int

const (
	cruising brakingState = iota
	braking
)

type cornerState int

const (
	straight cornerState = iota
	cornering
)

// AnalyzeLap is the pure function at the heart of the extractor: same
// frame sequence and config always produce the same LapMetrics, within
// floating-point reassociation tolerance.
func AnalyzeLap(lap models.LapTelemetry, cfg config.AnalysisConfig) (models.LapMetrics, error) {
	if len(lap.Frames) < 2 {
		return models.LapMetrics{}, models.ErrInsufficientData
	}
	for _, f := range lap.Frames {
		if !f.IsFinite() {
			return models.LapMetrics{}, models.ErrInvalidFrame
		}
	}

	out := models.LapMetrics{
		LapNumber: lap.LapNumber,
		LapTimeS:  lap.LapTimeS,
		MaxSpeed:  lap.Frames[0].Speed,
		MinSpeed:  lap.Frames[0].Speed,
	}

	bm := newBrakingMachine(cfg)
	cm := newCornerMachine(cfg)

	for _, f := range lap.Frames {
		if f.Speed > out.MaxSpeed {
			out.MaxSpeed = f.Speed
		}
		if f.Speed < out.MinSpeed {
			out.MinSpeed = f.Speed
		}
		if zone, ok := bm.step(f); ok {
			out.Braking = append(out.Braking, zone)
		}
		if corner, ok := cm.step(f); ok {
			out.Corners = append(out.Corners, corner)
		}
	}
	if zone, ok := bm.flush(); ok {
		out.Braking = append(out.Braking, zone)
	}
	if corner, ok := cm.flush(); ok {
		out.Corners = append(out.Corners, corner)
	}

	out.TotalBrakingZones = len(out.Braking)
	out.TotalCorners = len(out.Corners)
	out.AverageCornerSpeed = averageApexSpeed(out.Corners)
	return out, nil
}

func averageApexSpeed(corners []models.CornerMetrics) float64 {
	if len(corners) == 0 {
		return 0
	}
	apexSpeeds := make([]float64, len(corners))
	for i, c := range corners {
		apexSpeeds[i] = c.ApexSpeed
	}
	return stat.Mean(apexSpeeds, nil)
}

// --- Braking state machine -------------------------------------------------

type brakingMachine struct {
	cfg   config.AnalysisConfig
	state brakingState
	zone  []models.TelemetryFrame
}

func newBrakingMachine(cfg config.AnalysisConfig) *brakingMachine {
	return &brakingMachine{cfg: cfg, state: cruising}
}

func (m *brakingMachine) step(f models.TelemetryFrame) (models.BrakingMetrics, bool) {
	switch m.state {
	case cruising:
		if f.Brake > m.cfg.BrakeThreshold {
			m.state = braking
			m.zone = append(m.zone[:0], f)
		}
		return models.BrakingMetrics{}, false
	case braking:
		if f.Brake > m.cfg.BrakeThreshold {
			m.zone = append(m.zone, f)
			return models.BrakingMetrics{}, false
		}
		zone, ok := m.finalize()
		m.state = cruising
		m.zone = nil
		return zone, ok
	}
	return models.BrakingMetrics{}, false
}

// flush finalizes a braking zone still open when the frame sequence ends.
func (m *brakingMachine) flush() (models.BrakingMetrics, bool) {
	if m.state != braking || len(m.zone) == 0 {
		return models.BrakingMetrics{}, false
	}
	zone, ok := m.finalize()
	m.state = cruising
	m.zone = nil
	return zone, ok
}

func (m *brakingMachine) finalize() (models.BrakingMetrics, bool) {
	zone := m.zone
	entry := zone[0]
	last := zone[len(zone)-1]

	duration := last.SessionTime - entry.SessionTime
	if duration < m.cfg.MinBrakingDuration.Seconds() {
		return models.BrakingMetrics{}, false
	}

	var maxPressure, minSpeed float64
	minSpeed = entry.Speed
	for _, f := range zone {
		if f.Brake > maxPressure {
			maxPressure = f.Brake
		}
		if f.Speed < minSpeed {
			minSpeed = f.Speed
		}
	}

	firstQuarterEnd := entry.SessionTime + duration/4
	var decelSum float64
	var decelCount int
	var maxDecel float64
	for _, f := range zone {
		decel := -f.LongitudinalAccel()
		if decel > maxDecel {
			maxDecel = decel
		}
		if f.SessionTime <= firstQuarterEnd {
			decelSum += decel
			decelCount++
		}
	}
	initialDecel := 0.0
	if decelCount > 0 {
		initialDecel = decelSum / float64(decelCount)
	}

	avgDecel := 0.0
	if duration > 0 {
		avgDecel = (entry.Speed - minSpeed) / duration
	}
	efficiency := 0.0
	if maxDecel > 0 {
		efficiency = avgDecel / maxDecel
		efficiency = math.Max(0, math.Min(1, efficiency))
	}

	entryDist := entry.LapDistancePct
	exitDist := last.LapDistancePct
	span := models.WrapDelta(entryDist, exitDist, 1.0)

	trailDist := trailingBrakeSpan(zone, m.cfg)
	trailPct := 0.0
	if span > 0 {
		trailPct = trailDist / span
	}

	return models.BrakingMetrics{
		EntryDistancePct:       entryDist,
		EntrySpeed:             entry.Speed,
		ExitDistancePct:        exitDist,
		PeakBrakePressure:      maxPressure,
		DurationS:              duration,
		MinimumSpeed:           minSpeed,
		InitialDecelerationMS2: initialDecel,
		AverageDecelerationMS2: avgDecel,
		BrakingEfficiency:      efficiency,
		HasTrailBraking:        trailPct > m.cfg.TrailBrakePercentageThreshold,
		TrailBrakeDistancePct:  trailDist,
		TrailBrakePercentage:   trailPct,
	}, true
}

// trailingBrakeSpan finds the latest contiguous run of trail-braking
// frames ending at the zone's last frame, and returns its distance span.
func trailingBrakeSpan(zone []models.TelemetryFrame, cfg config.AnalysisConfig) float64 {
	isTrail := func(f models.TelemetryFrame) bool {
		return math.Abs(f.SteeringRad) > cfg.SteeringThreshold && f.Brake > cfg.BrakeThreshold
	}
	n := len(zone)
	if n == 0 || !isTrail(zone[n-1]) {
		return 0
	}
	start := n - 1
	for start > 0 && isTrail(zone[start-1]) {
		start--
	}
	return models.WrapDelta(zone[start].LapDistancePct, zone[n-1].LapDistancePct, 1.0)
}

// --- Corner state machine ---------------------------------------------------

type cornerMachine struct {
	cfg   config.AnalysisConfig
	state cornerState
	zone  []models.TelemetryFrame
}

func newCornerMachine(cfg config.AnalysisConfig) *cornerMachine {
	return &cornerMachine{cfg: cfg, state: straight}
}

func (m *cornerMachine) step(f models.TelemetryFrame) (models.CornerMetrics, bool) {
	crossed := math.Abs(f.SteeringRad) > m.cfg.SteeringThreshold
	switch m.state {
	case straight:
		if crossed {
			m.state = cornering
			m.zone = append(m.zone[:0], f)
		}
		return models.CornerMetrics{}, false
	case cornering:
		if crossed {
			m.zone = append(m.zone, f)
			return models.CornerMetrics{}, false
		}
		corner, ok := m.finalize()
		m.state = straight
		m.zone = nil
		return corner, ok
	}
	return models.CornerMetrics{}, false
}

func (m *cornerMachine) flush() (models.CornerMetrics, bool) {
	if m.state != cornering || len(m.zone) == 0 {
		return models.CornerMetrics{}, false
	}
	corner, ok := m.finalize()
	m.state = straight
	m.zone = nil
	return corner, ok
}

func (m *cornerMachine) finalize() (models.CornerMetrics, bool) {
	zone := m.zone
	turnIn := zone[0]
	exit := zone[len(zone)-1]

	duration := exit.SessionTime - turnIn.SessionTime
	if duration < m.cfg.MinCornerDuration.Seconds() {
		return models.CornerMetrics{}, false
	}

	apexIdx := 0
	for i, f := range zone {
		if f.Speed < zone[apexIdx].Speed {
			apexIdx = i
		}
	}
	apex := zone[apexIdx]

	throttleIdx := -1
	streak := 0
	for i := apexIdx + 1; i < len(zone); i++ {
		if zone[i].Throttle > m.cfg.ThrottleThreshold {
			streak++
			if streak == m.cfg.ThrottleApplicationStreak {
				throttleIdx = i - streak + 1
				break
			}
		} else {
			streak = 0
		}
	}
	throttleFrame := exit
	if throttleIdx >= 0 {
		throttleFrame = zone[throttleIdx]
	}

	var maxLateralG, maxSteering float64
	for _, f := range zone {
		if g := math.Abs(f.LateralAccel()); g > maxLateralG {
			maxLateralG = g
		}
		if s := math.Abs(f.SteeringRad); s > maxSteering {
			maxSteering = s
		}
	}

	return models.CornerMetrics{
		TurnInDistancePct:      turnIn.LapDistancePct,
		ApexDistancePct:        apex.LapDistancePct,
		ExitDistancePct:        exit.LapDistancePct,
		ThrottleAppDistancePct: throttleFrame.LapDistancePct,
		TurnInSpeed:            turnIn.Speed,
		ApexSpeed:              apex.Speed,
		ExitSpeed:              exit.Speed,
		ThrottleAppSpeed:       throttleFrame.Speed,
		MaxLateralG:            maxLateralG,
		TimeInCornerS:          duration,
		DistanceInLapPct:       models.WrapDelta(turnIn.LapDistancePct, exit.LapDistancePct, 1.0),
		MaxSteeringRad:         maxSteering,
		SpeedLossMS:            turnIn.Speed - apex.Speed,
		SpeedGainMS:            exit.Speed - apex.Speed,
	}, true
}
