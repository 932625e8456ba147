// Package models defines the value types that flow through the telemetry
// analysis core: frames, sessions, laps, and the derived metric and
// comparison records produced by the analysis packages.
package models

import (
	"math"
	"time"
)

// TireState captures the per-corner condition of a single tire.
type TireState struct {
	PressureKPa float64
	TempCelsius float64
	WearPct     float64
}

// WheelBrakePressure holds per-wheel brake line pressure in [0,1].
type WheelBrakePressure struct {
	FrontLeft  float64
	FrontRight float64
	RearLeft   float64
	RearRight  float64
}

// SurfaceCode enumerates the track surface under the car.
type SurfaceCode int

const (
	SurfaceUnknown SurfaceCode = iota
	SurfaceTarmac
	SurfaceKerb
	SurfaceGrass
	SurfaceGravel
	SurfaceSand
)

// TelemetryFrame is one ~60Hz snapshot of vehicle and session state.
type TelemetryFrame struct {
	SessionID      string
	Timestamp      time.Time
	SessionTime    float64 // seconds since session start
	LapNumber      int
	LapDistancePct float64 // normalized [0,1)
	LapDistanceM   float64

	Speed      float64 // m/s
	EngineRPM  float64
	Gear       int // -1 reverse, 0 neutral
	Throttle   float64
	Brake      float64
	Clutch     float64
	SteeringRad float64

	AccelX, AccelY, AccelZ float64 // m/s^2, car frame
	YawRate, PitchRate, RollRate float64 // rad/s

	VelocityX, VelocityY, VelocityZ float64 // world frame m/s
	Yaw, Pitch, Roll                float64 // rad

	Latitude, Longitude, AltitudeM float64

	Tires  [4]TireState
	Brakes WheelBrakePressure

	Surface   SurfaceCode
	OnPitRoad bool
	Flags     uint32
}

// LongitudinalAccel returns the forward/backward component of acceleration,
// used by the braking state machine for deceleration figures.
func (f TelemetryFrame) LongitudinalAccel() float64 { return f.AccelX }

// LateralAccel returns the side-to-side component of acceleration, used by
// the corner state machine for peak-g figures.
func (f TelemetryFrame) LateralAccel() float64 { return f.AccelY }

// IsFinite reports whether every numeric field that participates in analysis
// holds a finite value. Non-finite frames must be rejected before they enter
// the pipeline (see ErrInvalidFrame).
func (f TelemetryFrame) IsFinite() bool {
	vals := []float64{
		f.SessionTime, f.LapDistancePct, f.LapDistanceM, f.Speed, f.EngineRPM,
		f.Throttle, f.Brake, f.Clutch, f.SteeringRad,
		f.AccelX, f.AccelY, f.AccelZ, f.YawRate, f.PitchRate, f.RollRate,
		f.VelocityX, f.VelocityY, f.VelocityZ, f.Yaw, f.Pitch, f.Roll,
		f.Latitude, f.Longitude, f.AltitudeM,
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	for _, t := range f.Tires {
		if math.IsNaN(t.PressureKPa) || math.IsInf(t.PressureKPa, 0) {
			return false
		}
	}
	return true
}

// WrapDelta computes end-start with modular normalization over the given
// range: a negative raw delta is assumed to have crossed the start/finish
// line and the range is added back in. Applies uniformly to both percent
// ([0,1)) and absolute-meter distance deltas, per the wrap-around rule.
func WrapDelta(start, end, rangeSize float64) float64 {
	d := end - start
	if d < 0 {
		d += rangeSize
	}
	return d
}
