// Package config provides a unified, validated configuration surface for
// every tunable named in the design: analysis thresholds, matching
// tolerances, and event-bus sizing. It follows the same
// compose-then-apply-defaults-then-validate shape the rest of the engine
// uses for its own policies.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// AnalysisConfig holds the enumerated thresholds the metrics extractor and
// lap segmenter use to detect braking zones, corners, and lap boundaries.
type AnalysisConfig struct {
	BrakeThreshold       float64       `yaml:"brake_threshold" json:"brake_threshold"`
	SteeringThreshold    float64       `yaml:"steering_threshold" json:"steering_threshold"`
	ThrottleThreshold    float64       `yaml:"throttle_threshold" json:"throttle_threshold"`
	MinCornerDuration    time.Duration `yaml:"min_corner_duration" json:"min_corner_duration"`
	MinBrakingDuration   time.Duration `yaml:"min_braking_duration" json:"min_braking_duration"`
	LapCompletionThreshold float64     `yaml:"lap_completion_threshold" json:"lap_completion_threshold"`
	DistanceMatchThreshold float64     `yaml:"distance_match_threshold" json:"distance_match_threshold"`

	// TrailBrakePercentageThreshold is the minimum trail-brake percentage
	// for HasTrailBraking to be set (§4.B: "> 0.10").
	TrailBrakePercentageThreshold float64 `yaml:"trail_brake_percentage_threshold" json:"trail_brake_percentage_threshold"`

	// ThrottleApplicationStreak is the number of consecutive frames with
	// throttle above ThrottleThreshold required to mark the
	// throttle-application point.
	ThrottleApplicationStreak int `yaml:"throttle_application_streak" json:"throttle_application_streak"`
}

// BusConfig holds event-bus sizing and shutdown behavior.
type BusConfig struct {
	QueueCapacity int           `yaml:"bus_queue_max" json:"bus_queue_max"`
	Workers       int           `yaml:"bus_workers" json:"bus_workers"`
	StopGrace     time.Duration `yaml:"stop_grace" json:"stop_grace"`
}

// Config is the unified configuration surface for the telemetry core.
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis" json:"analysis"`
	Bus      BusConfig      `yaml:"bus" json:"bus"`

	Version     string    `yaml:"version" json:"version"`
	Environment string    `yaml:"environment" json:"environment"`
}

// New returns a Config with every field defaulted per §6's configuration
// table.
func New() *Config {
	c := &Config{Version: "1.0.0", Environment: "development"}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero-valued fields with the documented defaults. It is
// safe to call repeatedly; non-zero fields are left untouched.
func (c *Config) ApplyDefaults() {
	if c == nil {
		return
	}
	a := &c.Analysis
	if a.BrakeThreshold == 0 {
		a.BrakeThreshold = 0.05
	}
	if a.SteeringThreshold == 0 {
		a.SteeringThreshold = 0.15
	}
	if a.ThrottleThreshold == 0 {
		a.ThrottleThreshold = 0.05
	}
	if a.MinCornerDuration == 0 {
		a.MinCornerDuration = 300 * time.Millisecond
	}
	if a.MinBrakingDuration == 0 {
		a.MinBrakingDuration = 100 * time.Millisecond
	}
	if a.LapCompletionThreshold == 0 {
		a.LapCompletionThreshold = 0.95
	}
	if a.DistanceMatchThreshold == 0 {
		a.DistanceMatchThreshold = 0.10
	}
	if a.TrailBrakePercentageThreshold == 0 {
		a.TrailBrakePercentageThreshold = 0.10
	}
	if a.ThrottleApplicationStreak == 0 {
		a.ThrottleApplicationStreak = 3
	}

	b := &c.Bus
	if b.QueueCapacity == 0 {
		b.QueueCapacity = 1000
	}
	if b.Workers == 0 {
		b.Workers = runtime.NumCPU()
	}
	if b.StopGrace == 0 {
		b.StopGrace = 5 * time.Second
	}
}

// Validate performs comprehensive validation of the unified configuration.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: configuration cannot be nil")
	}
	if err := c.validateAnalysis(); err != nil {
		return fmt.Errorf("config: analysis validation failed: %w", err)
	}
	if err := c.validateBus(); err != nil {
		return fmt.Errorf("config: bus validation failed: %w", err)
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	a := c.Analysis
	if a.BrakeThreshold < 0 || a.BrakeThreshold > 1 {
		return fmt.Errorf("brake_threshold must be in [0,1]: %v", a.BrakeThreshold)
	}
	if a.SteeringThreshold < 0 {
		return fmt.Errorf("steering_threshold cannot be negative: %v", a.SteeringThreshold)
	}
	if a.ThrottleThreshold < 0 || a.ThrottleThreshold > 1 {
		return fmt.Errorf("throttle_threshold must be in [0,1]: %v", a.ThrottleThreshold)
	}
	if a.MinCornerDuration < 0 {
		return fmt.Errorf("min_corner_duration cannot be negative: %v", a.MinCornerDuration)
	}
	if a.MinBrakingDuration < 0 {
		return fmt.Errorf("min_braking_duration cannot be negative: %v", a.MinBrakingDuration)
	}
	if a.LapCompletionThreshold <= 0 || a.LapCompletionThreshold > 1 {
		return fmt.Errorf("lap_completion_threshold must be in (0,1]: %v", a.LapCompletionThreshold)
	}
	if a.DistanceMatchThreshold <= 0 || a.DistanceMatchThreshold > 1 {
		return fmt.Errorf("distance_match_threshold must be in (0,1]: %v", a.DistanceMatchThreshold)
	}
	if a.ThrottleApplicationStreak <= 0 {
		return fmt.Errorf("throttle_application_streak must be positive: %d", a.ThrottleApplicationStreak)
	}
	return nil
}

func (c *Config) validateBus() error {
	b := c.Bus
	if b.QueueCapacity <= 0 {
		return fmt.Errorf("bus_queue_max must be positive: %d", b.QueueCapacity)
	}
	if b.Workers <= 0 {
		return fmt.Errorf("bus_workers must be positive: %d", b.Workers)
	}
	if b.StopGrace < 0 {
		return fmt.Errorf("stop_grace cannot be negative: %v", b.StopGrace)
	}
	return nil
}
