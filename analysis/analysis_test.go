package analysis_test

import (
	"math"
	"testing"

	"github.com/trackside/telemetry-core/analysis"
	"github.com/trackside/telemetry-core/config"
	"github.com/trackside/telemetry-core/models"
)

func mkFrame(i int, n int, speed, brake, steering float64) models.TelemetryFrame {
	return models.TelemetryFrame{
		SessionID:      "s1",
		SessionTime:    float64(i) / 60.0,
		LapNumber:      1,
		LapDistancePct: float64(i) / float64(n),
		Speed:          speed,
		Brake:          brake,
		SteeringRad:    steering,
	}
}

func TestAnalyzeLapRejectsShortLaps(t *testing.T) {
	cfg := config.New().Analysis
	_, err := analysis.AnalyzeLap(models.LapTelemetry{Frames: []models.TelemetryFrame{{}}}, cfg)
	if err != models.ErrInsufficientData {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestAnalyzeLapRejectsNonFiniteFrame(t *testing.T) {
	cfg := config.New().Analysis
	frames := []models.TelemetryFrame{
		mkFrame(0, 120, 50, 0, 0),
		{Speed: math.NaN()},
	}
	_, err := analysis.AnalyzeLap(models.LapTelemetry{Frames: frames}, cfg)
	if err != models.ErrInvalidFrame {
		t.Fatalf("expected ErrInvalidFrame, got %v", err)
	}
}

// S1: one braking zone, no trail braking.
func oneBrakingZoneFrames() []models.TelemetryFrame {
	const n = 120
	frames := make([]models.TelemetryFrame, n)
	for i := 0; i < n; i++ {
		speed := 50.0
		brake := 0.0
		if i >= 40 && i <= 70 {
			brake = 0.6
			frac := float64(i-40) / float64(70-40)
			speed = 50 - frac*20
		} else if i > 70 {
			speed = 30
		}
		frames[i] = mkFrame(i, n, speed, brake, 0)
	}
	return frames
}

func TestAnalyzeLapOneBrakingZone(t *testing.T) {
	cfg := config.New().Analysis
	lap := models.LapTelemetry{LapNumber: 1, Frames: oneBrakingZoneFrames()}
	metrics, err := analysis.AnalyzeLap(lap, cfg)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(metrics.Braking) != 1 {
		t.Fatalf("expected 1 braking zone, got %d", len(metrics.Braking))
	}
	z := metrics.Braking[0]
	if math.Abs(z.DurationS-0.5) > 0.02 {
		t.Errorf("duration = %v, want ~0.5", z.DurationS)
	}
	if math.Abs(z.EntrySpeed-50) > 1 {
		t.Errorf("entry speed = %v, want ~50", z.EntrySpeed)
	}
	if math.Abs(z.MinimumSpeed-30) > 1 {
		t.Errorf("minimum speed = %v, want ~30", z.MinimumSpeed)
	}
	if z.PeakBrakePressure != 0.6 {
		t.Errorf("peak brake pressure = %v, want 0.6", z.PeakBrakePressure)
	}
	if z.HasTrailBraking {
		t.Error("expected no trail braking")
	}
}

// S2: trail braking during the tail of the same zone.
func trailBrakingFrames() []models.TelemetryFrame {
	frames := oneBrakingZoneFrames()
	for i := 60; i <= 70; i++ {
		frames[i].SteeringRad = 0.3
	}
	return frames
}

func TestAnalyzeLapTrailBraking(t *testing.T) {
	cfg := config.New().Analysis
	lap := models.LapTelemetry{LapNumber: 1, Frames: trailBrakingFrames()}
	metrics, err := analysis.AnalyzeLap(lap, cfg)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(metrics.Braking) != 1 {
		t.Fatalf("expected 1 braking zone, got %d", len(metrics.Braking))
	}
	z := metrics.Braking[0]
	if !z.HasTrailBraking {
		t.Fatal("expected trail braking to be detected")
	}
	if z.TrailBrakePercentage < 0.3 {
		t.Errorf("trail brake percentage = %v, want >= 0.3", z.TrailBrakePercentage)
	}
}

// S3: two corners and one braking zone.
func twoCornersFrames() []models.TelemetryFrame {
	const n = 300
	frames := make([]models.TelemetryFrame, n)
	dip := func(i, center int) float64 {
		d := i - center
		if d < 0 {
			d = -d
		}
		drop := 20 - d
		if drop < 0 {
			drop = 0
		}
		return 50 - drop
	}
	for i := 0; i < n; i++ {
		speed := 50.0
		steering := 0.0
		brake := 0.0
		switch {
		case i >= 50 && i <= 120:
			steering = 0.3
			speed = dip(i, 85)
		case i >= 180 && i <= 240:
			steering = -0.3
			speed = dip(i, 210)
		}
		if i >= 40 && i <= 60 {
			brake = 0.6
		}
		frames[i] = mkFrame(i, n, speed, brake, steering)
	}
	return frames
}

func TestAnalyzeLapTwoCornersOneBraking(t *testing.T) {
	cfg := config.New().Analysis
	lap := models.LapTelemetry{LapNumber: 1, Frames: twoCornersFrames()}
	metrics, err := analysis.AnalyzeLap(lap, cfg)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(metrics.Braking) != 1 {
		t.Fatalf("expected 1 braking zone, got %d", len(metrics.Braking))
	}
	if len(metrics.Corners) != 2 {
		t.Fatalf("expected 2 corners, got %d", len(metrics.Corners))
	}
	wantApex := []float64{85.0 / 300, 210.0 / 300}
	for i, c := range metrics.Corners {
		if math.Abs(c.ApexDistancePct-wantApex[i]) > 1.0/300 {
			t.Errorf("corner %d apex distance = %v, want ~%v", i, c.ApexDistancePct, wantApex[i])
		}
	}
}

// Invariants from the testable-properties list.
func TestAnalyzeLapInvariants(t *testing.T) {
	cfg := config.New().Analysis
	lap := models.LapTelemetry{LapNumber: 1, Frames: twoCornersFrames()}
	metrics, err := analysis.AnalyzeLap(lap, cfg)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for _, z := range metrics.Braking {
		span := models.WrapDelta(z.EntryDistancePct, z.ExitDistancePct, 1.0)
		if span <= 0 {
			t.Errorf("braking zone span must be positive after wrap normalization, got %v", span)
		}
		if z.MinimumSpeed > z.EntrySpeed {
			t.Errorf("minimum_speed %v > entry_speed %v", z.MinimumSpeed, z.EntrySpeed)
		}
		if z.PeakBrakePressure < cfg.BrakeThreshold || z.PeakBrakePressure > 1 {
			t.Errorf("peak_brake_pressure %v out of [brake_threshold,1]", z.PeakBrakePressure)
		}
	}
	for _, c := range metrics.Corners {
		ti := models.WrapDelta(c.TurnInDistancePct, c.ApexDistancePct, 1.0)
		ae := models.WrapDelta(c.ApexDistancePct, c.ExitDistancePct, 1.0)
		if ti < 0 || ae < 0 {
			t.Errorf("corner distances must be non-decreasing after wrap normalization: turn-in->apex=%v apex->exit=%v", ti, ae)
		}
		if c.ApexSpeed > c.TurnInSpeed {
			t.Errorf("apex_speed %v > turn_in_speed %v", c.ApexSpeed, c.TurnInSpeed)
		}
		if c.ApexSpeed > c.ExitSpeed {
			t.Errorf("apex_speed %v > exit_speed %v", c.ApexSpeed, c.ExitSpeed)
		}
	}
}

func TestAnalyzeLapIsDeterministic(t *testing.T) {
	cfg := config.New().Analysis
	lap := models.LapTelemetry{LapNumber: 1, Frames: twoCornersFrames()}
	a, err := analysis.AnalyzeLap(lap, cfg)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	b, err := analysis.AnalyzeLap(lap, cfg)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(a.Braking) != len(b.Braking) || len(a.Corners) != len(b.Corners) {
		t.Fatalf("non-deterministic zone counts")
	}
	for i := range a.Corners {
		if math.Abs(a.Corners[i].ApexSpeed-b.Corners[i].ApexSpeed) > 1e-9 {
			t.Fatalf("non-deterministic apex speed at corner %d", i)
		}
	}
}
