package segmenter_test

import (
	"context"
	"testing"
	"time"

	"github.com/trackside/telemetry-core/bus"
	"github.com/trackside/telemetry-core/config"
	"github.com/trackside/telemetry-core/events"
	"github.com/trackside/telemetry-core/models"
	"github.com/trackside/telemetry-core/segmenter"
)

func newTestBus(t *testing.T) *bus.Bus {
	t.Helper()
	b := bus.New(config.BusConfig{QueueCapacity: 64, Workers: 2, StopGrace: time.Second}, nil, nil)
	b.Start()
	t.Cleanup(func() { b.Stop(context.Background()) })
	return b
}

func frame(sessionID string, lapNumber int, sessionTime, distPct float64) models.TelemetryFrame {
	return models.TelemetryFrame{
		SessionID:      sessionID,
		SessionTime:    sessionTime,
		LapNumber:      lapNumber,
		LapDistancePct: distPct,
		Speed:          40,
	}
}

func TestEmitsCompletedLapOnLapNumberChange(t *testing.T) {
	b := newTestBus(t)
	cfg := config.New().Analysis
	seg := segmenter.New(cfg, b, nil)
	if _, err := seg.Attach(); err != nil {
		t.Fatalf("attach: %v", err)
	}

	laps := make(chan models.LapTelemetry, 4)
	if _, err := bus.Subscribe(b, events.Lap, func(hc bus.HandlerContext[models.LapTelemetry]) error {
		laps <- hc.Event
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// The first lap observed is a pit-exit partial and is discarded (see
	// TestDiscardsPitExitPartial), so a lap-0 frame comes first. Lap 1 then
	// starts with an empty buffer; lap 2 begins and should flush lap 1's 3
	// frames.
	if err := bus.PublishBlocking(context.Background(), b, events.Frame, frame("s1", 0, -1, 0.9)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for i, pct := range []float64{0.2, 0.5, 0.8} {
		if err := bus.PublishBlocking(context.Background(), b, events.Frame, frame("s1", 1, float64(i), pct)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if err := bus.PublishBlocking(context.Background(), b, events.Frame, frame("s1", 2, 3.0, 0.01)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case lap := <-laps:
		if lap.LapNumber != 1 || len(lap.Frames) != 3 {
			t.Fatalf("unexpected lap: number=%d frames=%d", lap.LapNumber, len(lap.Frames))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emitted lap")
	}
}

func TestDiscardsPitExitPartial(t *testing.T) {
	b := newTestBus(t)
	cfg := config.New().Analysis
	seg := segmenter.New(cfg, b, nil)
	if _, err := seg.Attach(); err != nil {
		t.Fatalf("attach: %v", err)
	}

	laps := make(chan models.LapTelemetry, 4)
	if _, err := bus.Subscribe(b, events.Lap, func(hc bus.HandlerContext[models.LapTelemetry]) error {
		laps <- hc.Event
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// First observed lap starts mid-track (leaving the pits) at 0.80 and
	// reaches 0.95 before the lap number increments.
	if err := bus.PublishBlocking(context.Background(), b, events.Frame, frame("s1", 1, 0, 0.80)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.PublishBlocking(context.Background(), b, events.Frame, frame("s1", 1, 1, 0.95)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.PublishBlocking(context.Background(), b, events.Frame, frame("s1", 2, 2, 0.01)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// Complete lap 2 so something is emitted to synchronize on.
	if err := bus.PublishBlocking(context.Background(), b, events.Frame, frame("s1", 3, 3, 0.01)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case lap := <-laps:
		if lap.LapNumber != 2 {
			t.Fatalf("expected the pit-exit partial to be discarded, got lap %d emitted first", lap.LapNumber)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emitted lap")
	}

	select {
	case extra := <-laps:
		t.Fatalf("expected only one emitted lap, got a second: %+v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}
