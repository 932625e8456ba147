package producer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trackside/telemetry-core/bus"
	"github.com/trackside/telemetry-core/config"
	"github.com/trackside/telemetry-core/events"
	"github.com/trackside/telemetry-core/models"
	"github.com/trackside/telemetry-core/producer"
)

func newTestBus(t *testing.T) *bus.Bus {
	t.Helper()
	b := bus.New(config.BusConfig{QueueCapacity: 64, Workers: 2, StopGrace: time.Second}, nil, nil)
	b.Start()
	t.Cleanup(func() { b.Stop(context.Background()) })
	return b
}

func TestReplaySourceClampsWithoutLoop(t *testing.T) {
	frames := []models.TelemetryFrame{{LapDistancePct: 0}, {LapDistancePct: 0.5}, {LapDistancePct: 0.9}}
	src := producer.NewReplaySource(frames, 1.0, false)
	var last models.TelemetryFrame
	for i := 0; i < 10; i++ {
		f, err := src.FreezeLatest(context.Background())
		require.NoError(t, err)
		last = f
	}
	require.Equal(t, 0.9, last.LapDistancePct)
}

func TestReplaySourceLoops(t *testing.T) {
	frames := []models.TelemetryFrame{{LapDistancePct: 0}, {LapDistancePct: 0.5}}
	src := producer.NewReplaySource(frames, 1.0, true)
	src.FreezeLatest(context.Background())
	f, _ := src.FreezeLatest(context.Background())
	if f.LapDistancePct != 0 {
		t.Fatalf("expected wrap to first frame, got %v", f.LapDistancePct)
	}
}

func TestProducerPublishesFramesOntoBus(t *testing.T) {
	b := newTestBus(t)
	frames := make([]models.TelemetryFrame, 5)
	for i := range frames {
		frames[i] = models.TelemetryFrame{SessionID: "s1", LapDistancePct: float64(i) / 5}
	}
	src := producer.NewReplaySource(frames, 1.0, true)
	p := producer.New(src, b, nil, nil)

	received := make(chan models.TelemetryFrame, 16)
	if _, err := bus.Subscribe(b, events.Frame, func(hc bus.HandlerContext[models.TelemetryFrame]) error {
		received <- hc.Event
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = p.Run(ctx)

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("expected at least one published frame")
	}
}

type failingSource struct{ calls int }

func (f *failingSource) Connect(context.Context) error { return nil }
func (f *failingSource) IsConnected() bool              { return true }
func (f *failingSource) TargetHz() float64              { return 1000 }
func (f *failingSource) FreezeLatest(context.Context) (models.TelemetryFrame, error) {
	f.calls++
	return models.TelemetryFrame{}, errors.New("transient read failure")
}

func TestProducerTerminatesAfterRetryBudgetExhausted(t *testing.T) {
	b := newTestBus(t)
	src := &failingSource{}
	p := producer.New(src, b, nil, nil)

	terminated := make(chan events.ProducerTerminatedPayload, 1)
	if _, err := bus.Subscribe(b, events.ProducerTerminated, func(hc bus.HandlerContext[events.ProducerTerminatedPayload]) error {
		terminated <- hc.Event
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.Run(ctx)
	if err == nil {
		t.Fatal("expected an error once the retry budget is exhausted")
	}

	select {
	case <-terminated:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a ProducerTerminated event")
	}
}
