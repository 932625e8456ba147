// Package producer pulls telemetry frames from a live or replay source at a
// target rate and publishes them onto the event bus. It runs on a single
// goroutine; transient source errors are retried with exponential backoff
// before the producer gives up and announces its own termination.
package producer

import (
	"context"
	"time"

	"github.com/trackside/telemetry-core/bus"
	"github.com/trackside/telemetry-core/events"
	"github.com/trackside/telemetry-core/models"
	"github.com/trackside/telemetry-core/telemetry/logging"
	"github.com/trackside/telemetry-core/telemetry/metrics"
)

const (
	defaultTickHz  = 60.0
	maxRetries     = 5
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// Producer drives Source.FreezeLatest on a ticker and publishes each frame.
type Producer struct {
	source Source
	bus    *bus.Bus
	logger logging.Logger
	frames metrics.Counter
	errors metrics.Counter
}

// New returns a Producer reading from source and publishing onto b.
func New(source Source, b *bus.Bus, logger logging.Logger, provider metrics.Provider) *Producer {
	if logger == nil {
		logger = logging.New(nil)
	}
	if provider == nil {
		provider = metrics.NewNoopProvider()
	}
	return &Producer{
		source: source,
		bus:    b,
		logger: logger,
		frames: provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
			Namespace: "telemetry", Subsystem: "producer", Name: "frames_total", Help: "frames published by the producer",
		}}),
		errors: provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
			Namespace: "telemetry", Subsystem: "producer", Name: "errors_total", Help: "transient source errors encountered",
		}}),
	}
}

// Run connects the source and ticks until ctx is cancelled or the source
// exhausts its retry budget, at which point it publishes a
// ProducerTerminated event and returns the terminal error (nil on clean
// cancellation).
func (p *Producer) Run(ctx context.Context) error {
	if err := p.connectWithRetry(ctx); err != nil {
		p.terminate(ctx, "connect failed", err)
		return err
	}

	interval := p.tickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			p.terminate(ctx, "context cancelled", ctx.Err())
			return nil
		case <-ticker.C:
			frame, err := p.source.FreezeLatest(ctx)
			if err != nil {
				attempt++
				p.errors.Inc(1)
				if attempt > maxRetries {
					p.terminate(ctx, "source exhausted retry budget", err)
					return err
				}
				if waitErr := p.sleepBackoff(ctx, attempt); waitErr != nil {
					p.terminate(ctx, "context cancelled during backoff", waitErr)
					return nil
				}
				continue
			}
			attempt = 0
			p.publish(ctx, frame)
		}
	}
}

func (p *Producer) connectWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := p.source.Connect(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if waitErr := p.sleepBackoff(ctx, attempt); waitErr != nil {
			return waitErr
		}
	}
	return lastErr
}

func (p *Producer) sleepBackoff(ctx context.Context, attempt int) error {
	backoff := initialBackoff << uint(attempt-1)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	select {
	case <-time.After(backoff):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Producer) publish(ctx context.Context, frame models.TelemetryFrame) {
	if !frame.IsFinite() {
		p.logger.WarnCtx(ctx, "producer: dropping non-finite frame", "session_id", frame.SessionID, "lap_number", frame.LapNumber)
		return
	}
	if err := bus.ThreadSafePublish(ctx, p.bus, events.Frame, frame); err != nil {
		p.logger.ErrorCtx(ctx, "producer: failed to publish frame", "error", err)
		return
	}
	p.frames.Inc(1)
}

func (p *Producer) terminate(ctx context.Context, reason string, err error) {
	p.logger.WarnCtx(ctx, "producer: terminating", "reason", reason, "error", err)
	payload := events.ProducerTerminatedPayload{Reason: reason, Err: err}
	if pubErr := bus.ThreadSafePublish(ctx, p.bus, events.ProducerTerminated, payload); pubErr != nil {
		p.logger.ErrorCtx(ctx, "producer: failed to publish termination event", "error", pubErr)
	}
}

func (p *Producer) tickInterval() time.Duration {
	hz := p.source.TargetHz()
	if hz <= 0 {
		hz = defaultTickHz
	}
	return time.Duration(float64(time.Second) / hz)
}
