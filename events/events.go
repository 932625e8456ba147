// Package events declares the event types carried on the bus: raw
// telemetry frames, completed laps, lap metrics, and producer lifecycle
// notifications. Each is a distinct bus.EventType so subscribers only ever
// see the payload shape they registered for.
package events

import (
	"github.com/trackside/telemetry-core/bus"
	"github.com/trackside/telemetry-core/models"
)

// MetricsPayload pairs a lap's identity with its extracted metrics so a
// subscriber doesn't need a separate lookup to attribute the metrics.
type MetricsPayload struct {
	LapID   string
	Metrics models.LapMetrics
}

// ProducerTerminatedPayload is published exactly once by a producer
// adapter when its run ends: it gave up retrying its source, could not
// connect, or its context was cancelled. Reason says which.
type ProducerTerminatedPayload struct {
	SessionID string
	Reason    string
	Err       error
}

var (
	// Frame carries one raw telemetry sample as it arrives from a producer.
	Frame = bus.NewEventType[models.TelemetryFrame]("telemetry.frame")

	// Lap carries a completed lap's full frame buffer, emitted by the lap
	// segmenter when it detects a lap boundary.
	Lap = bus.NewEventType[models.LapTelemetry]("telemetry.lap")

	// Metrics carries one lap's extracted braking/corner metrics, emitted
	// by the metrics extractor after it consumes a Lap event.
	Metrics = bus.NewEventType[MetricsPayload]("telemetry.lap_metrics")

	// ProducerTerminated signals that a producer adapter has stopped for
	// good and will publish no further frames.
	ProducerTerminated = bus.NewEventType[ProducerTerminatedPayload]("telemetry.producer_terminated")
)
