// Package handlers wires the pure analysis functions into bus subscribers:
// small pieces of glue that read one event type, do their work, and
// (optionally) publish a follow-on event.
package handlers

import (
	"github.com/trackside/telemetry-core/analysis"
	"github.com/trackside/telemetry-core/bus"
	"github.com/trackside/telemetry-core/config"
	"github.com/trackside/telemetry-core/events"
	"github.com/trackside/telemetry-core/models"
	"github.com/trackside/telemetry-core/telemetry/logging"
)

// MetricsExtractor subscribes to completed laps, runs the single-pass
// analyzer, and publishes the resulting metrics.
type MetricsExtractor struct {
	cfg    config.AnalysisConfig
	b      *bus.Bus
	logger logging.Logger
}

// NewMetricsExtractor returns a MetricsExtractor wired to b.
func NewMetricsExtractor(cfg config.AnalysisConfig, b *bus.Bus, logger logging.Logger) *MetricsExtractor {
	if logger == nil {
		logger = logging.New(nil)
	}
	return &MetricsExtractor{cfg: cfg, b: b, logger: logger}
}

// Attach subscribes the handler to lap events on its bus.
func (m *MetricsExtractor) Attach() (bus.Subscription, error) {
	return bus.Subscribe(m.b, events.Lap, m.handleLap)
}

func (m *MetricsExtractor) handleLap(hc bus.HandlerContext[models.LapTelemetry]) error {
	lap := hc.Event
	metrics, err := analysis.AnalyzeLap(lap, m.cfg)
	if err != nil {
		m.logger.WarnCtx(hc.Ctx, "metrics extractor: skipping lap", "lap_id", lap.LapID, "error", err)
		return nil
	}
	return bus.Publish(m.b, events.Metrics, events.MetricsPayload{LapID: lap.LapID, Metrics: metrics})
}

// LogHandler samples every Kth frame for diagnostic logging so a busy
// session doesn't flood the log at the frame rate.
type LogHandler struct {
	b           *bus.Bus
	logger      logging.Logger
	sampleEvery int

	seen int
}

// NewLogHandler returns a LogHandler that logs every sampleEvery-th frame
// (a sampleEvery <= 0 logs every frame).
func NewLogHandler(b *bus.Bus, logger logging.Logger, sampleEvery int) *LogHandler {
	if logger == nil {
		logger = logging.New(nil)
	}
	if sampleEvery <= 0 {
		sampleEvery = 1
	}
	return &LogHandler{b: b, logger: logger, sampleEvery: sampleEvery}
}

// Attach subscribes the handler to frame events on its bus.
func (l *LogHandler) Attach() (bus.Subscription, error) {
	return bus.Subscribe(l.b, events.Frame, l.handleFrame)
}

func (l *LogHandler) handleFrame(hc bus.HandlerContext[models.TelemetryFrame]) error {
	l.seen++
	if l.seen%l.sampleEvery != 0 {
		return nil
	}
	f := hc.Event
	l.logger.InfoCtx(hc.Ctx, "frame sample",
		"session_id", f.SessionID, "lap_number", f.LapNumber,
		"lap_distance_pct", f.LapDistancePct, "speed", f.Speed)
	return nil
}

// UploadSink is the external collaborator a deployment supplies to ship
// completed laps and metrics somewhere outside the process (a storage
// backend, a message queue, a web API). Not specified beyond this contract.
type UploadSink interface {
	UploadLap(lap models.LapTelemetry) error
	UploadMetrics(payload events.MetricsPayload) error
}

// Uploader forwards completed laps and their metrics to an UploadSink. It
// subscribes to both event types independently; a sink failure on one
// event is logged and does not block the other.
type Uploader struct {
	b      *bus.Bus
	logger logging.Logger
	sink   UploadSink
}

// NewUploader returns an Uploader that forwards lap and metrics events to
// sink.
func NewUploader(b *bus.Bus, logger logging.Logger, sink UploadSink) *Uploader {
	if logger == nil {
		logger = logging.New(nil)
	}
	return &Uploader{b: b, logger: logger, sink: sink}
}

// Attach subscribes the uploader to lap and metrics events on its bus.
func (u *Uploader) Attach() ([]bus.Subscription, error) {
	lapSub, err := bus.Subscribe(u.b, events.Lap, u.handleLap)
	if err != nil {
		return nil, err
	}
	metricsSub, err := bus.Subscribe(u.b, events.Metrics, u.handleMetrics)
	if err != nil {
		return nil, err
	}
	return []bus.Subscription{lapSub, metricsSub}, nil
}

func (u *Uploader) handleLap(hc bus.HandlerContext[models.LapTelemetry]) error {
	if err := u.sink.UploadLap(hc.Event); err != nil {
		u.logger.ErrorCtx(hc.Ctx, "uploader: lap upload failed", "lap_id", hc.Event.LapID, "error", err)
	}
	return nil
}

func (u *Uploader) handleMetrics(hc bus.HandlerContext[events.MetricsPayload]) error {
	if err := u.sink.UploadMetrics(hc.Event); err != nil {
		u.logger.ErrorCtx(hc.Ctx, "uploader: metrics upload failed", "lap_id", hc.Event.LapID, "error", err)
	}
	return nil
}
