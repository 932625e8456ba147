// Package engine composes the bus, session registry, lap segmenter, and
// standard handlers behind a single facade, and re-exposes the core's pure
// analysis functions as package-level entry points.
package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/trackside/telemetry-core/analysis"
	"github.com/trackside/telemetry-core/boundary"
	"github.com/trackside/telemetry-core/bus"
	"github.com/trackside/telemetry-core/compare"
	"github.com/trackside/telemetry-core/config"
	"github.com/trackside/telemetry-core/handlers"
	"github.com/trackside/telemetry-core/models"
	"github.com/trackside/telemetry-core/producer"
	"github.com/trackside/telemetry-core/registry"
	"github.com/trackside/telemetry-core/segmenter"
	"github.com/trackside/telemetry-core/telemetry/logging"
	"github.com/trackside/telemetry-core/telemetry/metrics"
)

// Engine wires together one bus instance and the standard subscribers that
// turn raw frames into completed laps and lap metrics. A Producer is
// attached separately via RunProducer since its Source varies by
// deployment (live binding vs. replay file).
type Engine struct {
	cfg      config.Config
	logger   logging.Logger
	provider metrics.Provider

	uploadSink handlers.UploadSink
	logSampleN int

	Bus        *bus.Bus
	Registry   *registry.Registry
	Segmenter  *segmenter.Segmenter
	Metrics    *handlers.MetricsExtractor
	LogHandler *handlers.LogHandler
	Uploader   *handlers.Uploader

	subs []bus.Subscription

	grp    *errgroup.Group
	cancel context.CancelFunc
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the Engine's logger. Every subsystem constructed by
// New uses this logger instead of the default.
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetricsProvider overrides the Engine's metrics.Provider. Every
// subsystem that emits metrics (the bus, the producer attached via
// RunProducer) reports through this provider instead of the no-op default.
func WithMetricsProvider(p metrics.Provider) Option {
	return func(e *Engine) { e.provider = p }
}

// WithPrometheusMetrics wires a real Prometheus-backed provider into the
// Engine, so bus and producer counters register against opts.Registry (or a
// private registry if nil, reachable via the returned provider's
// MetricsHandler). This is the option a deployment reaches for to expose
// /metrics rather than discarding observations through the no-op provider.
func WithPrometheusMetrics(opts metrics.PrometheusProviderOptions) Option {
	return func(e *Engine) { e.provider = metrics.NewPrometheusProvider(opts) }
}

// WithUploadSink attaches an Uploader that forwards completed laps and
// metrics to sink.
func WithUploadSink(sink handlers.UploadSink) Option {
	return func(e *Engine) { e.uploadSink = sink }
}

// WithFrameLogSampling overrides the LogHandler's sampling rate (every Nth
// frame; the default is every 60th).
func WithFrameLogSampling(everyN int) Option {
	return func(e *Engine) { e.logSampleN = everyN }
}

// New builds an Engine from cfg. The bus is constructed but not started;
// call Start to begin dispatching. Options are applied before any subsystem
// is constructed, so WithLogger and WithMetricsProvider reach the bus,
// segmenter, and every handler.
func New(cfg config.Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, logSampleN: 60}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = logging.New(nil)
	}
	if e.provider == nil {
		e.provider = metrics.NewNoopProvider()
	}

	e.Bus = bus.New(cfg.Bus, e.provider, e.logger)
	e.Registry = registry.New(e.logger)
	e.Segmenter = segmenter.New(cfg.Analysis, e.Bus, e.logger)
	e.Metrics = handlers.NewMetricsExtractor(cfg.Analysis, e.Bus, e.logger)
	e.LogHandler = handlers.NewLogHandler(e.Bus, e.logger, e.logSampleN)
	if e.uploadSink != nil {
		e.Uploader = handlers.NewUploader(e.Bus, e.logger, e.uploadSink)
	}
	return e
}

// Start launches the bus dispatcher and attaches the standard subscribers
// (segmenter, metrics extractor, log handler, and uploader if configured).
func (e *Engine) Start(context.Context) error {
	e.Bus.Start()

	sub, err := e.Segmenter.Attach()
	if err != nil {
		return fmt.Errorf("engine: attach segmenter: %w", err)
	}
	e.subs = append(e.subs, sub)

	sub, err = e.Metrics.Attach()
	if err != nil {
		return fmt.Errorf("engine: attach metrics extractor: %w", err)
	}
	e.subs = append(e.subs, sub)

	sub, err = e.LogHandler.Attach()
	if err != nil {
		return fmt.Errorf("engine: attach log handler: %w", err)
	}
	e.subs = append(e.subs, sub)

	if e.Uploader != nil {
		uploadSubs, err := e.Uploader.Attach()
		if err != nil {
			return fmt.Errorf("engine: attach uploader: %w", err)
		}
		e.subs = append(e.subs, uploadSubs...)
	}
	return nil
}

// RunProducer starts src's producer loop on its own goroutine, tracked by
// an internal errgroup so Stop can wait for it to exit cleanly. At most one
// producer is tracked at a time; call RunProducer again only after Stop.
func (e *Engine) RunProducer(ctx context.Context, src producer.Source) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	grp, gctx := errgroup.WithContext(runCtx)
	e.grp = grp

	p := producer.New(src, e.Bus, e.logger, e.provider)
	grp.Go(func() error { return p.Run(gctx) })
}

// Stop cancels any running producer, waits for it to exit, detaches the
// standard handlers, and stops the bus (waiting up to cfg.Bus.StopGrace for
// running handlers; events still queued are not delivered).
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	if e.grp != nil {
		_ = e.grp.Wait()
	}
	for _, s := range e.subs {
		_ = s.Close()
	}
	e.subs = nil
	return e.Bus.Stop(ctx)
}

// The functions below are the pure-function surface the core exposes
// independently of any running Engine: each is safe to call directly
// against in-memory data with no bus involved.

// AnalyzeLap runs the single-pass metrics extractor over lap.
func AnalyzeLap(lap models.LapTelemetry, cfg config.AnalysisConfig) (models.LapMetrics, error) {
	return analysis.AnalyzeLap(lap, cfg)
}

// AugmentWithLateralPosition computes each frame's signed lateral position
// against boundary in one pass.
func AugmentWithLateralPosition(frames []models.TelemetryFrame, boundaryData *models.TrackBoundary) []models.AugmentedTelemetryFrame {
	return boundary.AugmentLap(boundaryData, frames)
}

// CompareLaps matches braking zones and corners between baseline and
// comparison and computes per-entity and lap-level deltas.
func CompareLaps(baseline, comparison models.LapMetrics, cfg config.AnalysisConfig) models.LapComparison {
	return compare.CompareLaps(baseline, comparison, cfg)
}

// BuildBoundary resamples two demarcation laps onto a gridSize-point track
// boundary.
func BuildBoundary(trackID int32, trackConfig string, left, right []models.TelemetryFrame, gridSize int) (models.TrackBoundary, error) {
	return boundary.BuildBoundary(trackID, trackConfig, left, right, gridSize)
}
