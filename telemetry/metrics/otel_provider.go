package metrics

// NewOTelProvider implements the Provider contract on top of an OpenTelemetry
// MeterProvider, as an alternate backend to PrometheusProvider for
// deployments that already export metrics via an OTEL collector. Gauges
// simulate Set semantics via delta application to an UpDownCounter, since
// OTEL has no native "set to absolute value" instrument.

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelProviderOptions configures an OTel-backed Provider.
type OTelProviderOptions struct {
	// ServiceName is used as the name of the Meter the instruments are
	// created on.
	ServiceName string
}

// NewOTelProvider returns a metrics.Provider backed by an OTEL
// MeterProvider. The MeterProvider is created with no reader or exporter
// and is not exposed to the caller, so recorded measurements are not
// exported anywhere.
func NewOTelProvider(opts OTelProviderOptions) Provider {
	name := opts.ServiceName
	if name == "" {
		name = "telemetry-core"
	}
	mp := sdkmetric.NewMeterProvider()
	return &otelProvider{mp: mp, meter: mp.Meter(name)}
}

type otelProvider struct {
	mp    *sdkmetric.MeterProvider
	meter metric.Meter
}

func (p *otelProvider) NewCounter(opts CounterOpts) Counter {
	name := buildOTelName(opts.CommonOpts)
	inst, err := p.meter.Float64Counter(name, metric.WithDescription(opts.Help))
	if err != nil {
		return noopCounter{}
	}
	return &otelCounter{c: inst, labelKeys: opts.Labels}
}

func (p *otelProvider) NewGauge(opts GaugeOpts) Gauge {
	name := buildOTelName(opts.CommonOpts)
	inst, err := p.meter.Float64UpDownCounter(name, metric.WithDescription(opts.Help))
	if err != nil {
		return noopGauge{}
	}
	return &otelGauge{g: inst, labelKeys: opts.Labels}
}

func (p *otelProvider) NewHistogram(opts HistogramOpts) Histogram {
	name := buildOTelName(opts.CommonOpts)
	inst, err := p.meter.Float64Histogram(name, metric.WithDescription(opts.Help))
	if err != nil {
		return noopHistogram{}
	}
	return &otelHistogram{h: inst, labelKeys: opts.Labels}
}

func (p *otelProvider) NewTimer(h HistogramOpts) func() Timer {
	hist := p.NewHistogram(h)
	return func() Timer { return &otelTimer{h: hist, start: time.Now()} }
}

func (p *otelProvider) Health(context.Context) error { return nil }

// buildOTelName composes namespace/subsystem/name using '.' separators,
// the OTEL instrument-naming convention.
func buildOTelName(c CommonOpts) string {
	parts := make([]string, 0, 3)
	if c.Namespace != "" {
		parts = append(parts, c.Namespace)
	}
	if c.Subsystem != "" {
		parts = append(parts, c.Subsystem)
	}
	if c.Name != "" {
		parts = append(parts, c.Name)
	}
	name := ""
	for i, p := range parts {
		if i > 0 {
			name += "."
		}
		name += p
	}
	return name
}

type otelCounter struct {
	c         metric.Float64Counter
	labelKeys []string
}

func (c *otelCounter) Inc(delta float64, labels ...string) {
	if delta <= 0 {
		return
	}
	c.c.Add(context.Background(), delta, withAttributes(c.labelKeys, labels)...)
}

type otelGauge struct {
	g         metric.Float64UpDownCounter
	labelKeys []string

	mu   sync.Mutex
	last float64 // most recently observed absolute value, shared across
	// all label combinations — matching this core's only labeled-gauge
	// usage today: none — queue_depth is the sole gauge and is unlabeled.
}

// Set expresses an absolute value as a delta against the UpDownCounter,
// since OTEL counters have no native "set" operation.
func (g *otelGauge) Set(v float64, labels ...string) {
	g.mu.Lock()
	diff := v - g.last
	g.last = v
	g.mu.Unlock()
	if diff == 0 {
		return
	}
	g.g.Add(context.Background(), diff, withAttributes(g.labelKeys, labels)...)
}
func (g *otelGauge) Add(delta float64, labels ...string) {
	if delta == 0 {
		return
	}
	g.mu.Lock()
	g.last += delta
	g.mu.Unlock()
	g.g.Add(context.Background(), delta, withAttributes(g.labelKeys, labels)...)
}

type otelHistogram struct {
	h         metric.Float64Histogram
	labelKeys []string
}

func (h *otelHistogram) Observe(value float64, labels ...string) {
	h.h.Record(context.Background(), value, withAttributes(h.labelKeys, labels)...)
}

type otelTimer struct {
	h     Histogram
	start time.Time
}

func (t *otelTimer) ObserveDuration(labels ...string) {
	t.h.Observe(time.Since(t.start).Seconds(), labels...)
}

// withAttributes zips parallel key/value slices into OTEL measurement
// options, or none if either side is empty.
func withAttributes(keys, values []string) []metric.MeasurementOption {
	n := len(keys)
	if len(values) < n {
		n = len(values)
	}
	if n == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, n)
	for i := 0; i < n; i++ {
		attrs[i] = attribute.String(keys[i], values[i])
	}
	return []metric.MeasurementOption{metric.WithAttributes(attrs...)}
}
