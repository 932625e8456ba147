package producer

import (
	"context"
	"math"
	"sync"

	"github.com/trackside/telemetry-core/models"
)

// Source is the capability a producer pulls frames from, satisfied by
// either a live simulator binding or an offline replay buffer.
type Source interface {
	// Connect establishes the underlying connection. Replay sources treat
	// this as a no-op.
	Connect(ctx context.Context) error
	IsConnected() bool
	// FreezeLatest advances the source by one tick and returns the frame
	// it has settled on.
	FreezeLatest(ctx context.Context) (models.TelemetryFrame, error)
	// TargetHz reports the rate the source recommends, or 0 if the
	// producer should fall back to its own default.
	TargetHz() float64
}

// FieldReader is implemented by live sources that expose individual scalar
// telemetry channels by name, for callers that need a single field rather
// than a full frame.
type FieldReader interface {
	Read(field string) (float64, bool)
}

// ReplaySource is an offline buffer of pre-read frames played back at
// speedMultiplier times real time, optionally looping.
type ReplaySource struct {
	frames           []models.TelemetryFrame
	speedMultiplier  float64
	loop             bool

	mu     sync.Mutex
	cursor int
}

// NewReplaySource returns a ReplaySource over frames. speedMultiplier
// defaults to 1.0 when <= 0.
func NewReplaySource(frames []models.TelemetryFrame, speedMultiplier float64, loop bool) *ReplaySource {
	if speedMultiplier <= 0 {
		speedMultiplier = 1.0
	}
	return &ReplaySource{frames: frames, speedMultiplier: speedMultiplier, loop: loop}
}

func (r *ReplaySource) Connect(context.Context) error { return nil }
func (r *ReplaySource) IsConnected() bool             { return len(r.frames) > 0 }
func (r *ReplaySource) TargetHz() float64             { return 0 }

// FreezeLatest advances the cursor by ceil(speedMultiplier) frames and
// returns the frame it lands on. At the end of the buffer it wraps to 0 if
// loop is set, otherwise it clamps on the final frame.
func (r *ReplaySource) FreezeLatest(context.Context) (models.TelemetryFrame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.frames) == 0 {
		return models.TelemetryFrame{}, models.ErrInsufficientData
	}

	step := int(math.Ceil(r.speedMultiplier))
	if step < 1 {
		step = 1
	}
	r.cursor += step
	if r.cursor >= len(r.frames) {
		if r.loop {
			r.cursor %= len(r.frames)
		} else {
			r.cursor = len(r.frames) - 1
		}
	}
	return r.frames[r.cursor], nil
}

// LiveSource adapts a simulator binding's connect/read contract to Source.
// readFrameFn is supplied by the caller (e.g. a shared-memory or UDP telemetry
// binding) and must itself be safe to call from the producer's single
// goroutine.
type LiveSource struct {
	connectFn   func(ctx context.Context) error
	connected   func() bool
	readFrameFn func(ctx context.Context) (models.TelemetryFrame, error)
	targetHz    float64
}

// NewLiveSource wires a live binding's three capability functions into a
// Source. targetHz of 0 lets the producer fall back to its own default.
func NewLiveSource(connectFn func(ctx context.Context) error, connected func() bool, readFrameFn func(ctx context.Context) (models.TelemetryFrame, error), targetHz float64) *LiveSource {
	return &LiveSource{connectFn: connectFn, connected: connected, readFrameFn: readFrameFn, targetHz: targetHz}
}

func (l *LiveSource) Connect(ctx context.Context) error { return l.connectFn(ctx) }
func (l *LiveSource) IsConnected() bool                 { return l.connected() }
func (l *LiveSource) TargetHz() float64                 { return l.targetHz }
func (l *LiveSource) FreezeLatest(ctx context.Context) (models.TelemetryFrame, error) {
	return l.readFrameFn(ctx)
}
