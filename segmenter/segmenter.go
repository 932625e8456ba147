// Package segmenter implements the lap segmentation state machine: it
// consumes telemetry frames in session-time order and emits completed lap
// sequences, discarding the partial lap a driver leaves on exiting the
// pits.
package segmenter

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/trackside/telemetry-core/bus"
	"github.com/trackside/telemetry-core/config"
	"github.com/trackside/telemetry-core/events"
	"github.com/trackside/telemetry-core/models"
	"github.com/trackside/telemetry-core/telemetry/logging"
)

// Segmenter buffers frames for the session it is currently tracking and
// emits a models.LapTelemetry each time it detects a lap-number change. It
// subscribes to exactly one event type, so it is totally ordered on the
// frames it sees.
type Segmenter struct {
	cfg    config.AnalysisConfig
	b      *bus.Bus
	logger logging.Logger

	mu               sync.Mutex
	currentLapNumber *int
	buffer           []models.TelemetryFrame
	lastSessionID    string

	// pendingDiscard is set when the buffer currently accumulating belongs
	// to a pit-exit partial (the very first lap observed, entered mid-lap
	// distance). It is cleared, and the buffer dropped rather than
	// emitted, the next time a lap-number transition occurs.
	pendingDiscard bool
}

// New returns a Segmenter wired to publish Lap events on b.
func New(cfg config.AnalysisConfig, b *bus.Bus, logger logging.Logger) *Segmenter {
	if logger == nil {
		logger = logging.New(nil)
	}
	return &Segmenter{cfg: cfg, b: b, logger: logger}
}

// Attach subscribes the segmenter to frame events on its bus.
func (s *Segmenter) Attach() (bus.Subscription, error) {
	return bus.Subscribe(s.b, events.Frame, s.handleFrame)
}

func (s *Segmenter) handleFrame(hc bus.HandlerContext[models.TelemetryFrame]) error {
	f := hc.Event
	if !f.IsFinite() {
		s.logger.WarnCtx(hc.Ctx, "segmenter: dropping non-finite frame", "session_id", f.SessionID, "lap_number", f.LapNumber)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Rule 1: a session-id change flushes any buffered lap and resets all
	// state, regardless of lap number.
	if s.lastSessionID != "" && f.SessionID != s.lastSessionID {
		if !s.pendingDiscard {
			s.emitLocked(hc.Ctx, s.lastSessionID)
		}
		s.resetLocked()
	}
	s.lastSessionID = f.SessionID

	if s.currentLapNumber == nil || *s.currentLapNumber != f.LapNumber {
		lapNum := f.LapNumber
		switch {
		case s.currentLapNumber == nil && f.LapDistancePct < s.cfg.LapCompletionThreshold:
			// Leaving the pits mid-lap on the very first lap observed: flag
			// whatever accumulates under this lap number for discard
			// instead of emission at the next transition.
			s.buffer = s.buffer[:0]
			s.pendingDiscard = true
		case s.pendingDiscard:
			s.buffer = s.buffer[:0]
			s.pendingDiscard = false
		case len(s.buffer) > 0:
			s.emitLocked(hc.Ctx, f.SessionID)
		}
		s.currentLapNumber = &lapNum
	}

	s.buffer = append(s.buffer, f)
	return nil
}

func (s *Segmenter) emitLocked(ctx context.Context, sessionID string) {
	if len(s.buffer) == 0 {
		return
	}
	lap := models.LapTelemetry{
		LapID:     uuid.NewString(),
		SessionID: sessionID,
		LapNumber: *s.currentLapNumber,
		Frames:    append([]models.TelemetryFrame(nil), s.buffer...),
	}
	if err := lap.Validate(); err != nil {
		s.logger.WarnCtx(ctx, "segmenter: discarding invalid lap candidate", "error", err)
		s.buffer = s.buffer[:0]
		return
	}
	if err := bus.Publish(s.b, events.Lap, lap); err != nil {
		s.logger.ErrorCtx(ctx, "segmenter: failed to publish completed lap", "lap_id", lap.LapID, "error", err)
	}
	s.buffer = s.buffer[:0]
}

func (s *Segmenter) resetLocked() {
	s.buffer = s.buffer[:0]
	s.currentLapNumber = nil
	s.pendingDiscard = false
}
