package models

import "fmt"

// LapTelemetry is an ordered, non-empty sequence of frames sharing a single
// lap number. Frames must already be sorted by SessionTime (strictly
// non-decreasing); callers that build one by hand should validate with
// Validate before handing it to the analysis packages.
type LapTelemetry struct {
	LapID     string
	SessionID string
	LapNumber int
	LapTimeS  float64 // 0 means unknown/incomplete
	Frames    []TelemetryFrame
}

// Validate checks the struct-level invariants from the data model: a
// non-empty frame list sharing a lap number, sorted by session time.
func (l *LapTelemetry) Validate() error {
	if len(l.Frames) == 0 {
		return fmt.Errorf("lap %d: %w", l.LapNumber, ErrInsufficientData)
	}
	prev := l.Frames[0].SessionTime
	for i, f := range l.Frames {
		if f.SessionTime < prev {
			return fmt.Errorf("lap %d: frame %d out of order (session_time %.6f < %.6f)", l.LapNumber, i, f.SessionTime, prev)
		}
		if f.LapNumber != l.LapNumber {
			return fmt.Errorf("lap %d: frame %d carries lap number %d", l.LapNumber, i, f.LapNumber)
		}
		prev = f.SessionTime
	}
	return nil
}
