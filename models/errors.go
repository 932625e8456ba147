package models

import "errors"

// Sentinel error kinds surfaced by the analysis functions. Propagation is
// always via return value, never via panic or side effect.
var (
	// ErrInvalidFrame marks a frame with a non-finite field or an
	// out-of-range enum. The producer drops such frames and continues.
	ErrInvalidFrame = errors.New("telemetry: invalid frame")

	// ErrInsufficientData marks a lap with fewer than two frames.
	ErrInsufficientData = errors.New("telemetry: insufficient data")

	// ErrInvalidBoundaryInput marks demarcation-lap coverage too sparse to
	// build a track boundary.
	ErrInvalidBoundaryInput = errors.New("telemetry: invalid boundary input")

	// ErrLapNotFound names the failed-lap-lookup kind. No package in this
	// module stores laps, so nothing here returns it.
	ErrLapNotFound = errors.New("telemetry: lap not found")

	// ErrSessionNotFound names the failed-session-lookup kind. The session
	// registry does not return it: Registry.GetCurrent reports an absent
	// session with a false result.
	ErrSessionNotFound = errors.New("telemetry: session not found")

	// ErrBackpressureFull is returned by a non-blocking bus publish when
	// the queue is at capacity.
	ErrBackpressureFull = errors.New("telemetry: bus queue full")

	// ErrBusStopped is returned by a publish issued after the bus has been
	// stopped. Publish fails fast rather than silently dropping the event.
	ErrBusStopped = errors.New("telemetry: bus stopped")

	// ErrHandlerError names the handler-error kind. The bus logs and counts
	// a handler's returned error or panic as-is, without wrapping it in
	// ErrHandlerError, and keeps running.
	ErrHandlerError = errors.New("telemetry: handler error")
)
