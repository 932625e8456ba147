// Package registry holds the process-wide current SessionDescriptor. The
// Engine owns one instance (Engine.Registry); the bus, the segmenter, and
// the handlers do not read it, and the segmenter tracks sessions by each
// frame's SessionID instead.
package registry

import (
	"context"
	"sync"

	"github.com/trackside/telemetry-core/models"
	"github.com/trackside/telemetry-core/telemetry/logging"
)

// Registry is a reader-preferring store of the current SessionDescriptor.
// Reads never block each other; a writer excludes all readers and writers
// for the duration of the swap.
type Registry struct {
	mu      sync.RWMutex
	current *models.SessionDescriptor
	logger  logging.Logger
}

// New returns an empty Registry.
func New(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.New(nil)
	}
	return &Registry{logger: logger}
}

// StartSession installs desc as the current session. If a different
// session was already active, the replacement is logged but not treated
// as an error: the simulator is the source of truth for session identity.
func (r *Registry) StartSession(ctx context.Context, desc models.SessionDescriptor) {
	r.mu.Lock()
	prev := r.current
	r.current = &desc
	r.mu.Unlock()

	if prev != nil && prev.SessionID != desc.SessionID {
		r.logger.InfoCtx(ctx, "registry: session replaced",
			"previous_session_id", prev.SessionID, "new_session_id", desc.SessionID)
	}
}

// EndSession clears the current session, but only if id matches it; a
// stale end-session call for a session that has already been replaced is a
// no-op.
func (r *Registry) EndSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && r.current.SessionID == id {
		r.current = nil
	}
}

// GetCurrent returns the current session descriptor, or false if none is
// active.
func (r *Registry) GetCurrent() (models.SessionDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return models.SessionDescriptor{}, false
	}
	return *r.current, true
}
