package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const connectivityTimeout = 5 * time.Second

// Connectivity is the cached result of the backend liveness/readiness probes.
type Connectivity struct {
	Health bool
	Ready  bool
}

// HealthChecker probes /health and /ready and caches the result so repeated
// callers do not hammer the backend. The cache is owned here, not at module
// level; Invalidate forces a re-probe on the next Check.
type HealthChecker struct {
	lock    sync.Mutex
	backend Backend
	cached  *Connectivity
}

func NewHealthChecker(backend Backend) *HealthChecker {
	return &HealthChecker{backend: backend}
}

// Check returns the cached connectivity state, probing once when no cached
// value exists. It fails softly: probe errors yield an unreachable state,
// never an error, so callers keep working when the backend is offline.
func (h *HealthChecker) Check(ctx context.Context) Connectivity {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.cached != nil {
		return *h.cached
	}

	state := h.probe(ctx)
	h.cached = &state
	return state
}

// Invalidate drops the cached state so the next Check probes again.
func (h *HealthChecker) Invalidate() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.cached = nil
}

func (h *HealthChecker) probe(ctx context.Context) Connectivity {
	ctx, cancel := context.WithTimeout(ctx, connectivityTimeout)
	defer cancel()

	var state Connectivity
	if err := h.backend.Health(ctx); err != nil {
		zap.S().Named("health").Warnf("backend unreachable code=%s", AsError(err).Code)
		return state
	}
	state.Health = true

	if err := h.backend.Ready(ctx); err != nil {
		zap.S().Named("health").Warnf("backend not ready code=%s", AsError(err).Code)
		return state
	}
	state.Ready = true
	return state
}
