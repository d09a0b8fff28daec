package pipeline

import (
	"errors"
	"sync"
)

var (
	ErrNoPendingApproval = errors.New("no run is awaiting approval")
	ErrEmptyToken        = errors.New("approval token is required")
)

// approvalGate holds a run parked past the privacy-scrub step until an
// externally supplied token releases it. The gate is keyed by run id so a
// token arriving after a reset cannot release a newer run.
type approvalGate struct {
	mu    sync.Mutex
	runID string
	armed bool
}

// Arm parks the given run at the gate.
func (g *approvalGate) Arm(runID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runID = runID
	g.armed = true
}

// Release validates the token against the armed run and disarms the gate.
func (g *approvalGate) Release(runID, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.armed || g.runID != runID {
		return ErrNoPendingApproval
	}
	if token == "" {
		return ErrEmptyToken
	}
	g.armed = false
	g.runID = ""
	return nil
}

// Disarm clears any pending continuation, used when a run is abandoned.
func (g *approvalGate) Disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = false
	g.runID = ""
}
