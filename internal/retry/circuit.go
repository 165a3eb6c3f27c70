package retry

import (
	"sync"
	"time"

	"github.com/orbitx-labs/agentcore/internal/classify"
)

// CircuitState is the per-operation circuit-breaker bookkeeping of spec §3.
type CircuitState struct {
	IsOpen        bool
	LastFailureAt time.Time
	FailureCount  int

	// halfOpenProbeInFlight is set while a single half-open probe is
	// outstanding, so concurrent callers don't all slip through at once.
	halfOpenProbeInFlight bool
}

// circuitTable is the process-wide (but Manager-confined) map of operation
// id to CircuitState, guarded by a single mutex per spec §9.
type circuitTable struct {
	mu     sync.Mutex
	states map[string]*CircuitState
	policy Policy
}

func newCircuitTable(policy Policy) *circuitTable {
	return &circuitTable{states: make(map[string]*CircuitState), policy: policy}
}

// CircuitOpenError names the operation whose open circuit rejected a call;
// Execute returns it wrapped in a Classified error when Allow refuses.
type CircuitOpenError struct {
	OpID string
}

func (e *CircuitOpenError) Error() string {
	return "Circuit breaker is open for operation " + e.OpID
}

// classifiedCircuitOpen wraps a CircuitOpenError as a network-category,
// non-retryable classification (spec §8 scenario 4): an open circuit is an
// availability failure on the remote op, not something a caller should
// immediately retry.
func classifiedCircuitOpen(opID string) *classify.Classified {
	return &classify.Classified{
		Category:  classify.CategoryNetwork,
		Retryable: false,
		Severity:  classify.SeverityHigh,
		Cause:     &CircuitOpenError{OpID: opID},
	}
}

// Allow reports whether a call to opID may proceed. It returns (true, probe)
// where probe is true if this call is the single permitted half-open probe;
// the caller must call RecordResult with the outcome of a probe call.
func (t *circuitTable) Allow(opID string) (allowed bool, probe bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[opID]
	if !ok || !state.IsOpen {
		return true, false
	}

	cooldown := t.policy.circuitCooldown(state.FailureCount)
	if time.Since(state.LastFailureAt) < cooldown {
		return false, false
	}

	// Cooldown elapsed: half-open. Only one probe may pass at a time.
	if state.halfOpenProbeInFlight {
		return false, false
	}
	state.halfOpenProbeInFlight = true
	return true, true
}

// RecordSuccess clears failures and closes the circuit for opID.
func (t *circuitTable) RecordSuccess(opID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state := t.stateLocked(opID)
	state.IsOpen = false
	state.FailureCount = 0
	state.halfOpenProbeInFlight = false
}

// RecordFailure increments the failure count for opID and opens the circuit
// once the threshold is reached.
func (t *circuitTable) RecordFailure(opID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state := t.stateLocked(opID)
	state.FailureCount++
	state.LastFailureAt = time.Now()
	state.halfOpenProbeInFlight = false
	if state.FailureCount >= t.policy.CircuitThreshold {
		state.IsOpen = true
	}
}

func (t *circuitTable) stateLocked(opID string) *CircuitState {
	state, ok := t.states[opID]
	if !ok {
		state = &CircuitState{}
		t.states[opID] = state
	}
	return state
}

// Snapshot returns a copy of opID's current state for diagnostics.
func (t *circuitTable) Snapshot(opID string) CircuitState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.states[opID]; ok {
		return CircuitState{IsOpen: state.IsOpen, LastFailureAt: state.LastFailureAt, FailureCount: state.FailureCount}
	}
	return CircuitState{}
}
