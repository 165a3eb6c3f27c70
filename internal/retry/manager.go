package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/orbitx-labs/agentcore/internal/classify"
	"github.com/orbitx-labs/agentcore/internal/events"
)

// Attempt records one try of an operation, kept in the bounded history.
type Attempt struct {
	At       time.Time
	Err      error
	Category classify.Category
	Delay    time.Duration
}

// Manager executes operations with exponential backoff, a rate-limit delay
// floor, and a per-operation circuit breaker (spec §4.1).
type Manager struct {
	policy  Policy
	circuit *circuitTable
	randFn  func() float64
	metrics *events.Metrics

	historyMu sync.Mutex
	history   map[string][]Attempt
}

// NewManager constructs a Manager with the given policy.
func NewManager(policy Policy) *Manager {
	return &Manager{
		policy:  policy,
		circuit: newCircuitTable(policy),
		randFn:  defaultRand,
		history: make(map[string][]Attempt),
	}
}

// SetMetrics attaches the Prometheus metrics sink that circuit state
// transitions are reported through. Optional; a Manager with no metrics set
// runs exactly as before.
func (m *Manager) SetMetrics(metrics *events.Metrics) {
	m.metrics = metrics
}

// Op is any operation a Manager can retry; it must be idempotent or safe to
// retry (spec §4.1's contract).
type Op[T any] func(ctx context.Context, attempt int) (T, error)

// Execute runs op under opID's circuit breaker and retry policy, returning
// the first successful result or the last classified error once attempts
// (or the circuit) are exhausted.
func Execute[T any](ctx context.Context, m *Manager, opID string, op Op[T]) (T, error) {
	var zero T

	allowed, probe := m.circuit.Allow(opID)
	if !allowed {
		return zero, classifiedCircuitOpen(opID)
	}

	maxRetries := m.policy.MaxRetries

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx, attempt)
		if err == nil {
			m.circuit.RecordSuccess(opID)
			m.metrics.SetCircuitOpen(opID, false)
			m.record(opID, Attempt{At: time.Now()})
			return result, nil
		}

		classified := classify.Classify(err)

		if probe {
			// The single half-open probe failed: re-open immediately,
			// without burning through the remaining retry budget.
			m.recordFailure(opID)
			m.record(opID, Attempt{At: time.Now(), Err: err, Category: classified.Category})
			return zero, fmt.Errorf("circuit probe for %q failed: %w", opID, classified)
		}

		if classified.Category == classify.CategoryRateLimit {
			maxRetries = m.policy.rateLimitRetries()
		}

		if !classified.Retryable || attempt >= maxRetries {
			m.recordFailure(opID)
			m.record(opID, Attempt{At: time.Now(), Err: err, Category: classified.Category})
			return zero, classified
		}

		delay := m.policy.computeDelay(attempt, classified.Category == classify.CategoryRateLimit, m.randFn)
		m.record(opID, Attempt{At: time.Now(), Err: err, Category: classified.Category, Delay: delay})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

// recordFailure records a failed attempt against opID's circuit and reports
// the resulting open/closed state to the metrics sink.
func (m *Manager) recordFailure(opID string) {
	m.circuit.RecordFailure(opID)
	m.metrics.SetCircuitOpen(opID, m.circuit.Snapshot(opID).IsOpen)
}

func (m *Manager) record(opID string, a Attempt) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	hist := append(m.history[opID], a)
	if len(hist) > m.policy.HistoryLimit {
		hist = hist[len(hist)-m.policy.HistoryLimit:]
	}
	m.history[opID] = hist
}

// History returns a copy of the bounded attempt history for opID.
func (m *Manager) History(opID string) []Attempt {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	out := make([]Attempt, len(m.history[opID]))
	copy(out, m.history[opID])
	return out
}

// CircuitSnapshot exposes the current CircuitState for opID.
func (m *Manager) CircuitSnapshot(opID string) CircuitState {
	return m.circuit.Snapshot(opID)
}
