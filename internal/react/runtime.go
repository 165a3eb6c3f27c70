// Package react implements the spec §4.7 ReAct Runtime: the
// reasoning -> action -> observation -> completion/failed state machine
// that every C8 agent-loop iteration drives, plus its three halt predicates.
//
// Grounded on internal/agent/errors.go's LoopPhase/LoopError shape (the
// phase-tagged terminal error this package's HaltError generalizes) and
// internal/agent/event_emitter.go's per-turn iteration sequence bookkeeping.
package react

import (
	"fmt"
	"sync"
	"time"

	"github.com/orbitx-labs/agentcore/pkg/models"
)

// Config tunes the three halt predicates of spec §4.7.
type Config struct {
	MaxIterations int
	MaxErrors     int
	MaxIdle       int
}

// DefaultConfig returns conservative defaults suitable for an interactive
// single task.
func DefaultConfig() *Config {
	return &Config{MaxIterations: 25, MaxErrors: 5, MaxIdle: 3}
}

// HaltReason identifies which of spec §4.7's three halt predicates fired.
type HaltReason string

const (
	HaltMaxIterations HaltReason = "max_iterations"
	HaltMaxErrors     HaltReason = "max_errors"
	HaltMaxIdle       HaltReason = "max_idle"
)

// HaltError is the terminal error C8 raises when a halt predicate fires,
// grounded on internal/agent/errors.go's LoopError{Phase,Iteration,Message}.
type HaltError struct {
	Reason    HaltReason
	Iteration int
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("react: halted at iteration %d: %s", e.Iteration, e.Reason)
}

// Runtime drives one task's ReAct state machine and bookkeeping (spec §4.7).
// A Runtime is not safe for concurrent iterations — spec §5's single-writer
// discipline means exactly one agent-loop goroutine drives a given task.
type Runtime struct {
	mu     sync.Mutex
	config *Config
	state  models.ReactRuntime
	nextID func() string
}

// NewRuntime constructs a Runtime. idGen supplies iteration ids (typically
// uuid.NewString); config defaults to DefaultConfig when nil.
func NewRuntime(config *Config, idGen func() string) *Runtime {
	if config == nil {
		config = DefaultConfig()
	}
	if idGen == nil {
		idGen = func() string { return fmt.Sprintf("iter-%d", time.Now().UnixNano()) }
	}
	return &Runtime{config: config, nextID: idGen}
}

// StartIteration opens a new iteration in IterationReasoning status.
func (r *Runtime) StartIteration() *models.ReactIteration {
	r.mu.Lock()
	defer r.mu.Unlock()
	iter := models.ReactIteration{
		ID:        r.nextID(),
		Index:     len(r.state.Iterations),
		StartedAt: time.Now(),
		Status:    models.IterationReasoning,
	}
	r.state.Iterations = append(r.state.Iterations, iter)
	return &r.state.Iterations[len(r.state.Iterations)-1]
}

// RecordThought attaches the reasoning text produced this iteration.
func (r *Runtime) RecordThought(thought string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last := r.lastLocked(); last != nil {
		last.Thought = thought
	}
}

// RecordAction transitions the current iteration to IterationAction.
func (r *Runtime) RecordAction(call *models.NativeToolCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last := r.lastLocked(); last != nil {
		last.Status = models.IterationAction
		last.Action = call
	}
}

// RecordObservation transitions the current iteration to
// IterationObservation. A successful observation resets both
// ConsecutiveErrors and IdleRounds; a failed one increments
// ConsecutiveErrors (spec §4.7: "A successful tool observation resets both
// counters; a failed tool increments consecutive_errors").
func (r *Runtime) RecordObservation(result *models.ToolResult, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last := r.lastLocked(); last != nil {
		last.Status = models.IterationObservation
		last.Observation = result
	}
	if success {
		r.state.ConsecutiveErrors = 0
		r.state.IdleRounds = 0
	} else {
		r.state.ConsecutiveErrors++
	}
}

// MarkIdle records an idle round: no tool executed and no final text was
// produced this iteration (spec §4.7's idle_round definition).
func (r *Runtime) MarkIdle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.IdleRounds++
}

// Complete transitions the current iteration to the terminal IterationCompletion
// status and resets both counters (spec §4.7: "a completion resets both").
func (r *Runtime) Complete(text, finishReason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last := r.lastLocked(); last != nil {
		last.Status = models.IterationCompletion
		last.Response = text
		last.FinishReason = finishReason
	}
	r.state.ConsecutiveErrors = 0
	r.state.IdleRounds = 0
	r.state.FinalResponse = text
	r.state.StopReason = "completion"
}

// Fail transitions the current iteration to the terminal IterationFailed status.
func (r *Runtime) Fail(errMessage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last := r.lastLocked(); last != nil {
		last.Status = models.IterationFailed
		last.ErrorMessage = errMessage
	}
	r.state.StopReason = "failed"
}

// CheckHalt evaluates spec §4.7's three halt predicates in priority order
// (max_iterations, then max_errors, then max_idle) and returns a *HaltError
// for the first that fires, or nil.
func (r *Runtime) CheckHalt() *HaltError {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.state.Iterations)
	switch {
	case n >= r.config.MaxIterations:
		return &HaltError{Reason: HaltMaxIterations, Iteration: n}
	case r.state.ConsecutiveErrors >= r.config.MaxErrors:
		return &HaltError{Reason: HaltMaxErrors, Iteration: n}
	case r.state.IdleRounds >= r.config.MaxIdle:
		return &HaltError{Reason: HaltMaxIdle, Iteration: n}
	}
	return nil
}

// Snapshot returns a copy of the runtime's bookkeeping state, safe to hand
// to C12's event emitter without a shared-mutation hazard.
func (r *Runtime) Snapshot() models.ReactRuntime {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.state
	out.Iterations = append([]models.ReactIteration(nil), r.state.Iterations...)
	return out
}

// ConsecutiveErrors reports the current consecutive-tool-error count,
// exposed for C8's 5/10-threshold escalation logic.
func (r *Runtime) ConsecutiveErrors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.ConsecutiveErrors
}

func (r *Runtime) lastLocked() *models.ReactIteration {
	if len(r.state.Iterations) == 0 {
		return nil
	}
	return &r.state.Iterations[len(r.state.Iterations)-1]
}
