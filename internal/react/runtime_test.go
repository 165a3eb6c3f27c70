package react

import (
	"testing"

	"github.com/orbitx-labs/agentcore/pkg/models"
)

func idSeq() func() string {
	n := 0
	return func() string {
		n++
		return "iter-test"
	}
}

func TestStartIterationBeginsInReasoning(t *testing.T) {
	r := NewRuntime(nil, idSeq())
	iter := r.StartIteration()
	if iter.Status != models.IterationReasoning {
		t.Fatalf("expected reasoning status, got %s", iter.Status)
	}
	if iter.Index != 0 {
		t.Fatalf("expected index 0, got %d", iter.Index)
	}
}

func TestRecordActionTransitionsToAction(t *testing.T) {
	r := NewRuntime(nil, idSeq())
	r.StartIteration()
	r.RecordAction(&models.NativeToolCall{ID: "c1", Name: "echo"})

	snap := r.Snapshot()
	last := snap.Iterations[len(snap.Iterations)-1]
	if last.Status != models.IterationAction || last.Action.Name != "echo" {
		t.Fatalf("unexpected iteration state: %+v", last)
	}
}

func TestSuccessfulObservationResetsCounters(t *testing.T) {
	r := NewRuntime(&Config{MaxIterations: 100, MaxErrors: 5, MaxIdle: 5}, idSeq())
	r.StartIteration()
	r.RecordObservation(nil, false)
	r.RecordObservation(nil, false)
	if r.ConsecutiveErrors() != 2 {
		t.Fatalf("expected 2 consecutive errors, got %d", r.ConsecutiveErrors())
	}
	r.RecordObservation(models.TextResult("ok", false), true)
	if r.ConsecutiveErrors() != 0 {
		t.Fatalf("success must reset consecutive errors, got %d", r.ConsecutiveErrors())
	}
}

func TestCompleteResetsBothCounters(t *testing.T) {
	r := NewRuntime(nil, idSeq())
	r.StartIteration()
	r.RecordObservation(nil, false)
	r.MarkIdle()
	r.Complete("done", "stop")

	snap := r.Snapshot()
	if snap.ConsecutiveErrors != 0 || snap.IdleRounds != 0 {
		t.Fatalf("completion must reset both counters, got %+v", snap)
	}
	if snap.FinalResponse != "done" {
		t.Fatalf("expected final response to be recorded, got %q", snap.FinalResponse)
	}
}

func TestCheckHaltMaxIterations(t *testing.T) {
	r := NewRuntime(&Config{MaxIterations: 2, MaxErrors: 100, MaxIdle: 100}, idSeq())
	r.StartIteration()
	r.StartIteration()
	halt := r.CheckHalt()
	if halt == nil || halt.Reason != HaltMaxIterations {
		t.Fatalf("expected max_iterations halt, got %+v", halt)
	}
}

func TestCheckHaltMaxErrors(t *testing.T) {
	r := NewRuntime(&Config{MaxIterations: 100, MaxErrors: 2, MaxIdle: 100}, idSeq())
	r.StartIteration()
	r.RecordObservation(nil, false)
	r.RecordObservation(nil, false)
	halt := r.CheckHalt()
	if halt == nil || halt.Reason != HaltMaxErrors {
		t.Fatalf("expected max_errors halt, got %+v", halt)
	}
}

func TestCheckHaltMaxIdle(t *testing.T) {
	r := NewRuntime(&Config{MaxIterations: 100, MaxErrors: 100, MaxIdle: 2}, idSeq())
	r.StartIteration()
	r.MarkIdle()
	r.MarkIdle()
	halt := r.CheckHalt()
	if halt == nil || halt.Reason != HaltMaxIdle {
		t.Fatalf("expected max_idle halt, got %+v", halt)
	}
}

func TestCheckHaltNoneFires(t *testing.T) {
	r := NewRuntime(DefaultConfig(), idSeq())
	r.StartIteration()
	if halt := r.CheckHalt(); halt != nil {
		t.Fatalf("expected no halt, got %+v", halt)
	}
}
