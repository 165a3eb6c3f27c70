package events

import (
	"sync"
	"time"

	"github.com/orbitx-labs/agentcore/pkg/models"
)

// TaskState is the per-task snapshot record spec §4.12 describes: lifecycle
// status, the cooperative pause flag, error/idle/iteration counters against
// their configured thresholds, and the timestamp of the last change. It is
// queryable independent of the push-based CallbackMessage stream, so a host
// holding only a task id can inspect current progress without replaying
// every event.
type TaskState struct {
	TaskID string
	Status models.TaskStatus
	Paused bool

	ConsecutiveErrors int
	IdleRounds        int
	Iteration         int

	MaxErrors     int
	MaxIdleRounds int
	MaxIterations int

	LastChangedAt time.Time
}

// StateTracker maintains the latest TaskState per task id. The orchestrator
// updates it on status and pause changes (plan, run start and end, abort,
// pause, resume); Iteration is written once, when a run ends, not per
// iteration. Any reader can poll Get concurrently.
type StateTracker struct {
	mu     sync.RWMutex
	states map[string]TaskState
}

// NewStateTracker constructs an empty tracker.
func NewStateTracker() *StateTracker {
	return &StateTracker{states: make(map[string]TaskState)}
}

// Update merges fn's mutations into the tracked state for taskID, creating
// it with zero values first if absent, and stamps LastChangedAt.
func (t *StateTracker) Update(taskID string, fn func(*TaskState)) TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.states[taskID]
	s.TaskID = taskID
	fn(&s)
	s.LastChangedAt = time.Now()
	t.states[taskID] = s
	return s
}

// Get returns the tracked state for taskID, if any.
func (t *StateTracker) Get(taskID string) (TaskState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.states[taskID]
	return s, ok
}

// Delete drops a task's tracked state (e.g. on delete_subtree).
func (t *StateTracker) Delete(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, taskID)
}
