// Package orchestrator implements the spec §4.10 Task Orchestrator (C10):
// the task_id -> context map, generate/modify/execute/abort/pause/chat/
// spawn_child/replan_subtree/tree_edit operations, and the cooperative
// pause/cancellation propagation of spec §5.
//
// Grounded on internal/multiagent/orchestrator.go's sync.RWMutex-guarded
// agent-id -> runtime map and its eventCallback fan-out, generalized from
// the teacher's agent-handoff orchestration to this module's task-tree
// orchestration (parent/child task ids instead of agent ids, tree-edit
// operations instead of handoffs).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/orbitx-labs/agentcore/internal/events"
	"github.com/orbitx-labs/agentcore/internal/loop"
	"github.com/orbitx-labs/agentcore/internal/planner"
	"github.com/orbitx-labs/agentcore/internal/tools"
	"github.com/orbitx-labs/agentcore/pkg/models"
)

// PauseState is the cooperative pause flag of spec §4.10.
type PauseState int32

const (
	PauseRun PauseState = iota
	PausePause
	PausePauseAbortStep
)

// pollInterval is the pause/cancellation polling cadence of spec §4.10's
// "any blocking step awaits on a 500ms polling loop of the pause flag".
const pollInterval = 500 * time.Millisecond

// taskContext bundles one task's orchestration state: its Task record,
// cancellation tokens, pause flag, conversation queue, and message history.
// Spec §4.10: "each context bundles: config, cancellation token, pause
// flag ..., step-level child tokens, current node pointer, parent/root ids,
// children ids".
type taskContext struct {
	mu sync.Mutex

	task *models.Task

	ctx    context.Context
	cancel context.CancelFunc

	pause atomic.Int32

	stepCancels map[string]context.CancelFunc

	chatQueue []string
	history   []models.AgentMessage
	chain     models.Chain
	react     models.ReactRuntime

	emitter *events.Emitter
}

func newTaskContext(parentCtx context.Context, task *models.Task, emitter *events.Emitter) *taskContext {
	ctx, cancel := context.WithCancel(parentCtx)
	return &taskContext{
		task:        task,
		ctx:         ctx,
		cancel:      cancel,
		stepCancels: make(map[string]context.CancelFunc),
		emitter:     emitter,
	}
}

// newStepToken creates a step-level child token unioned with the task-level
// token (spec §5: "aborting the task cancels all in-flight steps"), tracked
// in stepCancels so pause(abort_current_step=true) can cancel outstanding
// steps without cancelling the task token.
func (tc *taskContext) newStepToken() (context.Context, string, context.CancelFunc) {
	stepCtx, cancel := context.WithCancel(tc.ctx)
	id := uuid.NewString()
	tc.mu.Lock()
	tc.stepCancels[id] = cancel
	tc.mu.Unlock()
	release := func() {
		cancel()
		tc.mu.Lock()
		delete(tc.stepCancels, id)
		tc.mu.Unlock()
	}
	return stepCtx, id, release
}

func (tc *taskContext) cancelOutstandingSteps() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	for id, cancel := range tc.stepCancels {
		cancel()
		delete(tc.stepCancels, id)
	}
}

// ExecuteResult is the outcome of a task execution (spec §6's execute(id)).
type ExecuteResult struct {
	ID         string
	Success    bool
	StopReason string
	Result     string
	Error      error
}

// MCPRefresher refreshes MCP-discovered tools into a registry (wired to
// internal/mcp.Manager + RegisterTools by the caller).
type MCPRefresher func(ctx context.Context, registry *tools.Registry) error

// Orchestrator owns the task_id -> context map (spec §4.10) and drives each
// task's agent loop through to completion, abort, or pause.
type Orchestrator struct {
	mu    sync.RWMutex
	tasks map[string]*taskContext

	planner      *planner.Planner
	loop         *loop.Loop
	staticTools  *tools.Registry
	mcpRefresh   MCPRefresher
	sink         events.Sink
	mcpRefreshed map[string]bool
	states       *events.StateTracker
}

// New constructs an Orchestrator.
func New(pl *planner.Planner, lp *loop.Loop, staticTools *tools.Registry, mcpRefresh MCPRefresher, sink events.Sink) *Orchestrator {
	return &Orchestrator{
		tasks:        make(map[string]*taskContext),
		planner:      pl,
		loop:         lp,
		staticTools:  staticTools,
		mcpRefresh:   mcpRefresh,
		sink:         sink,
		mcpRefreshed: make(map[string]bool),
		states:       events.NewStateTracker(),
	}
}

// State returns the tracked TaskState snapshot for id, for a host that wants
// current progress without replaying the CallbackMessage stream (spec
// §4.12).
func (o *Orchestrator) State(id string) (events.TaskState, bool) {
	return o.states.Get(id)
}

// Generate runs the planner to produce a new root Task, storing its context
// on success and discarding it on failure (spec §4.10).
func (o *Orchestrator) Generate(ctx context.Context, prompt, id string) (*models.Task, error) {
	if id == "" {
		id = uuid.NewString()
	}
	emitter := events.NewEmitter(id, o.sink)
	task, err := o.planner.Generate(ctx, id, prompt)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: generate: %w", err)
	}

	tc := newTaskContext(context.Background(), task, emitter)
	o.mu.Lock()
	o.tasks[id] = tc
	o.mu.Unlock()

	emitter.TaskStatus(ctx, models.TaskStatusInit)
	o.states.Update(id, func(s *events.TaskState) {
		s.Status = models.TaskStatusInit
		s.MaxErrors = o.loop.Config().MaxReactErrorStreak
		s.MaxIdleRounds = o.loop.Config().MaxReactIdleRounds
		s.MaxIterations = o.loop.Config().MaxReactIterations
	})
	return task, nil
}

// Modify re-plans an existing task (or creates one if absent), preserving
// replan history in the task's Chain (spec §4.10: "modify(id, prompt):
// re-plan; create if absent").
func (o *Orchestrator) Modify(ctx context.Context, id, prompt string) (*models.Task, error) {
	tc, ok := o.get(id)
	if !ok {
		return o.Generate(ctx, prompt, id)
	}

	tc.mu.Lock()
	priorRequest := tc.task.Prompt
	priorResult := tc.task.Markup
	tc.mu.Unlock()

	task, err := o.planner.Replan(ctx, id, prompt, priorRequest, priorResult)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: modify: %w", err)
	}

	tc.mu.Lock()
	task.ParentID = tc.task.ParentID
	task.RootID = tc.task.RootID
	task.Children = tc.task.Children
	tc.chain.Append(models.ToolChainEntry{ToolName: "replan", Params: map[string]any{"prompt": prompt}})
	tc.task = task
	tc.mu.Unlock()

	return task, nil
}

// Execute runs the agent loop for an existing task id (spec §4.10).
func (o *Orchestrator) Execute(id string) *ExecuteResult {
	tc, ok := o.get(id)
	if !ok {
		return &ExecuteResult{ID: id, Success: false, StopReason: "error", Error: fmt.Errorf("orchestrator: unknown task %q", id)}
	}

	tc.mu.Lock()
	tc.task.Status = models.TaskStatusRunning
	history := append([]models.AgentMessage(nil), tc.history...)
	task := tc.task
	mu := &tc.mu
	mu.Unlock()

	o.states.Update(id, func(s *events.TaskState) { s.Status = models.TaskStatusRunning })

	history = append(history, drainChat(tc)...)

	builder := func(ctx context.Context, task *models.Task, iteration int) (*tools.Registry, error) {
		if err := awaitUnpaused(ctx, tc); err != nil {
			return nil, err
		}
		return o.buildTools(ctx, id, task, iteration)
	}

	// newStepToken always derives from tc.ctx directly (not the loop's
	// current ctx argument), since tc.ctx is the one task token every step
	// must stay unioned with; the loop only ever calls this per dispatch.
	stepToken := func(context.Context) (context.Context, func()) {
		stepCtx, _, release := tc.newStepToken()
		return stepCtx, release
	}

	result := o.loop.Run(tc.ctx, task, history, tc.emitter, builder, stepToken)

	tc.mu.Lock()
	tc.history = result.History
	switch result.StopReason {
	case loop.StopDone:
		tc.task.Status = models.TaskStatusDone
	case loop.StopAbort:
		tc.task.Status = models.TaskStatusAborted
	default:
		tc.task.Status = models.TaskStatusError
	}
	tc.mu.Unlock()

	o.states.Update(id, func(s *events.TaskState) {
		s.Status = tc.task.Status
		s.Iteration = result.Iterations
	})

	tc.emitter.TaskStatus(tc.ctx, tc.task.Status)
	tc.emitter.Emit(tc.ctx, models.CallbackMessage{Type: models.CallbackAgentResult, Task: task, Result: result.Text, Error: errString(result.Error)})

	out := &ExecuteResult{ID: id, Success: result.Success, StopReason: string(result.StopReason), Result: result.Text, Error: result.Error}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// buildTools merges static tools with the task's auto-tools and (on
// iteration 0, or when refreshed) MCP tools, per spec §4.6/§4.8.
func (o *Orchestrator) buildTools(ctx context.Context, id string, task *models.Task, iteration int) (*tools.Registry, error) {
	registry := tools.NewRegistry(tools.DefaultGuard())
	for _, t := range o.staticTools.AsLLMTools() {
		registry.Register(tools.SourceStatic, t)
	}
	for _, t := range tools.BuildAutoTools(task.Nodes) {
		registry.Register(tools.SourceAuto, t)
	}

	o.mu.Lock()
	refreshed := o.mcpRefreshed[id]
	o.mu.Unlock()

	if o.mcpRefresh != nil && (iteration == 0 || !refreshed) {
		if err := o.mcpRefresh(ctx, registry); err == nil {
			o.mu.Lock()
			o.mcpRefreshed[id] = true
			o.mu.Unlock()
		}
	}

	return registry, nil
}

// Abort cancels a task's token and marks it aborted (spec §4.10).
func (o *Orchestrator) Abort(id, reason string) bool {
	tc, ok := o.get(id)
	if !ok {
		return false
	}
	tc.mu.Lock()
	tc.pause.Store(int32(PauseRun))
	tc.task.Status = models.TaskStatusAborted
	tc.mu.Unlock()
	tc.cancel()
	o.states.Update(id, func(s *events.TaskState) { s.Status = models.TaskStatusAborted; s.Paused = false })
	tc.emitter.Emit(context.Background(), models.CallbackMessage{Type: models.CallbackTaskStatus, Status: models.TaskStatusAborted, Reason: reason})
	return true
}

// Pause sets the task's cooperative pause flag; abortCurrentStep=true also
// cancels every currently-outstanding step token without cancelling the
// task-level token (spec §4.10).
func (o *Orchestrator) Pause(id string, pause bool, abortCurrentStep bool, reason string) bool {
	tc, ok := o.get(id)
	if !ok {
		return false
	}
	if pause {
		state := PausePause
		if abortCurrentStep {
			state = PausePauseAbortStep
		}
		tc.pause.Store(int32(state))
		if abortCurrentStep {
			tc.cancelOutstandingSteps()
		}
		tc.mu.Lock()
		tc.task.Status = models.TaskStatusPaused
		tc.mu.Unlock()
		o.states.Update(id, func(s *events.TaskState) { s.Status = models.TaskStatusPaused; s.Paused = true })
		tc.emitter.Emit(context.Background(), models.CallbackMessage{Type: models.CallbackTaskPause, Reason: reason})
	} else {
		tc.pause.Store(int32(PauseRun))
		tc.mu.Lock()
		tc.task.Status = models.TaskStatusRunning
		tc.mu.Unlock()
		o.states.Update(id, func(s *events.TaskState) { s.Status = models.TaskStatusRunning; s.Paused = false })
		tc.emitter.Emit(context.Background(), models.CallbackMessage{Type: models.CallbackTaskResume, Reason: reason})
	}
	return true
}

// Chat appends text to the task's conversation queue. Execute drains the
// queue when it starts, adding each queued text to the history as a user
// message; text queued while a run is in progress is not passed to that
// run's loop and waits for the next Execute.
func (o *Orchestrator) Chat(id, text string) bool {
	tc, ok := o.get(id)
	if !ok {
		return false
	}
	tc.mu.Lock()
	tc.chatQueue = append(tc.chatQueue, text)
	tc.mu.Unlock()
	return true
}

func drainChat(tc *taskContext) []models.AgentMessage {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if len(tc.chatQueue) == 0 {
		return nil
	}
	out := make([]models.AgentMessage, len(tc.chatQueue))
	for i, text := range tc.chatQueue {
		out[i] = models.AgentMessage{Role: models.RoleUser, Content: text}
	}
	tc.chatQueue = nil
	return out
}

// SpawnChild generates a new task context linked under parentID, running it
// to completion and reporting its result text to the parent's emitter as a
// task_child_result event (spec §4.10).
func (o *Orchestrator) SpawnChild(ctx context.Context, parentID, prompt string) (string, error) {
	parent, ok := o.get(parentID)
	if !ok {
		return "", fmt.Errorf("orchestrator: unknown parent task %q", parentID)
	}

	parent.mu.Lock()
	rootID := parent.task.RootID
	parent.mu.Unlock()

	childID := uuid.NewString()
	emitter := events.NewEmitter(childID, o.sink)
	child, err := o.planner.Generate(ctx, childID, prompt)
	if err != nil {
		return "", fmt.Errorf("orchestrator: spawn_child: %w", err)
	}
	child.ParentID = parentID
	child.RootID = rootID

	childCtx := newTaskContext(parent.ctx, child, emitter)
	o.mu.Lock()
	o.tasks[childID] = childCtx
	o.mu.Unlock()

	parent.mu.Lock()
	parent.task.AddChild(childID)
	childIDs := append([]string(nil), parent.task.Children...)
	parent.mu.Unlock()

	parent.emitter.Emit(ctx, models.CallbackMessage{Type: models.CallbackTaskSpawn, ParentID: parentID, RootID: rootID, Task: child})
	parent.emitter.Emit(ctx, models.CallbackMessage{Type: models.CallbackTaskTreeUpdate, ParentID: parentID, ChildIDs: childIDs})

	result := o.Execute(childID)

	parent.emitter.Emit(ctx, models.CallbackMessage{Type: models.CallbackTaskChildResult, ParentID: parentID, Summary: result.Result})
	return childID, nil
}

// ReplanSubtree deletes target's descendants and re-creates them from the
// tree planner's fresh decomposition (spec §4.10).
func (o *Orchestrator) ReplanSubtree(ctx context.Context, targetID string) error {
	tc, ok := o.get(targetID)
	if !ok {
		return fmt.Errorf("orchestrator: unknown task %q", targetID)
	}

	o.deleteDescendants(targetID)

	tc.mu.Lock()
	prompt := tc.task.Prompt
	rootID := tc.task.RootID
	tc.mu.Unlock()

	root, children, err := o.planner.GenerateTree(ctx, targetID, prompt)
	if err != nil {
		return fmt.Errorf("orchestrator: replan_subtree: %w", err)
	}
	root.RootID = rootID

	tc.mu.Lock()
	tc.task = root
	tc.mu.Unlock()

	childIDs := make([]string, 0, len(children))
	for _, child := range children {
		child.RootID = rootID
		childCtx := newTaskContext(tc.ctx, child, events.NewEmitter(child.ID, o.sink))
		o.mu.Lock()
		o.tasks[child.ID] = childCtx
		o.mu.Unlock()
		childIDs = append(childIDs, child.ID)
	}

	tc.emitter.Emit(ctx, models.CallbackMessage{Type: models.CallbackTaskTreeUpdate, ParentID: targetID, ChildIDs: childIDs})
	return nil
}

func (o *Orchestrator) deleteDescendants(id string) []string {
	tc, ok := o.get(id)
	if !ok {
		return nil
	}
	tc.mu.Lock()
	children := append([]string(nil), tc.task.Children...)
	tc.task.Children = nil
	tc.mu.Unlock()

	var removed []string
	for _, childID := range children {
		removed = append(removed, childID)
		removed = append(removed, o.deleteDescendants(childID)...)
		o.mu.Lock()
		delete(o.tasks, childID)
		o.mu.Unlock()
		o.states.Delete(childID)
	}
	return removed
}

// TreeEditOp identifies a structural edit operation (spec §4.10).
type TreeEditOp string

const (
	TreeEditAddChild      TreeEditOp = "add_child"
	TreeEditDeleteSubtree TreeEditOp = "delete_subtree"
	TreeEditMoveSubtree   TreeEditOp = "move_subtree"
	TreeEditUpdateTask    TreeEditOp = "update_task"
)

// TreeEdit performs a single structural edit, maintaining consistent
// parent/child lists and propagating root-id changes on a move (spec
// §4.10).
func (o *Orchestrator) TreeEdit(ctx context.Context, op TreeEditOp, targetID string, args map[string]any) error {
	switch op {
	case TreeEditAddChild:
		parent, ok := o.get(targetID)
		if !ok {
			return fmt.Errorf("orchestrator: unknown parent %q", targetID)
		}
		childID, _ := args["child_id"].(string)
		if childID == "" {
			return errors.New("orchestrator: add_child requires child_id")
		}
		parent.mu.Lock()
		parent.task.AddChild(childID)
		rootID := parent.task.RootID
		ids := append([]string(nil), parent.task.Children...)
		parent.mu.Unlock()
		if child, ok := o.get(childID); ok {
			child.mu.Lock()
			child.task.ParentID = targetID
			child.task.RootID = rootID
			child.mu.Unlock()
		}
		parent.emitter.Emit(ctx, models.CallbackMessage{Type: models.CallbackTaskTreeUpdate, ParentID: targetID, ChildIDs: ids})
		return nil

	case TreeEditDeleteSubtree:
		parentID, _ := args["parent_id"].(string)
		removed := o.deleteDescendants(targetID)
		removed = append(removed, targetID)
		o.mu.Lock()
		delete(o.tasks, targetID)
		o.mu.Unlock()
		o.states.Delete(targetID)
		if parent, ok := o.get(parentID); ok {
			parent.mu.Lock()
			parent.task.RemoveChild(targetID)
			ids := append([]string(nil), parent.task.Children...)
			parent.mu.Unlock()
			parent.emitter.Emit(ctx, models.CallbackMessage{Type: models.CallbackTaskTreeUpdate, ParentID: parentID, ChildIDs: ids, RemovedIDs: removed})
		}
		return nil

	case TreeEditMoveSubtree:
		newParentID, _ := args["new_parent_id"].(string)
		oldParentID, _ := args["old_parent_id"].(string)
		node, ok := o.get(targetID)
		if !ok {
			return fmt.Errorf("orchestrator: unknown node %q", targetID)
		}
		if oldParent, ok := o.get(oldParentID); ok {
			oldParent.mu.Lock()
			oldParent.task.RemoveChild(targetID)
			oldParent.mu.Unlock()
		}
		newParent, ok := o.get(newParentID)
		if !ok {
			return fmt.Errorf("orchestrator: unknown new parent %q", newParentID)
		}
		newParent.mu.Lock()
		newParent.task.AddChild(targetID)
		newRootID := newParent.task.RootID
		ids := append([]string(nil), newParent.task.Children...)
		newParent.mu.Unlock()

		node.mu.Lock()
		node.task.ParentID = newParentID
		propagateRoot(o, node, newRootID)
		node.mu.Unlock()

		newParent.emitter.Emit(ctx, models.CallbackMessage{Type: models.CallbackTaskTreeUpdate, ParentID: newParentID, ChildIDs: ids})
		return nil

	case TreeEditUpdateTask:
		tc, ok := o.get(targetID)
		if !ok {
			return fmt.Errorf("orchestrator: unknown task %q", targetID)
		}
		tc.mu.Lock()
		if name, ok := args["name"].(string); ok {
			tc.task.Name = name
		}
		if description, ok := args["description"].(string); ok {
			tc.task.Description = description
		}
		tc.task.UpdatedAt = time.Now()
		tc.mu.Unlock()
		return nil

	default:
		return fmt.Errorf("orchestrator: unknown tree edit op %q", op)
	}
}

// propagateRoot recursively rewrites RootID down a moved subtree (spec
// §4.10's "root-id propagation on move"). Caller holds node.mu.
func propagateRoot(o *Orchestrator, node *taskContext, rootID string) {
	node.task.RootID = rootID
	for _, childID := range node.task.Children {
		if child, ok := o.get(childID); ok {
			child.mu.Lock()
			propagateRoot(o, child, rootID)
			child.mu.Unlock()
		}
	}
}

func (o *Orchestrator) get(id string) (*taskContext, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	tc, ok := o.tasks[id]
	return tc, ok
}

// Task returns a snapshot clone of a task's current state, for host
// inspection without a shared-mutation hazard.
func (o *Orchestrator) Task(id string) (*models.Task, bool) {
	tc, ok := o.get(id)
	if !ok {
		return nil, false
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.task.Clone(), true
}

// awaitUnpaused blocks on a 500ms polling loop of the pause flag while
// cooperatively observing cancellation (spec §4.10's "any blocking step
// awaits on a 500 ms polling loop of the pause flag").
func awaitUnpaused(ctx context.Context, tc *taskContext) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for PauseState(tc.pause.Load()) != PauseRun {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
