// Package loop implements the spec §4.8 Agent Loop (C8): the driver that
// rebuilds the tool set, runs context maintenance, calls the streaming LLM
// client, splits thinking from visible text, dispatches tool calls in
// receipt order, and feeds the results back in until the ReAct runtime
// halts or the turn completes.
//
// Grounded on internal/agent/loop.go's AgenticLoop state machine (Init ->
// Stream -> Execute Tools -> Continue/Complete), generalized from the
// teacher's session/branch-store persistence onto this module's in-memory
// Task/ReactRuntime bookkeeping.
package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/orbitx-labs/agentcore/internal/events"
	"github.com/orbitx-labs/agentcore/internal/hitl"
	"github.com/orbitx-labs/agentcore/internal/llm"
	"github.com/orbitx-labs/agentcore/internal/memory"
	"github.com/orbitx-labs/agentcore/internal/react"
	"github.com/orbitx-labs/agentcore/internal/tools"
	"github.com/orbitx-labs/agentcore/internal/tracing"
	"github.com/orbitx-labs/agentcore/pkg/models"
)

// Config tunes the agent loop's halt thresholds and optional "expert mode"
// turns (spec §6's configuration list).
type Config struct {
	MaxReactIterations  int
	MaxReactIdleRounds  int
	MaxReactErrorStreak int

	// ExpertMode enables the one-shot task-result check and the periodic
	// todo-list manager turn (spec §4.8 step 7).
	ExpertMode bool
	// ExpertModeTodoLoopNum runs the todo-list manager every N iterations.
	ExpertModeTodoLoopNum int

	// Platform is surfaced to tools as a context value (spec §6).
	Platform string

	Model         string
	PlanningModel string
	Temperature   float64
	MaxTokens     int

	// MaxRecentAttachments bounds context maintenance (spec §4.8 step 3:
	// "retain only the most-recent image/file attachment").
	MaxRecentAttachments int
	// MaxToolResultChars truncates a tool-result text longer than this to
	// its first MaxToolResultChars bytes plus a "[truncated]" marker, in every
	// message except the last four of the history.
	MaxToolResultChars int

	// ConfirmTools names tools that must be confirmed via HumanInLoop.OnConfirm
	// before every dispatch (spec §6's human-in-the-loop interface).
	ConfirmTools []string
}

// DefaultConfig returns the spec §6 defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxReactIterations:    100,
		MaxReactIdleRounds:    3,
		MaxReactErrorStreak:   5,
		ExpertMode:            false,
		ExpertModeTodoLoopNum: 5,
		Temperature:           1,
		MaxTokens:             4096,
		MaxRecentAttachments:  1,
		MaxToolResultChars:    4000,
	}
}

// ToolSetBuilder rebuilds the static ∪ auto ∪ MCP tool set for a task. The
// returned Registry is read every iteration (spec §4.8 step 2: "Rebuild the
// tool set ... deduplicating by name"). Implementations that also need to
// cooperatively poll a pause flag (spec §4.10) can do so here, since it runs
// once at the top of every iteration.
type ToolSetBuilder func(ctx context.Context, task *models.Task, iteration int) (*tools.Registry, error)

// StepToken derives a step-scoped context for one tool dispatch, unioned
// with the caller's task-level cancellation (spec §5: "each step spawns a
// child token unioned with the task token"), and returns a release func to
// call once that dispatch finishes. A nil StepToken runs every tool call
// directly under the iteration context instead.
type StepToken func(ctx context.Context) (stepCtx context.Context, release func())

// ResultChecker runs the one-shot task-result check of spec §4.8 step 7:
// given the final visible text of an iteration with no tool calls, reports
// whether the task is actually complete.
type ResultChecker func(ctx context.Context, task *models.Task, text string) (complete bool, err error)

// TodoManager runs the periodic todo-list-manager turn of spec §4.8 step 7,
// returning a user-role summary message to append to history.
type TodoManager func(ctx context.Context, task *models.Task, history []models.AgentMessage) (string, error)

// Loop drives the agent loop (spec §4.8) against whichever task/history/
// tool-builder/emitter a Run call supplies. The Loop itself is stateless and
// shared across tasks; C10 supplies the per-task pieces (emitter, tool
// builder) on each call.
type Loop struct {
	client     *llm.Client
	compressor *memory.Compressor
	config     *Config

	checkResult  ResultChecker
	runTodo      TodoManager
	systemPrompt func(task *models.Task) string

	tracer  *tracing.Tracer
	metrics *events.Metrics

	confirm      hitl.HumanInLoop
	confirmTools map[string]bool
}

// New constructs a Loop. checkResult and runTodo may be nil, in which case
// expert-mode turns that would use them are skipped.
func New(client *llm.Client, compressor *memory.Compressor, config *Config, checkResult ResultChecker, runTodo TodoManager, systemPrompt func(*models.Task) string) *Loop {
	if config == nil {
		config = DefaultConfig()
	}
	if systemPrompt == nil {
		systemPrompt = func(t *models.Task) string { return t.Description }
	}
	confirmTools := make(map[string]bool, len(config.ConfirmTools))
	for _, name := range config.ConfirmTools {
		confirmTools[name] = true
	}
	return &Loop{
		client:       client,
		compressor:   compressor,
		config:       config,
		checkResult:  checkResult,
		runTodo:      runTodo,
		systemPrompt: systemPrompt,
		metrics:      events.NewMetrics(),
		confirm:      hitl.NoopHumanInLoop{},
		confirmTools: confirmTools,
	}
}

// Config returns the loop's halt/model configuration, shared read-only
// across every task a single Loop instance drives.
func (l *Loop) Config() *Config { return l.config }

// SetTracer attaches a tracer that opens one span per ReAct iteration and
// one child span per tool call. A nil tracer (the default) disables tracing.
func (l *Loop) SetTracer(t *tracing.Tracer) { l.tracer = t }

// SetHumanInLoop attaches the host's interactive collaborator (spec §6). A
// nil value restores the default no-op implementation, which grants every
// confirmation without blocking.
func (l *Loop) SetHumanInLoop(h hitl.HumanInLoop) {
	if h == nil {
		h = hitl.NoopHumanInLoop{}
	}
	l.confirm = h
}

// StopReason is the closed set of terminal reasons a Run returns (spec §6's
// execute(id) -> {success, stop_reason, result, error?}).
type StopReason string

const (
	StopDone   StopReason = "done"
	StopError  StopReason = "error"
	StopAbort  StopReason = "abort"
	StopLength StopReason = "length"
)

// Result is the outcome of one Run call.
type Result struct {
	Success    bool
	StopReason StopReason
	Text       string
	Error      error
	Iterations int
	History    []models.AgentMessage
}

// Run drives the ReAct loop for task until it completes, halts, is
// cancelled, or accumulates a fatal tool-error streak (spec §4.8 steps 1-8).
// ctx is expected to already be the composite cancellation token (task ∪
// step) the caller (C10) maintains per spec §5. emitter receives the
// callback-sink messages of spec §6 for this task; buildTools rebuilds the
// tool set every iteration.
func (l *Loop) Run(ctx context.Context, task *models.Task, history []models.AgentMessage, emitter *events.Emitter, buildTools ToolSetBuilder, stepToken StepToken) *Result {
	rt := react.NewRuntime(&react.Config{
		MaxIterations: l.config.MaxReactIterations,
		MaxErrors:     l.config.MaxReactErrorStreak,
		MaxIdle:       l.config.MaxReactIdleRounds,
	}, func() string { return uuid.NewString() })

	history = append([]models.AgentMessage(nil), history...)
	lastResponse := ""
	iterCount := 0

	for {
		if err := ctx.Err(); err != nil {
			return &Result{Success: false, StopReason: StopAbort, Error: err, Iterations: iterCount, History: history}
		}

		if halt := rt.CheckHalt(); halt != nil {
			return l.haltResult(halt, lastResponse, iterCount, history)
		}

		toolRegistry, err := buildTools(ctx, task, iterCount)
		if err != nil {
			return &Result{Success: false, StopReason: StopError, Error: fmt.Errorf("loop: building tool set: %w", err), Iterations: iterCount, History: history}
		}

		history = l.maintainContext(history)

		if l.compressor != nil && l.compressor.ShouldCompress(history, "", "") {
			if compressed, cErr := l.compressor.Compress(ctx, history); cErr == nil {
				history = compressed
			}
		}

		iter := rt.StartIteration()
		emitter.TaskStatus(ctx, models.TaskStatusRunning)
		l.metrics.RecordIteration()

		iterCtx := ctx
		var iterSpan trace.Span
		if l.tracer != nil {
			iterCtx, iterSpan = l.tracer.StartIteration(ctx, task.ID, iter.Index)
		}

		req := &llm.Request{
			Model:       l.config.Model,
			Messages:    history,
			System:      l.systemPrompt(task),
			Tools:       asLLMTools(toolRegistry),
			Temperature: l.config.Temperature,
			MaxTokens:   l.config.MaxTokens,
		}

		stream, err := l.client.CallStream(iterCtx, req)
		if err != nil {
			if iterSpan != nil {
				iterSpan.End()
			}
			rt.Fail(err.Error())
			return &Result{Success: false, StopReason: StopError, Error: err, Iterations: iterCount + 1, History: history}
		}

		textStreamID := iter.ID + ":text"
		thinkingStreamID := iter.ID + ":thinking"

		raw, calls, finishReason, usage, streamErr := consumeStream(iterCtx, emitter, stream, textStreamID, thinkingStreamID)
		if iterSpan != nil {
			iterSpan.End()
		}
		if streamErr != nil {
			rt.Fail(streamErr.Error())
			emitter.Error(ctx, streamErr)
			return &Result{Success: false, StopReason: StopError, Error: streamErr, Iterations: iterCount + 1, History: history}
		}

		split := llm.SplitThinking(raw)
		rt.RecordThought(split.Thinking)
		emitter.Finish(ctx, finishReason, usage)
		iterCount++

		if len(calls) == 0 {
			visible := strings.TrimSpace(split.Visible)
			if visible == "" {
				rt.MarkIdle()
				continue
			}

			if l.config.ExpertMode && l.checkResult != nil {
				complete, cErr := l.checkResult(ctx, task, visible)
				if cErr == nil && !complete {
					rt.MarkIdle()
					history = append(history, models.AgentMessage{Role: models.RoleAssistant, Content: visible})
					lastResponse = visible
					continue
				}
			}

			rt.Complete(visible, finishReason)
			return &Result{Success: true, StopReason: StopDone, Text: visible, Iterations: iterCount, History: history}
		}

		assistantMsg := buildAssistantMessage(split.Visible, calls)
		history = append(history, assistantMsg)

		resultParts := make([]models.MessagePart, 0, len(calls))
		fatal := false
		var fatalErr error

		for _, call := range calls {
			rt.RecordAction(&models.NativeToolCall{ID: call.ID, Name: call.Name, Args: call.Args})

			toolCtx := ctx
			var release func()
			if stepToken != nil {
				toolCtx, release = stepToken(ctx)
			}
			var toolSpan trace.Span
			if l.tracer != nil {
				toolCtx, toolSpan = l.tracer.StartToolCall(toolCtx, call.Name)
			}
			started := time.Now()
			result := l.confirmAndExecute(toolCtx, toolRegistry, call)
			if toolSpan != nil {
				toolSpan.End()
			}
			if release != nil {
				release()
			}
			success := result != nil && !result.IsError
			outcome := "ok"
			if !success {
				outcome = "error"
			}
			l.metrics.RecordToolCall(call.Name, outcome, time.Since(started).Seconds())
			rt.RecordObservation(result, success)
			emitter.ToolResult(ctx, call.Name, call.ID, result)

			resultParts = append(resultParts, models.MessagePart{
				Type:            models.PartToolResult,
				ToolResultID:    call.ID,
				ToolResultName:  call.Name,
				ToolResultValue: result,
			})

			if !success {
				ce := rt.ConsecutiveErrors()
				if ce >= 10 {
					fatal = true
					fatalErr = fmt.Errorf("loop: fatal tool-error streak (%d) on %q", ce, call.Name)
					break
				}
				if ce >= 5 {
					fatal = true
					fatalErr = fmt.Errorf("loop: tool-error streak (%d) reached halt threshold on %q", ce, call.Name)
					break
				}
			}
		}

		history = append(history, models.AgentMessage{Role: models.RoleTool, Parts: resultParts})

		if fatal {
			rt.Fail(fatalErr.Error())
			return &Result{Success: false, StopReason: StopError, Error: fatalErr, Iterations: iterCount, History: history}
		}

		if l.config.ExpertMode && l.runTodo != nil && l.config.ExpertModeTodoLoopNum > 0 && iterCount%l.config.ExpertModeTodoLoopNum == 0 {
			if summary, tErr := l.runTodo(ctx, task, history); tErr == nil && summary != "" {
				history = append(history, models.AgentMessage{Role: models.RoleUser, Content: summary})
			}
		}
	}
}

func (l *Loop) haltResult(halt *react.HaltError, lastResponse string, iterCount int, history []models.AgentMessage) *Result {
	switch halt.Reason {
	case react.HaltMaxIdle:
		text := lastResponse
		if text == "" {
			text = "Unfinished"
		}
		return &Result{Success: false, StopReason: StopLength, Text: text, Iterations: iterCount, History: history}
	case react.HaltMaxErrors:
		return &Result{Success: false, StopReason: StopError, Error: halt, Iterations: iterCount, History: history}
	default: // HaltMaxIterations
		return &Result{Success: false, StopReason: StopLength, Error: halt, Iterations: iterCount, History: history}
	}
}

// collectedCall is one fully-aggregated tool-call request, after dedup.
type collectedCall struct {
	ID   string
	Name string
	Args map[string]any
}

// consumeStream relays a stream to the event emitter, demultiplexing
// thinking from visible text incrementally (spec §4.3's "two observers per
// iteration"), and aggregates tool-call deltas by id.
func consumeStream(ctx context.Context, emitter *events.Emitter, stream <-chan llm.StreamChunk, textStreamID, thinkingStreamID string) (raw string, calls []collectedCall, finishReason string, usage models.Usage, err error) {
	var b strings.Builder
	lastVisibleLen, lastThinkingLen := 0, 0

	type pending struct {
		name string
		args strings.Builder
	}
	order := []string{}
	byID := map[string]*pending{}

	for chunk := range stream {
		switch chunk.Kind {
		case llm.ChunkDelta:
			b.WriteString(chunk.Text)
			raw = b.String()

			split := llm.SplitThinking(raw)
			if len(split.Thinking) > lastThinkingLen {
				emitter.Thinking(ctx, thinkingStreamID, split.Thinking[lastThinkingLen:], false)
				lastThinkingLen = len(split.Thinking)
			}
			if len(split.Visible) > lastVisibleLen {
				emitter.Text(ctx, textStreamID, split.Visible[lastVisibleLen:], false)
				lastVisibleLen = len(split.Visible)
			}

			for _, tc := range chunk.ToolCalls {
				p, ok := byID[tc.ID]
				if !ok {
					p = &pending{}
					byID[tc.ID] = p
					order = append(order, tc.ID)
					emitter.Emit(ctx, models.CallbackMessage{Type: models.CallbackToolStreaming, ToolName: tc.Name, ToolCallID: tc.ID})
				}
				if tc.Name != "" {
					p.name = tc.Name
				}
				p.args.WriteString(tc.Args)
			}
		case llm.ChunkFinish:
			finishReason = chunk.FinishReason
			usage = chunk.Usage
		case llm.ChunkError:
			err = chunk.Err
		}
	}
	if err != nil {
		return raw, nil, finishReason, usage, err
	}

	emitter.Thinking(ctx, thinkingStreamID, "", true)
	emitter.Text(ctx, textStreamID, "", true)

	for _, id := range order {
		p := byID[id]
		var args map[string]any
		if p.args.Len() > 0 {
			_ = json.Unmarshal([]byte(p.args.String()), &args)
		}
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, collectedCall{ID: id, Name: p.name, Args: args})
		argsJSON, _ := json.Marshal(args)
		emitter.Emit(ctx, models.CallbackMessage{Type: models.CallbackToolUse, ToolName: p.name, ToolCallID: id, ToolParams: args, ToolParamsText: string(argsJSON)})
	}

	calls = dedupeCalls(calls)
	return raw, calls, finishReason, usage, nil
}

// dedupeCalls removes duplicate tool-call requests with the same (name,
// canonical-JSON-args) key, keeping the first occurrence (spec §4.8's
// "deduplicating by (name, JSON(args))" / "deduplication uses stable key
// canonicalization").
func dedupeCalls(calls []collectedCall) []collectedCall {
	seen := make(map[string]struct{}, len(calls))
	out := make([]collectedCall, 0, len(calls))
	for _, c := range calls {
		argsJSON, _ := json.Marshal(c.Args) // encoding/json sorts map keys, giving a stable key
		key := c.Name + "\x00" + string(argsJSON)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// buildAssistantMessage renders an assistant turn with text first, then
// tool-call parts in receipt order (spec §4.8's determinism note).
func buildAssistantMessage(visibleText string, calls []collectedCall) models.AgentMessage {
	parts := make([]models.MessagePart, 0, len(calls)+1)
	if visibleText != "" {
		parts = append(parts, models.MessagePart{Type: models.PartText, Text: visibleText})
	}
	for _, c := range calls {
		argsJSON, _ := json.Marshal(c.Args)
		parts = append(parts, models.MessagePart{
			Type:         models.PartToolCall,
			ToolCallID:   c.ID,
			ToolCallName: c.Name,
			ToolCallArgs: argsJSON,
		})
	}
	return models.AgentMessage{Role: models.RoleAssistant, Parts: parts}
}

// confirmAndExecute gates a tool call through HumanInLoop.OnConfirm when its
// name is in the loop's ConfirmTools set (spec §6), then dispatches it. A
// denial or a confirmation error becomes a non-throwing error ToolResult,
// same as any other tool-exec failure (spec §7's "Tool-exec" category).
func (l *Loop) confirmAndExecute(ctx context.Context, registry *tools.Registry, call collectedCall) *models.ToolResult {
	if l.confirmTools[call.Name] {
		argsJSON, _ := json.Marshal(call.Args)
		prompt := fmt.Sprintf("Allow tool %q with args %s?", call.Name, argsJSON)
		ok, err := l.confirm.OnConfirm(ctx, prompt)
		if err != nil {
			return models.TextResult(fmt.Sprintf("confirmation for %q failed: %v", call.Name, err), true)
		}
		if !ok {
			return models.TextResult(fmt.Sprintf("tool %q was not confirmed by the user", call.Name), true)
		}
	}
	return executeTool(ctx, registry, call)
}

// executeTool looks up and invokes a single tool call (spec §4.8 step 7a-b):
// an absent tool or a panicking/erroring execution becomes a non-throwing
// error ToolResult rather than propagating.
func executeTool(ctx context.Context, registry *tools.Registry, call collectedCall) (result *models.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			result = models.TextResult(fmt.Sprintf("tool %q panicked: %v", call.Name, r), true)
		}
	}()

	if _, ok := registry.Get(call.Name); !ok {
		return models.TextResult("tool not found: "+call.Name, true)
	}

	argsJSON, err := json.Marshal(call.Args)
	if err != nil {
		return models.TextResult("invalid tool arguments: "+err.Error(), true)
	}

	res, err := registry.Execute(ctx, call.Name, argsJSON)
	if err != nil {
		return models.TextResult(err.Error(), true)
	}
	return res
}

// maintainContext implements spec §4.8 step 3: retain only the most recent
// image/file attachment across the whole history, and truncate any older
// oversized tool-result text, so repeated large attachments don't dominate
// every subsequent LLM call.
func (l *Loop) maintainContext(history []models.AgentMessage) []models.AgentMessage {
	maxAttachments := l.config.MaxRecentAttachments
	if maxAttachments <= 0 {
		maxAttachments = 1
	}
	maxChars := l.config.MaxToolResultChars
	if maxChars <= 0 {
		maxChars = 4000
	}

	fileIdx := findRecentFileParts(history, maxAttachments)

	out := make([]models.AgentMessage, len(history))
	for i, msg := range history {
		out[i] = msg
		if len(msg.Parts) == 0 {
			continue
		}
		parts := make([]models.MessagePart, len(msg.Parts))
		copy(parts, msg.Parts)
		for j, p := range parts {
			switch p.Type {
			case models.PartFile:
				if !fileIdx[[2]int{i, j}] {
					parts[j] = models.MessagePart{Type: models.PartText, Text: fmt.Sprintf("[older %s attachment omitted]", p.FileMime)}
				}
			case models.PartToolResult:
				if p.ToolResultValue != nil {
					joined := p.ToolResultValue.JoinedText()
					if len(joined) > maxChars && i < len(history)-4 {
						placeholder := *p.ToolResultValue
						placeholder.Content = []models.ResultContent{{Type: models.ResultContentText, Text: joined[:maxChars] + "\n...[truncated]..."}}
						parts[j].ToolResultValue = &placeholder
					}
				}
			}
		}
		out[i].Parts = parts
	}
	return out
}

func findRecentFileParts(history []models.AgentMessage, keep int) map[[2]int]bool {
	type loc struct{ i, j int }
	var locs []loc
	for i, msg := range history {
		for j, p := range msg.Parts {
			if p.Type == models.PartFile {
				locs = append(locs, loc{i, j})
			}
		}
	}
	out := make(map[[2]int]bool, keep)
	start := len(locs) - keep
	if start < 0 {
		start = 0
	}
	for _, l := range locs[start:] {
		out[[2]int{l.i, l.j}] = true
	}
	return out
}

func asLLMTools(registry *tools.Registry) []llm.Tool {
	if registry == nil {
		return nil
	}
	raw := registry.AsLLMTools()
	out := make([]llm.Tool, 0, len(raw))
	for _, t := range raw {
		var schema map[string]any
		_ = json.Unmarshal(t.Schema(), &schema)
		out = append(out, llm.Tool{Name: t.Name(), Description: t.Description(), Schema: schema})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
