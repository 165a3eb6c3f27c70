// Package events implements the spec §4.12 State/Event Emitter: a
// process-wide, type-tagged publish/subscribe bus for models.CallbackMessage
// values, plus the per-task TaskState record spec §4.12 describes.
//
// Grounded on internal/agent/event_emitter.go's atomic monotonic-sequence
// idiom and internal/agent/event_sink.go's EventSink/ChanSink/MultiSink
// fan-out shapes, generalized from the teacher's single AgentEvent type to
// this module's closed models.CallbackMessage variant set.
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orbitx-labs/agentcore/pkg/models"
)

// Sink receives callback messages. Implementations must be safe for
// concurrent use and must not block the emitter for long, per spec §5's
// "callers MUST observe cancellation within <= 500ms" suspension-point rule.
type Sink interface {
	Emit(ctx context.Context, msg models.CallbackMessage)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, msg models.CallbackMessage)

func (f SinkFunc) Emit(ctx context.Context, msg models.CallbackMessage) { f(ctx, msg) }

// MultiSink fans a message out to every attached sink. A panicking listener
// is caught and logged rather than propagated, per spec §4.12's "listeners
// catch exceptions individually".
type MultiSink struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger *slog.Logger
}

// NewMultiSink constructs an empty fan-out sink.
func NewMultiSink(logger *slog.Logger) *MultiSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiSink{logger: logger}
}

// Attach adds a sink to the fan-out set.
func (m *MultiSink) Attach(sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
}

// Emit dispatches msg to every attached sink, isolating each from the
// others' panics.
func (m *MultiSink) Emit(ctx context.Context, msg models.CallbackMessage) {
	m.mu.RLock()
	sinks := make([]Sink, len(m.sinks))
	copy(sinks, m.sinks)
	m.mu.RUnlock()

	for _, s := range sinks {
		m.emitSafely(ctx, s, msg)
	}
}

func (m *MultiSink) emitSafely(ctx context.Context, sink Sink, msg models.CallbackMessage) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("events: listener panicked", "recover", r, "message_type", msg.Type)
		}
	}()
	sink.Emit(ctx, msg)
}

// ChanSink relays messages onto a buffered channel, dropping the message
// rather than blocking when the channel is full.
type ChanSink struct {
	ch chan<- models.CallbackMessage
}

// NewChanSink wraps a channel as a Sink. The channel should be buffered.
func NewChanSink(ch chan<- models.CallbackMessage) *ChanSink {
	return &ChanSink{ch: ch}
}

// Emit sends msg, dropping it if the channel is full or ctx is done.
func (s *ChanSink) Emit(ctx context.Context, msg models.CallbackMessage) {
	select {
	case s.ch <- msg:
	case <-ctx.Done():
	default:
	}
}

// Emitter stamps and dispatches CallbackMessage values for a single task
// run, keeping the monotonic per-run sequence counter C6-C11 rely on for
// stable stream ids.
type Emitter struct {
	taskID   string
	sequence uint64
	sink     Sink
}

// NewEmitter constructs an Emitter for one task's event stream. A nil sink
// discards every message.
func NewEmitter(taskID string, sink Sink) *Emitter {
	if sink == nil {
		sink = SinkFunc(func(context.Context, models.CallbackMessage) {})
	}
	return &Emitter{taskID: taskID, sink: sink}
}

func (e *Emitter) nextSeq() uint64 {
	return atomic.AddUint64(&e.sequence, 1)
}

func (e *Emitter) base(t models.CallbackMessageType) models.CallbackMessage {
	return models.CallbackMessage{
		Type:     t,
		Time:     time.Now(),
		Sequence: e.nextSeq(),
	}
}

// Emit stamps msg's Type-independent fields (Time, Sequence) if unset and
// dispatches it to the sink.
func (e *Emitter) Emit(ctx context.Context, msg models.CallbackMessage) {
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	if msg.Sequence == 0 {
		msg.Sequence = e.nextSeq()
	}
	e.sink.Emit(ctx, msg)
}

// Text emits a progressive text delta under stream id.
func (e *Emitter) Text(ctx context.Context, streamID, text string, done bool) {
	msg := e.base(models.CallbackText)
	msg.StreamID = streamID
	msg.Text = text
	msg.StreamDone = done
	e.sink.Emit(ctx, msg)
}

// Thinking emits a progressive thinking delta under stream id.
func (e *Emitter) Thinking(ctx context.Context, streamID, text string, done bool) {
	msg := e.base(models.CallbackThinking)
	msg.StreamID = streamID
	msg.Text = text
	msg.StreamDone = done
	e.sink.Emit(ctx, msg)
}

// ToolUse announces a completed tool-call request.
func (e *Emitter) ToolUse(ctx context.Context, name, id string, params map[string]any) {
	msg := e.base(models.CallbackToolUse)
	msg.ToolName = name
	msg.ToolCallID = id
	msg.ToolParams = params
	e.sink.Emit(ctx, msg)
}

// ToolResult announces a tool invocation's result.
func (e *Emitter) ToolResult(ctx context.Context, name, id string, result *models.ToolResult) {
	msg := e.base(models.CallbackToolResult)
	msg.ToolName = name
	msg.ToolCallID = id
	msg.ToolResult = result
	e.sink.Emit(ctx, msg)
}

// Finish emits the iteration/run finish message with usage accounting.
func (e *Emitter) Finish(ctx context.Context, reason string, usage models.Usage) {
	msg := e.base(models.CallbackFinish)
	msg.FinishReason = reason
	msg.Usage = &usage
	e.sink.Emit(ctx, msg)
}

// Error emits an error message.
func (e *Emitter) Error(ctx context.Context, err error) {
	msg := e.base(models.CallbackError)
	if err != nil {
		msg.Error = err.Error()
	}
	e.sink.Emit(ctx, msg)
}

// TaskStatus emits a task_status message.
func (e *Emitter) TaskStatus(ctx context.Context, status models.TaskStatus) {
	msg := e.base(models.CallbackTaskStatus)
	msg.Status = status
	e.sink.Emit(ctx, msg)
}
