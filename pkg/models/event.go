package models

import "time"

// CallbackMessageType identifies the variant of a CallbackMessage. The set is
// closed per spec §6: the host implements a single on_message(Message) sink
// and switches on Type.
type CallbackMessageType string

const (
	CallbackTask            CallbackMessageType = "task"
	CallbackAgentStart      CallbackMessageType = "agent_start"
	CallbackText            CallbackMessageType = "text"
	CallbackThinking        CallbackMessageType = "thinking"
	CallbackFile            CallbackMessageType = "file"
	CallbackToolStreaming   CallbackMessageType = "tool_streaming"
	CallbackToolUse         CallbackMessageType = "tool_use"
	CallbackToolResult      CallbackMessageType = "tool_result"
	CallbackAgentResult     CallbackMessageType = "agent_result"
	CallbackError           CallbackMessageType = "error"
	CallbackFinish          CallbackMessageType = "finish"
	CallbackTaskStatus      CallbackMessageType = "task_status"
	CallbackTaskSpawn       CallbackMessageType = "task_spawn"
	CallbackTaskTreeUpdate  CallbackMessageType = "task_tree_update"
	CallbackTaskPause       CallbackMessageType = "task_pause"
	CallbackTaskResume      CallbackMessageType = "task_resume"
	CallbackTaskChildResult CallbackMessageType = "task_child_result"
)

// Usage reports token accounting for a finish event.
type Usage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// CallbackMessage is the single host-facing event shape of spec §6's
// on_message(Message, agent_context?) sink. Exactly the fields relevant to
// Type are populated.
type CallbackMessage struct {
	Type CallbackMessageType `json:"type"`
	Time time.Time           `json:"time"`

	// Monotonic within a run; assigned by the emitter.
	Sequence uint64 `json:"sequence"`

	// CallbackTask / CallbackAgentResult / CallbackTaskSpawn
	StreamDone bool  `json:"stream_done,omitempty"`
	Task       *Task `json:"task,omitempty"`

	// CallbackText / CallbackThinking
	StreamID string `json:"stream_id,omitempty"`
	Text     string `json:"text,omitempty"`

	// CallbackFile
	Mime string `json:"mime,omitempty"`
	Data []byte `json:"data,omitempty"`

	// CallbackToolStreaming / CallbackToolUse / CallbackToolResult
	ToolName       string         `json:"tool_name,omitempty"`
	ToolCallID     string         `json:"tool_call_id,omitempty"`
	ToolParamsText string         `json:"tool_params_text,omitempty"`
	ToolParams     map[string]any `json:"tool_params,omitempty"`
	ToolResult     *ToolResult    `json:"tool_result,omitempty"`

	// CallbackAgentResult
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	// CallbackFinish
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`

	// CallbackTaskStatus
	Status TaskStatus `json:"status,omitempty"`

	// CallbackTaskSpawn / CallbackTaskTreeUpdate / CallbackTaskChildResult
	ParentID   string   `json:"parent_id,omitempty"`
	RootID     string   `json:"root_id,omitempty"`
	ChildIDs   []string `json:"child_ids,omitempty"`
	RemovedIDs []string `json:"removed_ids,omitempty"`
	Summary    string   `json:"summary,omitempty"`

	// CallbackTaskPause / CallbackTaskResume
	Reason string `json:"reason,omitempty"`
}
