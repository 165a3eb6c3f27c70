// Package models defines the core data types shared across the agent engine:
// messages, tool calls/results, tasks and task nodes, and react iterations.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the author of an AgentMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType discriminates the variants of a MessagePart.
type PartType string

const (
	PartText       PartType = "text"
	PartFile       PartType = "file"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// MessagePart is one element of an AgentMessage's content when the content
// is not a plain string. Exactly the fields relevant to Type are populated.
type MessagePart struct {
	Type PartType `json:"type"`

	// PartText
	Text string `json:"text,omitempty"`

	// PartFile
	FileData []byte `json:"file_data,omitempty"`
	FileMime string `json:"file_mime,omitempty"`

	// PartToolCall
	ToolCallID   string          `json:"tool_call_id,omitempty"`
	ToolCallName string          `json:"tool_call_name,omitempty"`
	ToolCallArgs json.RawMessage `json:"tool_call_args,omitempty"`

	// PartToolResult
	ToolResultID     string      `json:"tool_result_id,omitempty"`
	ToolResultName   string      `json:"tool_result_name,omitempty"`
	ToolResultValue  *ToolResult `json:"tool_result_value,omitempty"`
}

// AgentMessage is one turn of the conversation fed to and produced by the LLM.
//
// Invariant: a Role==RoleTool message's Parts are all PartToolResult parts.
// Invariant: a Role==RoleAssistant message's PartToolCall parts must be answered
// by a subsequent RoleTool message whose parts reference the same ids, in the
// same order.
type AgentMessage struct {
	Role Role `json:"role"`

	// Content is the plain-string form. Exactly one of Content/Parts is used;
	// a message built from parts leaves Content empty.
	Content string `json:"content,omitempty"`

	// Parts is the structured form for messages carrying tool calls, tool
	// results, or file attachments alongside text.
	Parts []MessagePart `json:"parts,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Text returns the flattened visible text of the message, concatenating any
// PartText parts when Content is empty.
func (m AgentMessage) Text() string {
	if m.Content != "" {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// ToolCallParts returns the PartToolCall parts of the message, in order.
func (m AgentMessage) ToolCallParts() []MessagePart {
	var out []MessagePart
	for _, p := range m.Parts {
		if p.Type == PartToolCall {
			out = append(out, p)
		}
	}
	return out
}

// ToolCallIDs returns the ids of every PartToolCall part, in receipt order.
func (m AgentMessage) ToolCallIDs() []string {
	parts := m.ToolCallParts()
	ids := make([]string, len(parts))
	for i, p := range parts {
		ids[i] = p.ToolCallID
	}
	return ids
}

// NativeToolCall is a single tool invocation requested by the assistant.
type NativeToolCall struct {
	// ID is unique per assistant message.
	ID   string `json:"id"`
	Name string `json:"name"`
	// Args is an unordered map of call arguments.
	Args map[string]any `json:"args"`
}

// ResultContentType discriminates ToolResult content entries.
type ResultContentType string

const (
	ResultContentText  ResultContentType = "text"
	ResultContentImage ResultContentType = "image"
	ResultContentFile  ResultContentType = "file"
)

// ResultContent is one entry of a ToolResult's ordered content sequence.
type ResultContent struct {
	Type ResultContentType `json:"type"`
	Text string            `json:"text,omitempty"`
	Data []byte            `json:"data,omitempty"`
	Mime string            `json:"mime,omitempty"`
}

// ToolResult is the outcome of executing a NativeToolCall.
type ToolResult struct {
	Content []ResultContent `json:"content"`
	IsError bool            `json:"is_error,omitempty"`
	// ExtInfo carries adapter-specific metadata (e.g. MCP server id) that
	// does not participate in LLM-facing serialization.
	ExtInfo map[string]any `json:"-"`
}

// TextResult is a convenience constructor for a single-text-part result.
func TextResult(text string, isError bool) *ToolResult {
	return &ToolResult{Content: []ResultContent{{Type: ResultContentText, Text: text}}, IsError: isError}
}

// JoinedText concatenates the text content entries of a result.
func (r *ToolResult) JoinedText() string {
	if r == nil {
		return ""
	}
	var out string
	for _, c := range r.Content {
		if c.Type == ResultContentText {
			out += c.Text
		}
	}
	return out
}
