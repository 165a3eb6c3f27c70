package models

import (
	"encoding/json"
	"testing"
)

func TestAgentMessage_TextPrefersContent(t *testing.T) {
	m := AgentMessage{Content: "hello", Parts: []MessagePart{{Type: PartText, Text: "ignored"}}}
	if got := m.Text(); got != "hello" {
		t.Errorf("Text() = %q, want %q", got, "hello")
	}
}

func TestAgentMessage_TextFlattensParts(t *testing.T) {
	m := AgentMessage{Parts: []MessagePart{
		{Type: PartText, Text: "foo"},
		{Type: PartToolCall, ToolCallID: "tc-1"},
		{Type: PartText, Text: "bar"},
	}}
	if got := m.Text(); got != "foobar" {
		t.Errorf("Text() = %q, want %q", got, "foobar")
	}
}

func TestAgentMessage_ToolCallIDs(t *testing.T) {
	m := AgentMessage{Role: RoleAssistant, Parts: []MessagePart{
		{Type: PartText, Text: "thinking"},
		{Type: PartToolCall, ToolCallID: "tc-1", ToolCallName: "echo"},
		{Type: PartToolCall, ToolCallID: "tc-2", ToolCallName: "search"},
	}}
	ids := m.ToolCallIDs()
	if len(ids) != 2 || ids[0] != "tc-1" || ids[1] != "tc-2" {
		t.Fatalf("ToolCallIDs() = %v, want [tc-1 tc-2]", ids)
	}
}

func TestAgentMessage_JSONRoundTrip(t *testing.T) {
	original := AgentMessage{
		Role: RoleTool,
		Parts: []MessagePart{
			{Type: PartToolResult, ToolResultID: "tc-1", ToolResultName: "echo", ToolResultValue: TextResult("hi", false)},
		},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var decoded AgentMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if len(decoded.Parts) != 1 || decoded.Parts[0].ToolResultID != "tc-1" {
		t.Fatalf("decoded parts = %+v", decoded.Parts)
	}
	if decoded.Parts[0].ToolResultValue.JoinedText() != "hi" {
		t.Errorf("JoinedText() = %q, want %q", decoded.Parts[0].ToolResultValue.JoinedText(), "hi")
	}
}

func TestToolResult_JoinedText(t *testing.T) {
	r := &ToolResult{Content: []ResultContent{
		{Type: ResultContentText, Text: "a"},
		{Type: ResultContentImage, Data: []byte{0x1}},
		{Type: ResultContentText, Text: "b"},
	}}
	if got := r.JoinedText(); got != "ab" {
		t.Errorf("JoinedText() = %q, want %q", got, "ab")
	}
}

func TestToolResult_JoinedTextNilSafe(t *testing.T) {
	var r *ToolResult
	if got := r.JoinedText(); got != "" {
		t.Errorf("JoinedText() on nil = %q, want empty", got)
	}
}

func TestTextResult(t *testing.T) {
	r := TextResult("boom", true)
	if !r.IsError || r.JoinedText() != "boom" {
		t.Errorf("TextResult = %+v", r)
	}
}
