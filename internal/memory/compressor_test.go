package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/orbitx-labs/agentcore/pkg/models"
)

type fakeSummarizer struct {
	fn  func(ctx context.Context, transcript string, target int) (string, error)
	err error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, transcript string, target int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.fn != nil {
		return f.fn(ctx, transcript, target)
	}
	return "summary", nil
}

func textMsgs(n int) []models.AgentMessage {
	var out []models.AgentMessage
	for i := 0; i < n; i++ {
		out = append(out, models.AgentMessage{Role: models.RoleUser, Content: "message"})
	}
	return out
}

func TestShouldCompressThreshold(t *testing.T) {
	c := NewCompressor(nil, &Config{CompressThreshold: 5})
	if c.ShouldCompress(textMsgs(4), "", "") {
		t.Fatal("should not compress below threshold")
	}
	if !c.ShouldCompress(textMsgs(5), "", "") {
		t.Fatal("should compress at threshold")
	}
}

func TestShouldCompressEmptyHistoryNeverTriggers(t *testing.T) {
	c := NewCompressor(nil, DefaultConfig())
	if c.ShouldCompress(nil, "", "") {
		t.Fatal("empty history must never trigger compression")
	}
}

func TestShouldCompressTokenError(t *testing.T) {
	c := NewCompressor(nil, &Config{CompressThreshold: 1000})
	if !c.ShouldCompress(textMsgs(1), "too many tokens in request", "") {
		t.Fatal("token-related error should trigger compression")
	}
}

func TestShouldCompressLengthFinish(t *testing.T) {
	c := NewCompressor(nil, &Config{CompressThreshold: 1000})
	if c.ShouldCompress(textMsgs(4), "", "length") {
		t.Fatal("length finish with history < 5 should not trigger")
	}
	if !c.ShouldCompress(textMsgs(5), "", "length") {
		t.Fatal("length finish with history >= 5 should trigger")
	}
}

func TestCompressFallsBackToTruncationOnSummarizerFailure(t *testing.T) {
	c := NewCompressor(&fakeSummarizer{err: errors.New("llm down")}, DefaultConfig())
	msgs := textMsgs(10)
	out, err := c.Compress(context.Background(), msgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty compressed output")
	}
}

func TestCompressPreservesToolCallBindings(t *testing.T) {
	msgs := []models.AgentMessage{
		{Role: models.RoleUser, Content: "do something"},
		{Role: models.RoleAssistant, Parts: []models.MessagePart{
			{Type: models.PartToolCall, ToolCallID: "call-1", ToolCallName: "echo"},
		}},
		{Role: models.RoleTool, Parts: []models.MessagePart{
			{Type: models.PartToolResult, ToolResultID: "call-1", ToolResultValue: models.TextResult("hi", false)},
		}},
	}
	c := NewCompressor(&fakeSummarizer{}, DefaultConfig())
	out, err := c.Compress(context.Background(), msgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The trailing assistant/tool pair must survive untouched since the
	// split boundary cannot separate a tool-call from its result.
	foundAssistant, foundTool := false, false
	for _, m := range out {
		if m.Role == models.RoleAssistant && len(m.ToolCallIDs()) == 1 && m.ToolCallIDs()[0] == "call-1" {
			foundAssistant = true
		}
		if m.Role == models.RoleTool {
			for _, p := range m.Parts {
				if p.ToolResultID == "call-1" {
					foundTool = true
				}
			}
		}
	}
	if !foundAssistant || !foundTool {
		t.Fatalf("tool-call binding was broken by compression: %+v", out)
	}
}

func TestIntelligentTruncateKeepsHeadAndTail(t *testing.T) {
	text := ""
	for i := 0; i < 100; i++ {
		text += "x"
	}
	out := intelligentTruncate(text)
	if len(out) >= len(text) {
		t.Fatal("truncation should shorten the transcript")
	}
}

func TestAggregateChildResultsAddsHeaders(t *testing.T) {
	c := NewCompressor(&fakeSummarizer{}, DefaultConfig())
	results := map[string][]models.AgentMessage{
		"task-a": textMsgs(2),
	}
	out, err := c.AggregateChildResults(context.Background(), results)
	if err != nil {
		t.Fatalf("AggregateChildResults: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty aggregated output")
	}
}
