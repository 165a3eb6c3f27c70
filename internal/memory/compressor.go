// Package memory implements the spec §4.5 Memory Compressor: LLM-summarized
// history compaction with a recursive-target fallback to intelligent
// truncation, preserving tool-call id bindings across the rewrite.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/orbitx-labs/agentcore/pkg/models"
)

// Config tunes the compressor's triggers and targets.
type Config struct {
	// CompressThreshold is the message-count heuristic that triggers
	// compression (spec §6 configuration list).
	CompressThreshold int
	// TargetChars is the maximum length of a single compression pass.
	TargetChars int
	// ShrinkFactor is applied to TargetChars on each recursive pass.
	ShrinkFactor float64
	// MaxPasses bounds the recursive-shrink loop.
	MaxPasses int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CompressThreshold: 20,
		TargetChars:       4000,
		ShrinkFactor:      0.8,
		MaxPasses:         4,
	}
}

// Summarizer produces a natural-language summary of a rendered transcript.
// Implementations typically call a dedicated planning-model LLM request.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string, targetChars int) (string, error)
}

// Compressor runs the compaction pipeline of spec §4.5.
type Compressor struct {
	summarizer Summarizer
	config     *Config
}

// NewCompressor constructs a Compressor. summarizer may be nil, in which
// case Compress always falls back to intelligent truncation.
func NewCompressor(summarizer Summarizer, config *Config) *Compressor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Compressor{summarizer: summarizer, config: config}
}

// ShouldCompress reports whether messages/err meet any of spec §4.5's
// trigger conditions: message count >= threshold, an error message
// mentioning tokens/too-long, or a length finish with history >= 5.
func (c *Compressor) ShouldCompress(messages []models.AgentMessage, errMsg string, finishReason string) bool {
	if len(messages) >= c.config.CompressThreshold {
		return true
	}
	lower := strings.ToLower(errMsg)
	if strings.Contains(lower, "tokens") || strings.Contains(lower, "too long") {
		return true
	}
	if finishReason == "length" && len(messages) >= 5 {
		return true
	}
	return false
}

// Compress produces a shorter message history, preserving the invariant
// that every assistant tool-call id has a matching tool-role result and
// vice versa (spec §4.5's invariant).
func (c *Compressor) Compress(ctx context.Context, messages []models.AgentMessage) ([]models.AgentMessage, error) {
	if len(messages) == 0 {
		return messages, nil
	}

	boundary := splitPreservingBindings(messages)
	if boundary == 0 {
		return messages, nil
	}
	toCompress := messages[:boundary]
	tail := messages[boundary:]

	summaryText, err := c.summarizeWithRecursiveShrink(ctx, toCompress, c.config.TargetChars, 0)
	if err != nil {
		summaryText = intelligentTruncate(renderTranscript(toCompress))
	}

	summaryMsg := models.AgentMessage{Role: models.RoleSystem, Content: "[compacted history]\n" + summaryText}
	out := append([]models.AgentMessage{summaryMsg}, tail...)
	return out, nil
}

// AggregateChildResults prepends per-task headers to child-task transcripts
// and runs the same compaction pipeline, for multi-agent result aggregation
// (spec §4.5).
func (c *Compressor) AggregateChildResults(ctx context.Context, results map[string][]models.AgentMessage) ([]models.AgentMessage, error) {
	var combined []models.AgentMessage
	for taskID, msgs := range results {
		combined = append(combined, models.AgentMessage{Role: models.RoleSystem, Content: fmt.Sprintf("== task %s ==", taskID)})
		combined = append(combined, msgs...)
	}
	return c.Compress(ctx, combined)
}

func (c *Compressor) summarizeWithRecursiveShrink(ctx context.Context, messages []models.AgentMessage, target int, pass int) (string, error) {
	if c.summarizer == nil {
		return "", errors.New("memory: no summarizer configured")
	}
	transcript := renderTranscript(messages)
	summary, err := c.summarizer.Summarize(ctx, transcript, target)
	if err != nil {
		return "", err
	}
	if len(summary) <= target || pass >= c.config.MaxPasses {
		return summary, nil
	}
	return c.summarizeWithRecursiveShrinkFromText(ctx, summary, int(float64(target)*c.config.ShrinkFactor), pass+1)
}

func (c *Compressor) summarizeWithRecursiveShrinkFromText(ctx context.Context, text string, target int, pass int) (string, error) {
	summary, err := c.summarizer.Summarize(ctx, text, target)
	if err != nil {
		return "", err
	}
	if len(summary) <= target || pass >= c.config.MaxPasses {
		return summary, nil
	}
	return c.summarizeWithRecursiveShrinkFromText(ctx, summary, int(float64(target)*c.config.ShrinkFactor), pass+1)
}

// intelligentTruncate keeps the first 35% and last 30% of the transcript,
// inserting a placeholder marker for the cut range (spec §4.5 fallback).
func intelligentTruncate(transcript string) string {
	n := len(transcript)
	if n == 0 {
		return transcript
	}
	headEnd := int(float64(n) * 0.35)
	tailStart := n - int(float64(n)*0.30)
	if tailStart < headEnd {
		tailStart = headEnd
	}
	return transcript[:headEnd] + "\n...[truncated]...\n" + transcript[tailStart:]
}

func renderTranscript(messages []models.AgentMessage) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Text())
	}
	return b.String()
}

// splitPreservingBindings returns the index where the trailing run of
// tool-role and tool-calling assistant messages begins, so the prefix before
// it never ends between an assistant tool-call message and its tool-result
// message. Complete trailing call/result pairs are kept in the suffix too.
func splitPreservingBindings(messages []models.AgentMessage) int {
	// Keep the trailing tool/assistant-with-pending-calls pairs intact by
	// scanning backward from the end and stopping at the first message
	// that isn't part of an open tool-call/tool-result pair.
	boundary := len(messages)
	for boundary > 0 {
		prev := boundary - 1
		if messages[prev].Role == models.RoleTool {
			boundary = prev
			continue
		}
		if messages[prev].Role == models.RoleAssistant && len(messages[prev].ToolCallIDs()) > 0 {
			boundary = prev
			continue
		}
		break
	}
	if boundary == 0 {
		// Nothing compressible without breaking a binding; compress
		// nothing and leave history untouched.
		return 0
	}
	return boundary
}
