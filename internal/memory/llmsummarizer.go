package memory

import (
	"context"
	"fmt"

	"github.com/orbitx-labs/agentcore/internal/llm"
	"github.com/orbitx-labs/agentcore/pkg/models"
)

// LLMSummarizer implements Summarizer against an internal/llm.Client,
// grounded on internal/agent/context/summarize.go's SummaryProvider seam
// (a single completion call wrapping the transcript in a summarization
// prompt) adapted to this module's target-length contract.
type LLMSummarizer struct {
	client *llm.Client
	model  string
}

// NewLLMSummarizer constructs a Summarizer that asks model for a summary of
// at most targetChars characters on each call.
func NewLLMSummarizer(client *llm.Client, model string) *LLMSummarizer {
	return &LLMSummarizer{client: client, model: model}
}

// Summarize asks the configured model to compress transcript to at most
// targetChars characters, returning its visible text.
func (s *LLMSummarizer) Summarize(ctx context.Context, transcript string, targetChars int) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following conversation transcript in at most %d characters. "+
			"Preserve any tool names, file paths, and decisions made. Output only the summary.\n\n%s",
		targetChars, transcript)

	req := &llm.Request{
		Model:       s.model,
		Messages:    []models.AgentMessage{{Role: models.RoleUser, Content: prompt}},
		Temperature: 0,
		MaxTokens:   2048,
	}
	text, _, err := s.client.Call(ctx, req)
	if err != nil {
		return "", fmt.Errorf("memory: llm summarize: %w", err)
	}
	return text, nil
}
