package providers

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/orbitx-labs/agentcore/internal/llm"
	"github.com/orbitx-labs/agentcore/pkg/models"
)

// OpenAIProvider adapts sashabaranov/go-openai's chat-completion streaming
// API to llm.Provider.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider constructs a provider from an API key.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey)}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.StreamChunk, error) {
	if p.client == nil {
		return nil, errors.New("openai: client not configured")
	}

	messages, err := convertOpenAIMessages(req.Messages, req.System)
	if err != nil {
		return nil, fmt.Errorf("openai: convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		Stream:    true,
		MaxTokens: req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, err
	}

	out := make(chan llm.StreamChunk)
	go processOpenAIStream(ctx, stream, out)
	return out, nil
}

type toolCallAccum struct {
	id, name, args string
}

func processOpenAIStream(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- llm.StreamChunk) {
	defer close(out)
	defer stream.Close()

	calls := make(map[int]*toolCallAccum)
	var promptTokens, completionTokens int

	for {
		select {
		case <-ctx.Done():
			out <- llm.StreamChunk{Kind: llm.ChunkError, Err: ctx.Err()}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				out <- llm.StreamChunk{
					Kind:         llm.ChunkFinish,
					FinishReason: "stop",
					Usage:        models.Usage{Prompt: promptTokens, Completion: completionTokens, Total: promptTokens + completionTokens},
				}
				return
			}
			out <- llm.StreamChunk{Kind: llm.ChunkError, Err: err}
			return
		}
		if resp.Usage != nil {
			promptTokens, completionTokens = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		if choice.Delta.Content != "" {
			out <- llm.StreamChunk{Kind: llm.ChunkDelta, Text: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			acc, ok := calls[idx]
			if !ok {
				acc = &toolCallAccum{}
				calls[idx] = acc
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			acc.args += tc.Function.Arguments
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			var deltas []llm.ToolCallDelta
			for _, acc := range calls {
				deltas = append(deltas, llm.ToolCallDelta{ID: acc.id, Name: acc.name, Args: acc.args})
			}
			if len(deltas) > 0 {
				out <- llm.StreamChunk{Kind: llm.ChunkDelta, ToolCalls: deltas}
			}
			calls = make(map[int]*toolCallAccum)
		}
		if choice.FinishReason == openai.FinishReasonLength {
			out <- llm.StreamChunk{Kind: llm.ChunkFinish, FinishReason: "length"}
			return
		}
	}
}

func convertOpenAIMessages(messages []models.AgentMessage, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleTool:
			for _, part := range msg.Parts {
				if part.Type != models.PartToolResult {
					continue
				}
				text := ""
				if part.ToolResultValue != nil {
					text = part.ToolResultValue.JoinedText()
				}
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    text,
					ToolCallID: part.ToolResultID,
				})
			}
		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Text()}
			for _, part := range msg.Parts {
				if part.Type != models.PartToolCall {
					continue
				}
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   part.ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      part.ToolCallName,
						Arguments: string(part.ToolCallArgs),
					},
				})
			}
			result = append(result, oaiMsg)
		default:
			result = append(result, openai.ChatCompletionMessage{Role: string(msg.Role), Content: msg.Text()})
		}
	}
	return result, nil
}

func convertOpenAITools(tools []llm.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}
	return out
}
