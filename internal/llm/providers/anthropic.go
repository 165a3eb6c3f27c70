// Package providers supplies concrete C3 wire implementations. Per spec §1
// concrete provider protocols are out of scope; these exist only to give
// internal/llm.Client at least one real streaming implementation to drive.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/orbitx-labs/agentcore/internal/llm"
	"github.com/orbitx-labs/agentcore/pkg/models"
)

// AnthropicProvider adapts anthropic-sdk-go's streaming Messages API to
// llm.Provider.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider constructs a provider using the given API key. An
// empty key relies on the ANTHROPIC_API_KEY environment variable (the SDK
// default).
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...)}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.StreamChunk, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert messages: %w", err)
	}
	params.Messages = msgs

	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	out := make(chan llm.StreamChunk)
	go processStream(stream, out)
	return out, nil
}

func processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- llm.StreamChunk) {
	defer close(out)

	var currentID, currentName string
	var inputBuf string
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			inputTokens = int(ms.Message.Usage.InputTokens)
		case "content_block_start":
			cb := event.AsContentBlockStart().ContentBlock
			if cb.Type == "tool_use" {
				tu := cb.AsToolUse()
				currentID, currentName = tu.ID, tu.Name
				inputBuf = ""
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					out <- llm.StreamChunk{Kind: llm.ChunkDelta, Text: delta.Text}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					out <- llm.StreamChunk{Kind: llm.ChunkDelta, Text: "<thinking>" + delta.Thinking + "</thinking>"}
				}
			case "input_json_delta":
				inputBuf += delta.PartialJSON
			}
		case "content_block_stop":
			if currentID != "" {
				out <- llm.StreamChunk{Kind: llm.ChunkDelta, ToolCalls: []llm.ToolCallDelta{{ID: currentID, Name: currentName, Args: inputBuf}}}
				currentID, currentName, inputBuf = "", "", ""
			}
		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}
		case "message_stop":
			out <- llm.StreamChunk{
				Kind:         llm.ChunkFinish,
				FinishReason: "stop",
				Usage:        models.Usage{Prompt: inputTokens, Completion: outputTokens, Total: inputTokens + outputTokens},
			}
			return
		}
	}
	if err := stream.Err(); err != nil {
		out <- llm.StreamChunk{Kind: llm.ChunkError, Err: err}
	}
}

func convertMessages(messages []models.AgentMessage) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}
		var content []anthropic.ContentBlockParamUnion
		if text := msg.Text(); text != "" {
			content = append(content, anthropic.NewTextBlock(text))
		}
		for _, part := range msg.Parts {
			switch part.Type {
			case models.PartToolResult:
				text := ""
				if part.ToolResultValue != nil {
					text = part.ToolResultValue.JoinedText()
				}
				isErr := part.ToolResultValue != nil && part.ToolResultValue.IsError
				content = append(content, anthropic.NewToolResultBlock(part.ToolResultID, text, isErr))
			case models.PartToolCall:
				var input map[string]any
				if len(part.ToolCallArgs) > 0 {
					if err := json.Unmarshal(part.ToolCallArgs, &input); err != nil {
						return nil, errors.New("invalid tool call args: " + err.Error())
					}
				}
				content = append(content, anthropic.NewToolUseBlock(part.ToolCallID, input, part.ToolCallName))
			}
		}
		if len(content) == 0 {
			continue
		}
		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func convertTools(tools []llm.Tool) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := t.Schema["properties"]; ok {
			schema.Properties = props
		}
		out = append(out, anthropic.ToolUnionParamOfTool(schema, t.Name))
	}
	return out, nil
}
