// Package llm wraps a provider-specific streaming completion call behind a
// uniform StreamingClient, demultiplexing chunks, retrying through
// internal/retry, and triggering compression on context-overflow (spec §4.3).
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/orbitx-labs/agentcore/internal/retry"
	"github.com/orbitx-labs/agentcore/pkg/models"
)

// Tool is the LLM-facing schema of a registered tool.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Request is a single completion request.
type Request struct {
	Model       string
	Messages    []models.AgentMessage
	System      string
	Tools       []Tool
	Temperature float64
	MaxTokens   int
}

// Validate checks the request against spec §4.3's preconditions.
func (r *Request) Validate() error {
	if r.Model == "" {
		return errors.New("validation: model must not be empty")
	}
	if len(r.Messages) == 0 {
		return errors.New("validation: messages must not be empty")
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("validation: temperature %v out of range [0,2]", r.Temperature)
	}
	if r.MaxTokens <= 0 {
		return errors.New("validation: max_tokens must be > 0")
	}
	return nil
}

// ChunkKind discriminates StreamChunk variants.
type ChunkKind string

const (
	ChunkDelta  ChunkKind = "delta"
	ChunkFinish ChunkKind = "finish"
	ChunkError  ChunkKind = "error"
)

// ToolCallDelta is a (possibly partial) tool-call fragment emitted mid-stream.
type ToolCallDelta struct {
	ID   string
	Name string
	Args string // raw, possibly-incomplete JSON fragment
}

// StreamChunk is one unit of a streaming completion, tagged by Kind.
type StreamChunk struct {
	Kind ChunkKind

	// ChunkDelta
	Text      string
	ToolCalls []ToolCallDelta

	// ChunkFinish
	FinishReason string
	Usage        models.Usage

	// ChunkError
	Err error
}

// Provider is the minimal seam a concrete LLM wire protocol implements; the
// concrete protocol itself is out of scope per spec §1, only this interface
// is in scope.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error)
}

// CompressFn summarizes or truncates a message history when the stream
// signals overflow; wired to internal/memory by the caller (C5).
type CompressFn func(ctx context.Context, messages []models.AgentMessage) ([]models.AgentMessage, error)

// Client wraps a Provider with retry, a composite cancellation token, and
// compression-triggered re-entry (spec §4.3).
type Client struct {
	provider   Provider
	retryMgr   *retry.Manager
	compress   CompressFn
	maxRetries int
}

// NewClient constructs a Client. compress may be nil, in which case
// context-overflow re-entry is skipped and the overflow error propagates.
func NewClient(provider Provider, retryMgr *retry.Manager, compress CompressFn) *Client {
	return &Client{provider: provider, retryMgr: retryMgr, compress: compress, maxRetries: 1}
}

// Call runs req to completion (no incremental callbacks) and returns the
// final chunk along with the concatenated text.
func (c *Client) Call(ctx context.Context, req *Request) (string, *StreamChunk, error) {
	var finalText string
	var final *StreamChunk

	ch, err := c.CallStream(ctx, req)
	if err != nil {
		return "", nil, err
	}
	for chunk := range ch {
		switch chunk.Kind {
		case ChunkDelta:
			finalText += chunk.Text
		case ChunkFinish:
			f := chunk
			final = &f
		case ChunkError:
			return finalText, nil, chunk.Err
		}
	}
	return finalText, final, nil
}

// CallStream validates req, then drives the provider stream through the
// retry manager, compressing and re-entering on context-length overflow.
func (c *Client) CallStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	go c.run(ctx, req, out, 0)
	return out, nil
}

func (c *Client) run(ctx context.Context, req *Request, out chan<- StreamChunk, retryCount int) {
	defer close(out)

	attempt := 0
	op := func(ctx context.Context, _ int) (struct{}, error) {
		for {
			upstream, err := c.provider.Stream(ctx, req)
			if err != nil {
				return struct{}{}, err
			}
			err = c.pump(ctx, req, upstream, out, attempt)
			var overflow *overflowSignal
			if !errors.As(err, &overflow) {
				return struct{}{}, err
			}
			attempt++
		}
	}

	mgr := c.retryMgr
	if mgr == nil {
		mgr = retry.NewManager(retry.DefaultPolicy())
	}

	opID := "llm:" + c.provider.Name() + ":" + req.Model
	for {
		_, err := retry.Execute(ctx, mgr, opID, op)
		if err == nil {
			return
		}
		var overflow *overflowSignal
		if errors.As(err, &overflow) {
			attempt++
			continue
		}
		select {
		case out <- StreamChunk{Kind: ChunkError, Err: err}:
		case <-ctx.Done():
		}
		return
	}
}

// overflowSignal is returned internally by pump to trigger a compress+re-enter
// cycle without the retry manager treating it as a normal retryable failure.
type overflowSignal struct{ cause error }

func (o *overflowSignal) Error() string { return "context overflow: " + o.cause.Error() }
func (o *overflowSignal) Unwrap() error { return o.cause }

// pump relays upstream chunks to out, and on a length-finish with a long
// enough history triggers compression followed by one re-entry (spec §4.3:
// "history >= 5 messages and compression is permitted").
func (c *Client) pump(ctx context.Context, req *Request, upstream <-chan StreamChunk, out chan<- StreamChunk, retryCount int) error {
	// Deltas are buffered rather than relayed as they arrive, since a
	// length-finish on this attempt discards everything seen so far in
	// favor of the re-entered attempt's output; only a non-retried finish
	// (or upstream closing) flushes the buffer to out.
	var buffered []StreamChunk
	flush := func() error {
		for _, ch := range buffered {
			select {
			case out <- ch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-upstream:
			if !ok {
				return flush()
			}
			switch chunk.Kind {
			case ChunkError:
				return chunk.Err
			case ChunkFinish:
				if chunk.FinishReason == "length" && len(req.Messages) >= 5 && c.compress != nil && retryCount == 0 {
					compressed, err := c.compress(ctx, req.Messages)
					if err != nil {
						if ferr := flush(); ferr != nil {
							return ferr
						}
						select {
						case out <- chunk:
						case <-ctx.Done():
							return ctx.Err()
						}
						return nil
					}
					req.Messages = compressed
					return &overflowSignal{cause: errors.New("finish_reason=length, retrying after compression")}
				}
				if err := flush(); err != nil {
					return err
				}
				select {
				case out <- chunk:
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			default:
				buffered = append(buffered, chunk)
			}
		}
	}
}
