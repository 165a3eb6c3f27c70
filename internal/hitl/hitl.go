// Package hitl defines the spec §6 "Human-in-the-loop interface": the
// single collaborator interface a host implements to answer interactive
// prompts the agent loop blocks on mid-turn, separate from the one-way
// events.Sink callback stream.
package hitl

import "context"

// HumanInLoop is implemented by the host embedding the engine. Every method
// blocks the calling goroutine (the agent loop's single iteration) until the
// host answers or ctx is cancelled; implementations must therefore respect
// ctx per spec §5's suspension-point rule.
type HumanInLoop interface {
	// OnConfirm asks a yes/no question before a gated action proceeds.
	OnConfirm(ctx context.Context, prompt string) (bool, error)
	// OnInput asks for a single freeform text answer.
	OnInput(ctx context.Context, prompt string) (string, error)
	// OnSelect asks the user to pick from options, one or many per multiple.
	OnSelect(ctx context.Context, prompt string, options []string, multiple bool) ([]string, error)
	// OnHelp surfaces a help prompt of helpType and reports whether the user
	// wants to proceed anyway.
	OnHelp(ctx context.Context, helpType, prompt string) (bool, error)
}

// NoopHumanInLoop answers every prompt without blocking: confirmations are
// granted, inputs/selects are empty, help is dismissed. It is the default
// when a host supplies no interactive collaborator, matching spec §4.6/4.8's
// "unattended" operating mode.
type NoopHumanInLoop struct{}

func (NoopHumanInLoop) OnConfirm(context.Context, string) (bool, error) { return true, nil }
func (NoopHumanInLoop) OnInput(context.Context, string) (string, error) { return "", nil }
func (NoopHumanInLoop) OnSelect(context.Context, string, []string, bool) ([]string, error) {
	return nil, nil
}
func (NoopHumanInLoop) OnHelp(context.Context, string, string) (bool, error) { return true, nil }
