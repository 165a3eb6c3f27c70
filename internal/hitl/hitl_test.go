package hitl

import (
	"context"
	"testing"
)

func TestNoopHumanInLoop(t *testing.T) {
	var h HumanInLoop = NoopHumanInLoop{}
	ctx := context.Background()

	ok, err := h.OnConfirm(ctx, "proceed?")
	if err != nil || !ok {
		t.Fatalf("OnConfirm = %v, %v", ok, err)
	}

	in, err := h.OnInput(ctx, "name?")
	if err != nil || in != "" {
		t.Fatalf("OnInput = %q, %v", in, err)
	}

	sel, err := h.OnSelect(ctx, "pick", []string{"a", "b"}, false)
	if err != nil || sel != nil {
		t.Fatalf("OnSelect = %v, %v", sel, err)
	}

	ok, err = h.OnHelp(ctx, "warning", "continue?")
	if err != nil || !ok {
		t.Fatalf("OnHelp = %v, %v", ok, err)
	}
}
