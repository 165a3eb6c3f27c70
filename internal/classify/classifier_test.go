package classify

import (
	"context"
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		category  Category
		retryable bool
	}{
		{"rate limit", errors.New("429 rate limit exceeded"), CategoryRateLimit, true},
		{"unauthorized", errors.New("401 unauthorized"), CategoryAuth, false},
		{"timeout", errors.New("dial tcp: i/o timeout"), CategoryNetwork, true},
		{"econnrefused", errors.New("dial tcp: connection refused (ECONNREFUSED)"), CategoryNetwork, true},
		{"context length", errors.New("this model's maximum context length is 4096 tokens"), CategoryContextLength, true},
		{"validation", errors.New("validation failed: required field missing"), CategoryValidation, false},
		{"model rejected", errors.New("model overloaded"), CategoryModel, false},
		{"unknown", errors.New("something weird happened"), CategoryUnknown, true},
		{"context canceled", context.Canceled, CategoryCancellation, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if got.Category != tc.category {
				t.Errorf("category = %q, want %q", got.Category, tc.category)
			}
			if got.Retryable != tc.retryable {
				t.Errorf("retryable = %v, want %v", got.Retryable, tc.retryable)
			}
		})
	}
}

func TestClassifyAuthNeverRetryable(t *testing.T) {
	c := Classify(errors.New("invalid api key"))
	if c.Category != CategoryAuth || c.Retryable {
		t.Fatalf("auth errors must never be retryable, got %+v", c)
	}
}

func TestClassifyIdempotentOnAlreadyClassified(t *testing.T) {
	first := Classify(errors.New("429 too many requests"))
	second := Classify(first)
	if second.Category != first.Category {
		t.Fatalf("re-classifying a Classified error changed category: %q -> %q", first.Category, second.Category)
	}
}

func TestClassifyToolError(t *testing.T) {
	c := ClassifyToolError(errors.New("boom"))
	if c.Category != CategoryToolExec || c.Retryable {
		t.Fatalf("tool errors must be non-retryable tool_exec, got %+v", c)
	}
}

func TestHumanMessage(t *testing.T) {
	if HumanMessage(CategoryAuth) == "" {
		t.Fatal("expected non-empty human message for auth category")
	}
	if HumanMessage(Category("bogus")) != HumanMessage(CategoryUnknown) {
		t.Fatal("unknown category should fall back to the unknown message")
	}
}
