package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() Policy {
	p := DefaultPolicy()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 10 * time.Millisecond
	p.RateLimitMinDelay = 5 * time.Millisecond
	p.CircuitBaseCooldown = 5 * time.Millisecond
	p.CircuitMaxCooldown = 20 * time.Millisecond
	return p
}

func TestExecuteSucceedsAfterRetryableFailures(t *testing.T) {
	m := NewManager(fastPolicy())
	calls := 0
	got, err := Execute(context.Background(), m, "op-network", func(_ context.Context, attempt int) (string, error) {
		calls++
		if attempt < 2 {
			return "", errors.New("connection refused")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("got %q, want ok", got)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestExecuteNonRetryableFailsImmediately(t *testing.T) {
	m := NewManager(fastPolicy())
	calls := 0
	_, err := Execute(context.Background(), m, "op-auth", func(_ context.Context, _ int) (string, error) {
		calls++
		return "", errors.New("401 unauthorized")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("auth errors must not be retried, got %d calls", calls)
	}
}

func TestCircuitOpensAfterFiveConsecutiveFailures(t *testing.T) {
	p := fastPolicy()
	p.MaxRetries = 0 // each Execute call is exactly one attempt -> one failure
	m := NewManager(p)

	for i := 0; i < 5; i++ {
		_, err := Execute(context.Background(), m, "op-x", func(_ context.Context, _ int) (string, error) {
			return "", errors.New("some unknown failure")
		})
		if err == nil {
			t.Fatalf("attempt %d: expected failure", i)
		}
	}

	calls := 0
	_, err := Execute(context.Background(), m, "op-x", func(_ context.Context, _ int) (string, error) {
		calls++
		return "ok", nil
	})
	var circuitErr *CircuitOpenError
	if !errors.As(err, &circuitErr) {
		t.Fatalf("expected CircuitOpenError, got %v", err)
	}
	if calls != 0 {
		t.Fatal("circuit open must prevent the underlying op from being invoked")
	}
}

func TestCircuitHalfOpenSingleProbe(t *testing.T) {
	p := fastPolicy()
	p.MaxRetries = 0
	m := NewManager(p)

	for i := 0; i < 5; i++ {
		_, _ = Execute(context.Background(), m, "op-y", func(_ context.Context, _ int) (string, error) {
			return "", errors.New("fail")
		})
	}

	time.Sleep(p.CircuitBaseCooldown + 2*time.Millisecond)

	got, err := Execute(context.Background(), m, "op-y", func(_ context.Context, _ int) (string, error) {
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("half-open probe should have been allowed: %v", err)
	}
	if got != "recovered" {
		t.Fatalf("got %q", got)
	}

	snap := m.CircuitSnapshot("op-y")
	if snap.IsOpen {
		t.Fatal("a successful probe must close the circuit")
	}
}

func TestRateLimitDelayFloor(t *testing.T) {
	p := fastPolicy()
	m := NewManager(p)

	var delays []time.Duration
	attempts := 0
	_, _ = Execute(context.Background(), m, "op-rl", func(_ context.Context, attempt int) (string, error) {
		attempts++
		if attempt < 2 {
			return "", errors.New("429 rate limit")
		}
		return "ok", nil
	})

	for _, a := range m.History("op-rl") {
		if a.Category == "rate_limit" {
			delays = append(delays, a.Delay)
		}
	}
	for _, d := range delays {
		if d < p.RateLimitMinDelay {
			t.Fatalf("rate-limit delay %v below floor %v", d, p.RateLimitMinDelay)
		}
	}
}

func TestComputeDelayBounds(t *testing.T) {
	p := DefaultPolicy()
	zero := func() float64 { return 0 }
	one := func() float64 { return 1 }

	d0 := p.computeDelay(0, false, zero)
	if d0 != p.BaseDelay {
		t.Fatalf("attempt 0 with zero jitter = %v, want base delay %v", d0, p.BaseDelay)
	}

	dMax := p.computeDelay(10, false, one)
	if dMax > time.Duration(float64(p.MaxDelay)*1.1)+time.Millisecond {
		t.Fatalf("delay %v exceeds max_delay*1.1", dMax)
	}
}
