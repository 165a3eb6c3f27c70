// Package retry implements the spec §4.1 Retry Manager: exponential backoff
// with jitter, a rate-limit delay floor, and a per-operation circuit breaker.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy configures the backoff and circuit-breaker behavior of a Manager.
type Policy struct {
	// MaxRetries is the default retry budget for a non-rate-limited operation.
	MaxRetries int
	// BaseDelay is the backoff base (attempt 0's delay before jitter/multiplier).
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff before jitter is added.
	MaxDelay time.Duration
	// Multiplier is the exponential growth factor applied per attempt.
	Multiplier float64
	// JitterEnabled adds uniform(0, 0.1*delay) jitter to each computed delay.
	JitterEnabled bool

	// RateLimitMinDelay floors the delay for rate_limit-classified failures.
	RateLimitMinDelay time.Duration
	// RateLimitMaxRetries overrides MaxRetries for rate_limit failures.
	RateLimitMaxRetries int

	// CircuitThreshold is the consecutive-failure count that opens the circuit.
	CircuitThreshold int
	// CircuitBaseCooldown is the cooldown for the (threshold)th failure;
	// doubles per additional failure up to CircuitMaxCooldown.
	CircuitBaseCooldown time.Duration
	// CircuitMaxCooldown caps the computed cooldown.
	CircuitMaxCooldown time.Duration

	// HistoryLimit bounds the number of attempts retained per operation id.
	HistoryLimit int
}

// DefaultPolicy returns the spec §4.1 defaults: max_retries=3,
// base_delay_ms=1000, max_delay_ms=30000, multiplier=2, jitter enabled.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    3,
		BaseDelay:     1000 * time.Millisecond,
		MaxDelay:      30000 * time.Millisecond,
		Multiplier:    2,
		JitterEnabled: true,

		RateLimitMinDelay:   5 * time.Second,
		RateLimitMaxRetries: 6,

		CircuitThreshold:    5,
		CircuitBaseCooldown: 60 * time.Second,
		CircuitMaxCooldown:  300 * time.Second,

		HistoryLimit: 100,
	}
}

// rateLimitRetries returns min(2*max_retries, 6) per spec §4.1.
func (p Policy) rateLimitRetries() int {
	if p.RateLimitMaxRetries > 0 {
		n := 2 * p.MaxRetries
		if n > p.RateLimitMaxRetries {
			return p.RateLimitMaxRetries
		}
		return n
	}
	n := 2 * p.MaxRetries
	if n > 6 {
		return 6
	}
	return n
}

// computeDelay implements: min(base * multiplier^attempt, max_delay) +
// uniform(0, 0.1*delay) when jitter is enabled. attempt is 0-based (the
// delay before the (attempt+1)th retry).
func (p Policy) computeDelay(attempt int, rateLimited bool, randFn func() float64) time.Duration {
	base := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	capped := math.Min(base, float64(p.MaxDelay))

	delay := capped
	if p.JitterEnabled {
		delay += capped * 0.1 * randFn()
	}

	d := time.Duration(delay)
	if rateLimited && d < p.RateLimitMinDelay {
		d = p.RateLimitMinDelay
	}
	return d
}

func defaultRand() float64 {
	return rand.Float64() // #nosec G404 -- jitter does not need cryptographic randomness
}

// circuitCooldown implements min(base * 2^(failures-threshold), max) for
// failures >= threshold.
func (p Policy) circuitCooldown(failures int) time.Duration {
	over := failures - p.CircuitThreshold
	if over < 0 {
		over = 0
	}
	cooldown := float64(p.CircuitBaseCooldown) * math.Pow(2, float64(over))
	if cooldown > float64(p.CircuitMaxCooldown) {
		cooldown = float64(p.CircuitMaxCooldown)
	}
	return time.Duration(cooldown)
}
