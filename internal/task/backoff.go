package task

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// JitterKind selects how a computed backoff is randomised.
type JitterKind string

// Supported jitter kinds
const (
	JitterNone  JitterKind = "none"
	JitterFull  JitterKind = "full"
	JitterEqual JitterKind = "equal"
)

// RetryPolicy describes exponential backoff between retry rounds.
type RetryPolicy struct {
	// MaxAttempts counts every round including the first
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         JitterKind
}

// DefaultRetryPolicy returns a RetryPolicy with reasonable defaults
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
		Jitter:         JitterNone,
	}
}

// Validate checks the policy for values that cannot produce a schedule.
func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("retry policy: max attempts must be at least 1, got %d", p.MaxAttempts)
	case p.InitialBackoff < 0 || p.MaxBackoff < 0:
		return fmt.Errorf("retry policy: backoff must not be negative")
	case p.Multiplier < 1:
		return fmt.Errorf("retry policy: multiplier must be at least 1, got %v", p.Multiplier)
	}
	switch p.Jitter {
	case "", JitterNone, JitterFull, JitterEqual:
		return nil
	default:
		return fmt.Errorf("retry policy: unknown jitter kind %q", p.Jitter)
	}
}

// Backoff returns the delay before retry number attempt+1, where attempt
// is the zero-based index of the round that just finished.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = nextBackoff(backoff, p.Multiplier, p.MaxBackoff)
	}
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	return applyJitter(backoff, p.Jitter)
}

// BackoffRetryHandler retries failed rounds until MaxAttempts is reached,
// waiting Backoff(attempt) between rounds. rebuild returns fresh operations
// for the given attempt number. Success and cancellation finish at once.
func BackoffRetryHandler[T any](p RetryPolicy, rebuild func(attempt int) Group[T]) RetryHandler[T] {
	return func(attempt int, outcome Outcome[T]) RetryDecision[T] {
		if !outcome.IsFailure() || attempt+1 >= p.MaxAttempts {
			return Finish[T]()
		}
		return RetryAfter(p.Backoff(attempt), rebuild(attempt+1))
	}
}

func nextBackoff(current time.Duration, multiplier float64, max time.Duration) time.Duration {
	next := durationOf(float64(current) * multiplier)
	if max > 0 && next > max {
		return max
	}
	return next
}

func applyJitter(backoff time.Duration, kind JitterKind) time.Duration {
	switch kind {
	case JitterFull:
		return durationOf(rand.Float64() * float64(backoff))
	case JitterEqual:
		half := float64(backoff) / 2
		return durationOf(half + rand.Float64()*half)
	default:
		return backoff
	}
}

// durationOf converts nanoseconds to a Duration, saturating at the largest
// representable Duration instead of wrapping.
func durationOf(ns float64) time.Duration {
	switch {
	case ns <= 0 || math.IsNaN(ns):
		return 0
	case ns >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	default:
		return time.Duration(ns)
	}
}
