package task

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2,
		Jitter:         JitterNone,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 100 * time.Millisecond},
		{attempt: 1, want: 200 * time.Millisecond},
		{attempt: 2, want: 400 * time.Millisecond},
		{attempt: 3, want: 800 * time.Millisecond},
		{attempt: 4, want: time.Second},
		{attempt: 10, want: time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetryPolicy_BackoffWithoutCap(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 100, InitialBackoff: time.Second, Multiplier: 2}

	assert.Equal(t, 1024*time.Second, policy.Backoff(10))

	previous := policy.Backoff(0)
	for attempt := 1; attempt <= 80; attempt++ {
		d := policy.Backoff(attempt)
		assert.GreaterOrEqual(t, d, previous, "attempt %d", attempt)
		previous = d
	}
	assert.Equal(t, time.Duration(math.MaxInt64), policy.Backoff(40))
	assert.Equal(t, time.Duration(math.MaxInt64), policy.Backoff(80))

	jittered := policy
	jittered.Jitter = JitterEqual
	assert.Greater(t, jittered.Backoff(60), time.Duration(0))
}

func TestRetryPolicy_Jitter(t *testing.T) {
	base := RetryPolicy{MaxAttempts: 3, InitialBackoff: 100 * time.Millisecond, Multiplier: 1}

	full := base
	full.Jitter = JitterFull
	equal := base
	equal.Jitter = JitterEqual

	for i := 0; i < 50; i++ {
		d := full.Backoff(0)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 100*time.Millisecond)

		d = equal.Backoff(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}
}

func TestRetryPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultRetryPolicy().Validate())

	tests := []struct {
		name   string
		mutate func(*RetryPolicy)
	}{
		{name: "zero attempts", mutate: func(p *RetryPolicy) { p.MaxAttempts = 0 }},
		{name: "negative backoff", mutate: func(p *RetryPolicy) { p.InitialBackoff = -time.Second }},
		{name: "shrinking multiplier", mutate: func(p *RetryPolicy) { p.Multiplier = 0.5 }},
		{name: "unknown jitter", mutate: func(p *RetryPolicy) { p.Jitter = "sometimes" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultRetryPolicy()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestBackoffRetryHandler(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialBackoff: 10 * time.Millisecond, Multiplier: 2}

	var rebuilt []int
	handler := BackoffRetryHandler(policy, func(attempt int) Group[int] {
		rebuilt = append(rebuilt, attempt)
		return NewGroup(typedOp(1))
	})

	failed := Failure[int](assert.AnError)

	decision := handler(0, failed)
	assert.True(t, decision.IsRetry())
	assert.Equal(t, 10*time.Millisecond, decision.Delay())
	assert.NotNil(t, decision.Next().Primary)

	decision = handler(1, failed)
	assert.True(t, decision.IsRetry())
	assert.Equal(t, 20*time.Millisecond, decision.Delay())

	assert.False(t, handler(2, failed).IsRetry(), "attempts exhausted")
	assert.False(t, handler(0, Success(1)).IsRetry())
	assert.False(t, handler(0, Cancelled[int]()).IsRetry())

	assert.Equal(t, []int{1, 2}, rebuilt)
}
