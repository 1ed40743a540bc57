package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 3, CoolOff: time.Minute, MaxProbes: 1})
	boom := errors.New("upstream down")

	for i := 0; i < 3; i++ {
		if err := b.Do(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected upstream error, got %v", i, err)
		}
	}

	err := b.Do(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after threshold, got %v", err)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 1, CoolOff: 10 * time.Millisecond, MaxProbes: 2})

	_ = b.Do(context.Background(), func(context.Context) error { return errors.New("boom") })
	if b.State() != StateOpen {
		t.Fatalf("expected open state, got %s", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	// Two successful probes close the breaker again.
	for i := 0; i < 2; i++ {
		if err := b.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
			t.Fatalf("probe %d rejected: %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after successful probes, got %s", b.State())
	}
}

func TestBreaker_ReopensOnProbeFailure(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 1, CoolOff: 10 * time.Millisecond, MaxProbes: 3})

	_ = b.Do(context.Background(), func(context.Context) error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	_ = b.Do(context.Background(), func(context.Context) error { return errors.New("still down") })
	if b.State() != StateOpen {
		t.Fatalf("expected reopened breaker, got %s", b.State())
	}
}

func TestBreaker_ContextCancelled(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Do(ctx, func(context.Context) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
