package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/milvetnav/navigator-gateway/pkg/faults"
)

// fastPolicy keeps test runtimes negligible while preserving the attempt
// accounting under test.
func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:    maxRetries,
		BaseDelay:     time.Microsecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 2,
	}
}

func TestExecuteWith_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	attempts := 0

	_, err := ExecuteWith(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		attempts++
		return 0, boom
	})

	if attempts != 4 {
		t.Fatalf("expected exactly 4 attempts, got %d", attempts)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected the original error to propagate, got %v", err)
	}
}

func TestExecuteWith_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	result, err := ExecuteWith(context.Background(), fastPolicy(5), func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("connection reset by peer")
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || attempts != 3 {
		t.Fatalf("expected success on attempt 3, got %q after %d attempts", result, attempts)
	}
}

func TestExecuteWith_AuthInvalidFailsImmediately(t *testing.T) {
	original := errors.New("Invalid login credentials")
	attempts := 0

	_, err := ExecuteWith(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		attempts++
		return 0, original
	})

	if attempts != 1 {
		t.Fatalf("expected a single attempt for AUTH_INVALID, got %d", attempts)
	}
	if !errors.Is(err, original) {
		t.Fatalf("expected the original error, got %v", err)
	}
}

func TestExecuteWith_NotFoundFailsImmediately(t *testing.T) {
	attempts := 0
	_, err := ExecuteWith(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		attempts++
		return 0, &faults.StatusError{Status: 404, Reason: "no such row"}
	})

	if attempts != 1 {
		t.Fatalf("expected a single attempt for DATA_NOT_FOUND, got %d", attempts)
	}
	var se *faults.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected the original StatusError, got %v", err)
	}
}

func TestExecuteWith_OriginalErrorNotClassified(t *testing.T) {
	original := errors.New("plain failure")
	_, err := ExecuteWith(context.Background(), fastPolicy(1), func(context.Context) (int, error) {
		return 0, original
	})

	if err != original {
		t.Fatalf("caller must receive the unclassified failure, got %T", err)
	}
	var c *faults.Classified
	if errors.As(err, &c) {
		t.Fatal("propagated error must not be the classified form")
	}
}

func TestExecuteWith_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 2}

	done := make(chan error, 1)
	go func() {
		_, err := ExecuteWith(ctx, policy, func(context.Context) (int, error) {
			return 0, errors.New("connection refused")
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
}

// Delay between attempts i and i+1 stays within
// [BaseDelay*Factor^i, BaseDelay*Factor^i*1.1], capped at MaxDelay*1.1.
func TestPolicy_DelayBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		policy := Policy{
			MaxRetries:    3,
			BaseDelay:     time.Duration(rapid.Int64Range(int64(time.Millisecond), int64(5*time.Second)).Draw(t, "base")),
			MaxDelay:      time.Duration(rapid.Int64Range(int64(time.Second), int64(60*time.Second)).Draw(t, "max")),
			BackoffFactor: float64(rapid.IntRange(2, 4).Draw(t, "factor")),
		}.normalized()
		attempt := rapid.IntRange(0, 8).Draw(t, "attempt")

		raw := policy.Delay(attempt)
		expected := policy.BaseDelay * time.Duration(intPow(int64(policy.BackoffFactor), attempt))
		if expected > policy.MaxDelay || expected <= 0 {
			expected = policy.MaxDelay
		}
		if raw != expected {
			t.Fatalf("raw delay %v, expected %v", raw, expected)
		}

		total := jittered(raw)
		if total < raw {
			t.Fatalf("jitter must never shorten the delay: %v < %v", total, raw)
		}
		ceiling := raw + raw/10
		if total > ceiling {
			t.Fatalf("jittered delay %v exceeds 1.1x bound %v", total, ceiling)
		}
	})
}

func intPow(base int64, exp int) int64 {
	result := int64(1)
	for i := 0; i < exp; i++ {
		result *= base
		if result < 0 {
			// overflow; caller's cap logic takes over
			return 1 << 62
		}
	}
	return result
}
