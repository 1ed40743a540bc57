package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/milvetnav/navigator-gateway/pkg/faults"
)

// Policy defines retry behavior for a single Execute call. Policies are value
// objects: construct one per call, never share mutable state across calls.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt
	// (0 = single attempt, no retries).
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration
	// BackoffFactor is the multiplier applied per attempt.
	BackoffFactor float64
	// ShouldRetry decides per classified failure whether another attempt is
	// worthwhile. Nil selects the default predicate.
	ShouldRetry func(*faults.Classified) bool
}

// DefaultPolicy returns the standard retry policy: 3 retries, 1s base delay,
// 30s cap, factor 2, retrying recoverable failures except those where a
// repeat attempt cannot change the outcome without user action.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    3,
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
		ShouldRetry:   DefaultShouldRetry,
	}
}

// DefaultShouldRetry retries recoverable failures, excluding AuthInvalid:
// resubmitting bad credentials cannot succeed, even though the user retyping
// them can. InsufficientPermissions and DataNotFound are already excluded by
// their recoverability flag.
func DefaultShouldRetry(c *faults.Classified) bool {
	if c == nil || !c.Recoverable {
		return false
	}
	switch c.Kind {
	case faults.KindAuthInvalid, faults.KindInsufficientPermissions, faults.KindDataNotFound:
		return false
	default:
		return true
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = 2
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = DefaultShouldRetry
	}
	return p
}

// Delay returns the backoff delay before retry number attempt (0-based),
// without jitter: min(BaseDelay * BackoffFactor^attempt, MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt)))
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return d
}

// jittered adds a random value in [0, 0.1*delay) to spread concurrent
// retry loops apart.
func jittered(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	// #nosec G404 - non-cryptographic random is fine for jitter
	return delay + time.Duration(rand.Int63n(int64(delay)/10+1))
}

// Execute runs op with the default policy. See ExecuteWith.
func Execute[T any](ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	return ExecuteWith(ctx, DefaultPolicy(), op)
}

// ExecuteWith runs op, transparently retrying on classified-recoverable
// failures, bounded by policy. At most MaxRetries+1 attempts are made, always
// sequentially. On exhaustion or a non-retryable failure the ORIGINAL error
// from the last attempt is returned, not its classified form: classification
// is used internally only to decide retry eligibility.
func ExecuteWith[T any](ctx context.Context, policy Policy, op func(context.Context) (T, error)) (T, error) {
	policy = policy.normalized()

	var zero T
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == policy.MaxRetries || !policy.ShouldRetry(faults.Classify(err)) {
			return zero, err
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(jittered(policy.Delay(attempt))):
		}
	}

	// Unreachable: the loop always returns from its body.
	return zero, lastErr
}
