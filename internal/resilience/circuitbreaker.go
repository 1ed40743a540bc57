package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState represents the state of a circuit breaker.
type BreakerState string

const (
	// StateClosed allows calls through.
	StateClosed BreakerState = "closed"
	// StateOpen rejects calls until the cool-off expires.
	StateOpen BreakerState = "open"
	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen BreakerState = "half-open"
)

// BreakerConfig defines thresholds for circuit breaking.
type BreakerConfig struct {
	// MaxFailures is the consecutive-failure threshold before opening.
	MaxFailures int
	// CoolOff is how long the circuit stays open before probing.
	CoolOff time.Duration
	// MaxProbes is the number of half-open calls allowed before a decision
	// (close on that many consecutive successes, reopen on any failure).
	MaxProbes int
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures: 5,
		CoolOff:     30 * time.Second,
		MaxProbes:   3,
	}
}

// Breaker implements the circuit breaker pattern for the gateway's upstreams.
// A single Breaker guards one upstream; all methods are safe for concurrent use.
type Breaker struct {
	mu     sync.Mutex
	state  BreakerState
	config BreakerConfig

	consecutiveFailures  int
	consecutiveSuccesses int
	probes               int
	openUntil            time.Time
}

// NewBreaker creates a circuit breaker with the provided configuration.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.CoolOff <= 0 {
		config.CoolOff = 30 * time.Second
	}
	if config.MaxProbes <= 0 {
		config.MaxProbes = 3
	}
	return &Breaker{state: StateClosed, config: config}
}

// State reports the current state, accounting for cool-off expiry.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Now().After(b.openUntil) {
		return StateHalfOpen
	}
	return b.state
}

// Do wraps a call with circuit breaker protection.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := b.before(); err != nil {
		return err
	}

	err := fn(ctx)
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if now.After(b.openUntil) {
			b.transition(StateHalfOpen)
			b.probes = 1
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probes < b.config.MaxProbes {
			b.probes++
			return nil
		}
		return ErrCircuitOpen
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.consecutiveSuccesses++
		b.consecutiveFailures = 0
	} else {
		b.consecutiveFailures++
		b.consecutiveSuccesses = 0
	}

	switch b.state {
	case StateHalfOpen:
		if err != nil {
			b.transition(StateOpen)
			return
		}
		if b.consecutiveSuccesses >= b.config.MaxProbes {
			b.transition(StateClosed)
		}
	case StateClosed:
		if b.consecutiveFailures >= b.config.MaxFailures {
			b.transition(StateOpen)
		}
	}
}

func (b *Breaker) transition(next BreakerState) {
	b.state = next
	b.probes = 0
	b.consecutiveSuccesses = 0
	if next == StateOpen {
		b.openUntil = time.Now().Add(b.config.CoolOff)
	} else {
		b.consecutiveFailures = 0
	}
}
