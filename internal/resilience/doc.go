// Package resilience coordinates runtime safety controls for calls the
// application makes against its backend: bounded retry with exponential
// backoff and jitter, and circuit breaking for the gateway's upstream
// strategies.
//
// Retry eligibility is decided by the faults taxonomy: each failed attempt is
// classified, and the policy predicate inspects the classified kind. The
// original, unclassified failure is always what callers receive after the
// final attempt, preserving whatever error shape caller-side code expects.
package resilience
