// Package faults normalizes arbitrary failures into a closed taxonomy of
// semantic kinds with a recoverability flag and a fixed user-safe message.
//
// The package is origin-agnostic: the input can be a transport error, an
// HTTP-status-bearing error, or a backend-specific structured error.
// Classification is pure (no I/O) and never fails — unclassifiable inputs
// map to KindUnknown. Logging is a separate, best-effort concern that
// never propagates its own failures.
package faults
