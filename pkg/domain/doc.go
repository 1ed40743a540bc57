// Package domain defines the core shared types for the Navigator Gateway.
//
// This package contains pure domain logic with ZERO external dependencies outside the
// Go standard library. All types in this package are:
//
// - Independent of infrastructure (no cache backend, HTTP client, etc.)
// - Technology-agnostic (no framework coupling)
// - Testable in isolation without mocks
//
// Other packages (cache, proxy, lifecycle, notify) depend on these types. The
// dependency direction is always Infrastructure → Domain, never the reverse.
package domain
