package domain

import (
	"errors"
	"fmt"
)

// Partition identifies one of the logical cache collections.
type Partition string

const (
	// PartitionStatic holds the fixed manifest of core assets seeded at install time.
	PartitionStatic Partition = "static"
	// PartitionDynamic holds responses cached opportunistically as they arrive.
	PartitionDynamic Partition = "dynamic"
)

// PartitionName returns the versioned collection name for a partition,
// e.g. "static-v1". The version suffix is the only migration mechanism:
// bumping it causes full partition replacement on the next activation.
func PartitionName(p Partition, version string) string {
	return fmt.Sprintf("%s-%s", p, version)
}

// RouteClass is the outcome of request classification inside the gateway.
// Classes map one-to-one onto caching strategies.
type RouteClass string

const (
	// RouteBypass marks requests that are never cached (non-GET).
	RouteBypass RouteClass = "bypass"
	// RouteAPI marks requests destined for the backend API host.
	RouteAPI RouteClass = "api"
	// RouteNavigation marks top-level page navigations.
	RouteNavigation RouteClass = "navigation"
	// RouteAsset marks script/style/image/font resource requests.
	RouteAsset RouteClass = "asset"
	// RouteDefault marks everything else (best-effort caching).
	RouteDefault RouteClass = "default"
)

// ParseRouteClass converts a string (e.g. from a Rego decision) into a
// RouteClass, reporting whether the value is one of the known classes.
func ParseRouteClass(s string) (RouteClass, bool) {
	switch RouteClass(s) {
	case RouteBypass, RouteAPI, RouteNavigation, RouteAsset, RouteDefault:
		return RouteClass(s), true
	default:
		return "", false
	}
}

// Header names used across the gateway.
const (
	// HeaderServedFromCache marks a response that was answered from the
	// cache store rather than the live network.
	HeaderServedFromCache = "X-Served-From-Cache"
	// HeaderRequestID carries the per-request correlation ID.
	HeaderRequestID = "X-Request-ID"
	// HeaderBackgroundSync carries a client-supplied idempotency key that
	// opts a non-GET request into the deferred-submission queue when the
	// network is unreachable.
	HeaderBackgroundSync = "X-Background-Sync"
)

// ErrorResponse defines the standard JSON error model returned by the gateway
// when it synthesizes a response instead of reaching the network. It avoids
// exposing transport details while providing a stable machine-readable code.
type ErrorResponse struct {
	Error     string `json:"error"`                // Machine-readable code (e.g. network_unavailable)
	Message   string `json:"message"`              // Human-readable message (safe for users)
	RequestID string `json:"request_id,omitempty"` // Correlation ID when available
}

// Common domain errors.
var (
	ErrEntryNotFound     = errors.New("cache entry not found")
	ErrPartitionNotFound = errors.New("cache partition not found")
	ErrUpstreamDown      = errors.New("upstream unreachable")
)
