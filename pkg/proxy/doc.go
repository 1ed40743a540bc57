// Package proxy implements the gateway's request router: the layer that sits
// between every outgoing application request and the network, chooses a
// caching strategy per request class, and serves cached responses when the
// network is unreachable.
//
// Architecture:
//
// router.go      - Router, request classification chain, upstream fetch plumbing
// strategies.go  - The per-class strategies (bypass, api, navigation, asset, default)
// synthesize.go  - Well-formed error responses for the fully-offline case
// routepolicy.go - Optional Rego override for request classification
//
// The router never surfaces a transport failure for a read: every GET resolves
// to a live response, a cached response, or a synthesized error response.
// Non-GET requests pass through uncached and their failures reach the caller,
// to be handled by the faults/resilience layers.
package proxy
