package faults

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// statusCarrier is implemented by failures that carry an HTTP-like status,
// such as *StatusError or backend client errors.
type statusCarrier interface {
	HTTPStatus() int
}

// authSubstrings maps known backend error-message fragments to kinds. The
// backend surfaces auth and row-level-security failures as message text, not
// status codes, so substring matching is the only reliable signal.
var authSubstrings = []struct {
	fragment string
	kind     Kind
}{
	{"invalid login credentials", KindAuthInvalid},
	{"invalid credentials", KindAuthInvalid},
	{"jwt expired", KindAuthExpired},
	{"session_timeout", KindAuthExpired},
	{"session timeout", KindAuthExpired},
	{"insufficient_privilege", KindInsufficientPermissions},
	{"insufficient privilege", KindInsufficientPermissions},
	{"row-level security", KindInsufficientPermissions},
	{"permission", KindInsufficientPermissions},
}

// Classify converts an arbitrary failure into exactly one Classified.
// Checks are ordered; the first match wins:
//
//  1. Already classified → returned unchanged (idempotent passthrough).
//  2. Network-shaped errors → KindNetworkError.
//  3. Timeout-shaped errors → KindTimeoutError.
//  4. Known backend auth/permission message fragments.
//  5. HTTP-like status carried by the error.
//  6. Everything else → KindUnknownError.
//
// Classify never returns nil for a non-nil input and never fails.
func Classify(err error) *Classified {
	if err == nil {
		return nil
	}

	var classified *Classified
	if errors.As(err, &classified) {
		return classified
	}

	// Timeouts are checked before generic network errors: a net.Error that
	// timed out must classify as TIMEOUT_ERROR, not NETWORK_ERROR.
	if isTimeout(err) {
		return New(KindTimeoutError, err)
	}
	if isNetwork(err) {
		return New(KindNetworkError, err)
	}

	msg := strings.ToLower(err.Error())
	for _, m := range authSubstrings {
		if strings.Contains(msg, m.fragment) {
			return New(m.kind, err)
		}
	}

	var carrier statusCarrier
	if errors.As(err, &carrier) {
		if kind, ok := kindFromStatus(carrier.HTTPStatus()); ok {
			return New(kind, err)
		}
	}

	return New(KindUnknownError, err)
}

// kindFromStatus maps an HTTP status to a taxonomy kind. Statuses outside
// the 4xx/5xx ranges report false.
func kindFromStatus(status int) (Kind, bool) {
	switch status {
	case 401:
		return KindAuthRequired, true
	case 403:
		return KindInsufficientPermissions, true
	case 404:
		return KindDataNotFound, true
	case 409:
		return KindDataConflict, true
	case 422:
		return KindValidationError, true
	case 429:
		return KindRateLimited, true
	case 503:
		return KindServiceUnavailable, true
	}
	switch {
	case status >= 500 && status < 600:
		return KindServerError, true
	case status >= 400 && status < 500:
		return KindClientError, true
	}
	return "", false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Typed checks only: "session timeout" in a backend message is an auth
	// signal, not a transport timeout, so substring matching is off-limits here.
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetwork(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"network is unreachable",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
