package faults

import (
	"time"
)

// Kind is one value from the closed error taxonomy. Every classified failure
// carries exactly one Kind; there is no "untyped" state.
type Kind string

const (
	// Authentication & authorization.
	KindAuthRequired            Kind = "AUTH_REQUIRED"
	KindAuthInvalid             Kind = "AUTH_INVALID"
	KindAuthExpired             Kind = "AUTH_EXPIRED"
	KindInsufficientPermissions Kind = "INSUFFICIENT_PERMISSIONS"

	// Network & connectivity.
	KindNetworkError Kind = "NETWORK_ERROR"
	KindTimeoutError Kind = "TIMEOUT_ERROR"
	KindOfflineError Kind = "OFFLINE_ERROR"
	KindRateLimited  Kind = "RATE_LIMITED"

	// Data & validation.
	KindValidationError Kind = "VALIDATION_ERROR"
	KindDataNotFound    Kind = "DATA_NOT_FOUND"
	KindDataConflict    Kind = "DATA_CONFLICT"
	KindInvalidFormat   Kind = "INVALID_FORMAT"

	// Server & database.
	KindServerError        Kind = "SERVER_ERROR"
	KindDatabaseError      Kind = "DATABASE_ERROR"
	KindServiceUnavailable Kind = "SERVICE_UNAVAILABLE"

	// Client & application.
	KindClientError        Kind = "CLIENT_ERROR"
	KindUnknownError       Kind = "UNKNOWN_ERROR"
	KindFeatureUnavailable Kind = "FEATURE_UNAVAILABLE"
)

// messages maps every Kind to its fixed user-facing text. These strings are
// safe to surface directly; the raw failure never is.
var messages = map[Kind]string{
	KindAuthRequired:            "Please log in to continue.",
	KindAuthInvalid:             "Your login credentials are invalid. Please try again.",
	KindAuthExpired:             "Your session has expired. Please log in again.",
	KindInsufficientPermissions: "You don't have permission to perform this action.",

	KindNetworkError: "Network connection failed. Please check your internet connection.",
	KindTimeoutError: "The request took too long to complete. Please try again.",
	KindOfflineError: "You're currently offline. Some features may not be available.",
	KindRateLimited:  "Too many requests. Please wait a moment before trying again.",

	KindValidationError: "Please check your input and try again.",
	KindDataNotFound:    "The requested information could not be found.",
	KindDataConflict:    "This data conflicts with existing information.",
	KindInvalidFormat:   "The data format is invalid.",

	KindServerError:        "A server error occurred. Please try again later.",
	KindDatabaseError:      "A database error occurred. Please try again later.",
	KindServiceUnavailable: "The service is temporarily unavailable.",

	KindClientError:        "An application error occurred.",
	KindUnknownError:       "An unexpected error occurred.",
	KindFeatureUnavailable: "This feature is currently unavailable.",
}

// Message returns the fixed user-facing text for a kind. Unknown kinds fall
// back to the KindUnknownError message.
func Message(k Kind) string {
	if msg, ok := messages[k]; ok {
		return msg
	}
	return messages[KindUnknownError]
}

// Recoverable reports whether a retry or user-initiated repeat of the action
// is sane for the given kind. Only InsufficientPermissions and DataNotFound
// are unrecoverable: retrying cannot change a permission or not-found outcome
// without external state change.
func Recoverable(k Kind) bool {
	switch k {
	case KindInsufficientPermissions, KindDataNotFound:
		return false
	default:
		return true
	}
}

// Classified is the canonical representation of any failure. Instances are
// owned by the caller that receives them; there is no shared mutable state.
type Classified struct {
	Kind        Kind
	Message     string
	Details     error
	OccurredAt  time.Time
	ActorID     string
	Operation   string
	Recoverable bool
}

// Error implements the error interface with the user-safe message.
func (c *Classified) Error() string {
	return c.Message
}

// Unwrap exposes the original failure for errors.Is / errors.As chains.
func (c *Classified) Unwrap() error {
	return c.Details
}

// New constructs a Classified of the given kind wrapping cause. The message
// and recoverability flag are derived from the kind.
func New(kind Kind, cause error) *Classified {
	return &Classified{
		Kind:        kind,
		Message:     Message(kind),
		Details:     cause,
		OccurredAt:  time.Now(),
		Recoverable: Recoverable(kind),
	}
}

// WithActor returns a copy annotated with the user/session identifier
// associated with the failure.
func (c *Classified) WithActor(actorID string) *Classified {
	dup := *c
	dup.ActorID = actorID
	return &dup
}

// WithOperation returns a copy annotated with a free-text label of the
// attempted action, for logging correlation.
func (c *Classified) WithOperation(label string) *Classified {
	dup := *c
	dup.Operation = label
	return &dup
}

// StatusError is a failure that carries a numeric HTTP-like status. Callers
// that receive a non-2xx response and want it classified wrap it in this type.
type StatusError struct {
	Status int
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "unexpected status"
}

// HTTPStatus implements the statusCarrier contract used by Classify.
func (e *StatusError) HTTPStatus() int {
	return e.Status
}
