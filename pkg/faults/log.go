package faults

import (
	"log/slog"
)

// Context carries ambient request information attached to error logs.
type Context struct {
	UserAgent string
	URL       string
	Extra     map[string]any
}

// Log writes a classified error to the structured log sink. Logging is always
// best-effort and never panics; a nil logger falls back to slog.Default().
func Log(logger *slog.Logger, c *Classified, lctx *Context) {
	if c == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		"kind", string(c.Kind),
		"message", c.Message,
		"recoverable", c.Recoverable,
		"occurred_at", c.OccurredAt,
	}
	if c.Details != nil {
		attrs = append(attrs, "details", c.Details.Error())
	}
	if c.ActorID != "" {
		attrs = append(attrs, "actor_id", c.ActorID)
	}
	if c.Operation != "" {
		attrs = append(attrs, "operation", c.Operation)
	}
	if lctx != nil {
		if lctx.UserAgent != "" {
			attrs = append(attrs, "user_agent", lctx.UserAgent)
		}
		if lctx.URL != "" {
			attrs = append(attrs, "url", lctx.URL)
		}
		for k, v := range lctx.Extra {
			attrs = append(attrs, k, v)
		}
	}

	logger.Error("application error", attrs...)
}

// HandleOptions configure Handle.
type HandleOptions struct {
	Logger   *slog.Logger
	Context  *Context
	Fallback func()
}

// Handle classifies a failure, logs it, and optionally runs a caller-supplied
// fallback. A panic inside the fallback is caught and logged separately,
// never propagated.
func Handle(err error, opts *HandleOptions) *Classified {
	classified := Classify(err)
	if classified == nil {
		return nil
	}

	var logger *slog.Logger
	var lctx *Context
	if opts != nil {
		logger = opts.Logger
		lctx = opts.Context
	}
	Log(logger, classified, lctx)

	if opts != nil && opts.Fallback != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l := logger
					if l == nil {
						l = slog.Default()
					}
					l.Error("error fallback panicked", "panic", r, "kind", string(classified.Kind))
				}
			}()
			opts.Fallback()
		}()
	}

	return classified
}
