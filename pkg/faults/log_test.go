package faults

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLog_IncludesContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	c := New(KindNetworkError, errors.New("dial tcp: connection refused")).
		WithActor("user-42").
		WithOperation("load stories")
	Log(logger, c, &Context{UserAgent: "navigator/1.0", URL: "/stories"})

	out := buf.String()
	for _, want := range []string{"NETWORK_ERROR", "user-42", "load stories", "navigator/1.0"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestHandle_FallbackPanicContained(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	classified := Handle(errors.New("boom"), &HandleOptions{
		Logger:   logger,
		Fallback: func() { panic("fallback exploded") },
	})

	if classified == nil || classified.Kind != KindUnknownError {
		t.Fatalf("expected UNKNOWN_ERROR classification, got %+v", classified)
	}
	if !strings.Contains(buf.String(), "fallback panicked") {
		t.Error("expected fallback panic to be logged")
	}
}

func TestHandle_NilError(t *testing.T) {
	if got := Handle(nil, nil); got != nil {
		t.Fatalf("expected nil for nil error, got %+v", got)
	}
}
