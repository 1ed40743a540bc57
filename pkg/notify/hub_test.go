package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHub_BroadcastReachesSubscribers(t *testing.T) {
	hub := NewHub(slog.Default())

	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	var n Notification
	n.Title = "New policy update"
	n.Body = "The expanded fertility coverage bill passed committee."
	n.Data.URL = "/legislation/hr-1234"

	if err := hub.Broadcast(EventPush, n); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	select {
	case frame := <-events:
		got := string(frame)
		if !strings.HasPrefix(got, "event: push\n") {
			t.Fatalf("unexpected frame prefix: %q", got)
		}
		payload := strings.TrimPrefix(got, "event: push\ndata: ")
		payload = strings.TrimSuffix(payload, "\n\n")
		var decoded Notification
		if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if decoded.Data.URL != "/legislation/hr-1234" {
			t.Fatalf("click-through URL lost: %+v", decoded)
		}
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(slog.Default())

	_, unsubscribe := hub.Subscribe()
	unsubscribe()
	unsubscribe() // safe to call twice

	if hub.ClientCount() != 0 {
		t.Fatalf("expected zero clients, got %d", hub.ClientCount())
	}
	if err := hub.Broadcast(EventClaim, map[string]string{"version": "v2"}); err != nil {
		t.Fatalf("broadcast to empty hub: %v", err)
	}
}

func TestHub_ServeHTTPStreams(t *testing.T) {
	hub := NewHub(slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		hub.ServeHTTP(rec, req)
		close(done)
	}()

	// Wait for the subscription to land before broadcasting.
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	if err := hub.Broadcast(EventSync, map[string]string{"reason": "connectivity restored"}); err != nil {
		t.Fatal(err)
	}

	// Give the writer a moment, then disconnect the client.
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event: sync") {
		t.Fatalf("expected sync event in stream, got %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
}
