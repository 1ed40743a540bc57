// Package notify carries the gateway's outbound coordination with connected
// app instances: push notifications with a click-through URL, activation
// claims, and the deferred-submission queue that backs background sync.
//
// Delivery uses Server-Sent Events. The hub never shares in-memory state with
// page logic; everything the client needs travels inside the event payload.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// Notification is the push payload shown by clients. Clicking the
// notification opens or focuses Data.URL.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Data  struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Event types delivered over the SSE stream.
const (
	// EventPush carries a Notification.
	EventPush = "push"
	// EventClaim tells clients a new gateway version took control.
	EventClaim = "claim"
	// EventSync asks clients to trigger deferred-submission replay.
	EventSync = "sync"
)

// Hub fans events out to every connected client. Safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[chan []byte]struct{}),
		logger:  logger,
	}
}

// Subscribe registers a client and returns its event channel plus an
// unsubscribe function.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 16)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast serializes payload as an SSE event and delivers it to every
// connected client. Slow clients are skipped rather than blocked on.
func (h *Hub) Broadcast(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	frame := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data))

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- frame:
		default:
			h.logger.Warn("dropping event for slow client", "event", eventType)
		}
	}
	return nil
}

// ServeHTTP streams events to a single client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsubscribe := h.Subscribe()
	defer unsubscribe()

	h.logger.Debug("client connected", "remote_addr", r.RemoteAddr)

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, open := <-events:
			if !open {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
