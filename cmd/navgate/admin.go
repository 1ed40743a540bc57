package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/milvetnav/navigator-gateway/internal/resilience"
	"github.com/milvetnav/navigator-gateway/pkg/notify"
)

// adminHandler builds the management API served on the admin address.
func (a *app) adminHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.Handle("GET /metrics", a.metrics.Handler())
	mux.HandleFunc("GET /api/partitions", a.handlePartitions)
	mux.HandleFunc("POST /api/activate", a.handleActivate)
	mux.HandleFunc("POST /api/notify", a.handleNotify)
	mux.HandleFunc("POST /api/sync", a.handleSync)
	mux.Handle("GET /events", a.hub)

	return mux
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := a.store.Partitions(r.Context()); err != nil {
		a.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
}

// handlePartitions reports each partition and its entry count.
func (a *app) handlePartitions(w http.ResponseWriter, r *http.Request) {
	names, err := a.store.Partitions(r.Context())
	if err != nil {
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	type partitionInfo struct {
		Name    string `json:"name"`
		Entries int    `json:"entries"`
	}
	out := make([]partitionInfo, 0, len(names))
	for _, name := range names {
		keys, err := a.store.Keys(r.Context(), name)
		if err != nil {
			a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		out = append(out, partitionInfo{Name: name, Entries: len(keys)})
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"partitions": out})
}

func (a *app) handleActivate(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.Activate(r.Context()); err != nil {
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "activated", "version": a.cfg.Cache.Version})
}

// handleNotify broadcasts a push notification to every connected client.
func (a *app) handleNotify(w http.ResponseWriter, r *http.Request) {
	var n notify.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid notification payload"})
		return
	}
	if n.Title == "" {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "notification title is required"})
		return
	}

	if err := a.hub.Broadcast(notify.EventPush, n); err != nil {
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	a.metrics.RecordNotification()
	a.writeJSON(w, http.StatusOK, map[string]any{"status": "sent", "clients": a.hub.ClientCount()})
}

// handleSync replays deferred submissions against the live upstream. Each
// submission is retried on transient failure; replay stops at the first
// submission that cannot be delivered so ordering is preserved.
func (a *app) handleSync(w http.ResponseWriter, r *http.Request) {
	client := &http.Client{Timeout: 30 * time.Second}
	policy := resilience.DefaultPolicy()

	replayed, err := a.queue.Replay(r.Context(), func(ctx context.Context, p notify.Pending) error {
		_, rerr := resilience.ExecuteWith(ctx, policy, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, submit(ctx, client, p)
		})
		return rerr
	})

	depth, derr := a.queue.Depth(r.Context())
	if derr == nil {
		a.metrics.SetSyncQueueDepth(depth)
	}

	if replayed > 0 {
		if berr := a.hub.Broadcast(notify.EventSync, map[string]int{"replayed": replayed}); berr != nil {
			a.logger.Warn("failed to announce sync", "error", berr)
		}
	}

	if err != nil {
		a.writeJSON(w, http.StatusBadGateway, map[string]any{
			"status":   "partial",
			"replayed": replayed,
			"pending":  depth,
			"error":    err.Error(),
		})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"status": "synced", "replayed": replayed, "pending": depth})
}

// submit delivers one deferred submission. Anything but a 2xx is a failure;
// 409 means the server already has it from an earlier attempt, which counts
// as delivered.
func submit(ctx context.Context, client *http.Client, p notify.Pending) error {
	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, bytes.NewReader(p.Body))
	if err != nil {
		return err
	}
	for k, vals := range p.Header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	return fmt.Errorf("upstream rejected replay with status %d", resp.StatusCode)
}

func (a *app) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Error("failed to encode admin response", "error", err)
	}
}
