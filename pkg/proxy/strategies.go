package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/milvetnav/navigator-gateway/pkg/cache"
	"github.com/milvetnav/navigator-gateway/pkg/domain"
	"github.com/milvetnav/navigator-gateway/pkg/faults"
	"github.com/milvetnav/navigator-gateway/pkg/notify"
)

// serveBypass passes non-GET requests straight through to the network.
// Transport failures normally propagate to the caller as a gateway error;
// requests carrying an X-Background-Sync idempotency key are instead recorded
// in the deferred-submission queue and acknowledged.
func (rt *Router) serveBypass(w http.ResponseWriter, r *http.Request, requestID string) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			rt.writeError(w, http.StatusBadRequest, "invalid_body", "The request body could not be read.", requestID)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	resp, err := rt.fetch(r)
	if err == nil {
		rt.metrics.RecordRequest(string(domain.RouteBypass), "live")
		resp.writeTo(w)
		return
	}

	if key := r.Header.Get(domain.HeaderBackgroundSync); key != "" && rt.cfg.Queue != nil {
		pending := notify.Pending{
			ID:       key,
			Method:   r.Method,
			URL:      rt.targetURL(r).String(),
			Header:   r.Header.Clone(),
			Body:     body,
			QueuedAt: time.Now(),
		}
		qerr := rt.cfg.Queue.Enqueue(r.Context(), pending)
		if qerr == nil {
			rt.logger.Info("submission deferred for background sync",
				"method", r.Method, "url", pending.URL, "idempotency_key", key)
			rt.metrics.RecordRequest(string(domain.RouteBypass), "queued")
			rt.writeJSON(w, http.StatusAccepted, map[string]string{
				"status":          "queued",
				"idempotency_key": key,
				"request_id":      requestID,
			})
			return
		}
		rt.logger.Error("failed to defer submission", "error", qerr, "idempotency_key", key)
	}

	rt.logFailure(err, r, "bypass")
	rt.metrics.RecordRequest(string(domain.RouteBypass), "error")
	rt.writeError(w, http.StatusBadGateway, "upstream_unreachable",
		"The server could not be reached. Please try again.", requestID)
}

// serveAPI is network-first for the backend host: live responses are cached
// (GET, 2xx) and returned; on network failure a cached entry is served with a
// cache-origin marker, and a structured 503 is synthesized when none exists.
func (rt *Router) serveAPI(w http.ResponseWriter, r *http.Request, requestID string) {
	key := rt.cacheKey(r)

	resp, err := rt.fetchThroughBreaker(r)
	if err == nil {
		if resp.ok() {
			rt.storeEntry(r.Context(), rt.dynamicPartition, key, resp)
		}
		rt.metrics.RecordRequest(string(domain.RouteAPI), "live")
		resp.writeTo(w)
		return
	}

	rt.logFailure(err, r, "api")

	if entry, cerr := rt.store.Get(r.Context(), key); cerr == nil {
		rt.metrics.RecordCacheHit(entry.Partition)
		rt.metrics.RecordRequest(string(domain.RouteAPI), "cache")
		if werr := entry.WriteTo(w); werr != nil {
			rt.logger.Error("failed to replay cached response", "error", werr)
		}
		return
	}

	rt.metrics.RecordCacheMiss(string(domain.RouteAPI))
	rt.metrics.RecordSynthesized(string(domain.RouteAPI))
	rt.writeError(w, http.StatusServiceUnavailable, "network_unavailable",
		faults.Message(faults.Classify(err).Kind), requestID)
}

// serveNavigation is network-first with a two-level cache fallback: the exact
// page, then the cached application root, then a synthesized 503.
func (rt *Router) serveNavigation(w http.ResponseWriter, r *http.Request, requestID string) {
	key := rt.cacheKey(r)

	resp, err := rt.fetch(r)
	if err == nil {
		if resp.ok() {
			rt.storeEntry(r.Context(), rt.dynamicPartition, key, resp)
		}
		rt.metrics.RecordRequest(string(domain.RouteNavigation), "live")
		resp.writeTo(w)
		return
	}

	rt.logFailure(err, r, "navigation")

	if entry, cerr := rt.store.Get(r.Context(), key); cerr == nil {
		rt.metrics.RecordCacheHit(entry.Partition)
		rt.metrics.RecordRequest(string(domain.RouteNavigation), "cache")
		_ = entry.WriteTo(w)
		return
	}

	if entry, cerr := rt.store.Get(r.Context(), rt.rootKey()); cerr == nil {
		rt.metrics.RecordCacheHit(entry.Partition)
		rt.metrics.RecordRequest(string(domain.RouteNavigation), "cache")
		_ = entry.WriteTo(w)
		return
	}

	rt.metrics.RecordCacheMiss(string(domain.RouteNavigation))
	rt.metrics.RecordSynthesized(string(domain.RouteNavigation))
	rt.writeError(w, http.StatusServiceUnavailable, "offline",
		"You're currently offline. Please check your connection.", requestID)
}

// serveAsset is cache-first: a stored entry short-circuits the network
// entirely; misses are fetched and stored into the Static partition.
func (rt *Router) serveAsset(w http.ResponseWriter, r *http.Request, requestID string) {
	key := rt.cacheKey(r)

	if entry, err := rt.store.Get(r.Context(), key); err == nil {
		rt.metrics.RecordCacheHit(entry.Partition)
		rt.metrics.RecordRequest(string(domain.RouteAsset), "cache")
		_ = entry.WriteTo(w)
		return
	}
	rt.metrics.RecordCacheMiss(string(domain.RouteAsset))

	resp, err := rt.fetch(r)
	if err == nil {
		if resp.ok() {
			rt.storeEntry(r.Context(), rt.staticPartition, key, resp)
		}
		rt.metrics.RecordRequest(string(domain.RouteAsset), "live")
		resp.writeTo(w)
		return
	}

	rt.logFailure(err, r, "asset")
	rt.metrics.RecordSynthesized(string(domain.RouteAsset))
	rt.writeError(w, http.StatusServiceUnavailable, "asset_unavailable",
		"This resource is not available offline.", requestID)
}

// serveDefault is best-effort: serve from cache if present, else pass through
// without caching.
func (rt *Router) serveDefault(w http.ResponseWriter, r *http.Request, requestID string) {
	if entry, err := rt.store.Get(r.Context(), rt.cacheKey(r)); err == nil {
		rt.metrics.RecordCacheHit(entry.Partition)
		rt.metrics.RecordRequest(string(domain.RouteDefault), "cache")
		_ = entry.WriteTo(w)
		return
	}

	resp, err := rt.fetch(r)
	if err == nil {
		rt.metrics.RecordRequest(string(domain.RouteDefault), "live")
		resp.writeTo(w)
		return
	}

	rt.metrics.RecordSynthesized(string(domain.RouteDefault))
	rt.writeError(w, http.StatusServiceUnavailable, "offline",
		"You're currently offline. Some features may not be available.", requestID)
}

// fetchThroughBreaker routes API fetches through the circuit breaker when one
// is configured. An open circuit is treated like any other network failure,
// which sends the request down the cache-fallback path.
func (rt *Router) fetchThroughBreaker(r *http.Request) (*fetchedResponse, error) {
	if rt.cfg.Breaker == nil {
		return rt.fetch(r)
	}

	var resp *fetchedResponse
	err := rt.cfg.Breaker.Do(r.Context(), func(context.Context) error {
		var ferr error
		resp, ferr = rt.fetch(r)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// storeEntry writes a fetched response into the cache store. Failures are
// logged, never surfaced: caching is an optimization, not a contract.
func (rt *Router) storeEntry(ctx context.Context, partition, key string, resp *fetchedResponse) {
	entry := cache.NewEntry(key, resp.Status, resp.Header, resp.Body)
	if err := rt.store.Put(ctx, partition, entry); err != nil {
		rt.logger.Error("cache write failed", "key", key, "partition", partition, "error", err)
	}
}

// logFailure classifies an upstream failure and logs it with the request
// context attached.
func (rt *Router) logFailure(err error, r *http.Request, operation string) {
	classified := faults.Classify(err).WithOperation(operation)
	faults.Log(rt.logger, classified, &faults.Context{
		UserAgent: r.UserAgent(),
		URL:       r.URL.String(),
	})
}

// rootKey is the cache key of the application root page, the last-resort
// navigation fallback.
func (rt *Router) rootKey() string {
	root := *rt.cfg.AppOrigin
	root.Path = "/"
	return cache.RequestKey(http.MethodGet, &root)
}
