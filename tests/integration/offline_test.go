// Package integration exercises the gateway end to end: install, live
// traffic, a simulated outage, and recovery through the deferred-submission
// queue.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milvetnav/navigator-gateway/internal/resilience"
	"github.com/milvetnav/navigator-gateway/pkg/cache"
	"github.com/milvetnav/navigator-gateway/pkg/domain"
	"github.com/milvetnav/navigator-gateway/pkg/lifecycle"
	"github.com/milvetnav/navigator-gateway/pkg/notify"
	"github.com/milvetnav/navigator-gateway/pkg/proxy"
)

// newAppServer serves the application shell and assets.
func newAppServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>navigator shell</html>")
	})
	mux.HandleFunc("/assets/app.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = io.WriteString(w, "body{margin:0}")
	})
	return httptest.NewServer(mux)
}

// newAPIServer serves the backend REST endpoints.
func newAPIServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/v1/clinics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"clinics":["walter-reed"]}`)
	})
	mux.HandleFunc("POST /rest/v1/claims", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	return httptest.NewServer(mux)
}

func TestOfflineJourney(t *testing.T) {
	appSrv := newAppServer()
	defer appSrv.Close()
	apiSrv := newAPIServer()
	defer apiSrv.Close()

	appOrigin, err := url.Parse(appSrv.URL)
	require.NoError(t, err)
	apiOrigin, err := url.Parse(apiSrv.URL)
	require.NoError(t, err)

	store := cache.NewMemoryStore()
	queue := notify.NewMemoryQueue()
	hub := notify.NewHub(nil)
	ctx := context.Background()

	// Install: seed the static partition from the deploy manifest.
	mgr, err := lifecycle.NewManager(lifecycle.ManagerConfig{
		Store:     store,
		AppOrigin: appOrigin,
		Version:   "v1",
		Hub:       hub,
		Retry:     resilience.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	require.NoError(t, err)
	require.NoError(t, mgr.Install(ctx, &lifecycle.Manifest{
		StaticAssets:  []string{"/assets/app.css"},
		OfflineRoutes: []string{"/"},
	}))
	require.NoError(t, mgr.Activate(ctx))

	router := proxy.NewRouter(proxy.Config{
		Store:     store,
		AppOrigin: appOrigin,
		APIHost:   apiOrigin.Host,
		Version:   "v1",
		Queue:     queue,
	})

	// Live phase: an API read passes through and lands in the dynamic
	// partition.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, apiSrv.URL+"/rest/v1/clinics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "walter-reed")

	// Outage: both upstreams go dark.
	appSrv.Close()
	apiSrv.Close()

	// The cached API read still resolves, marked as cache-served.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, apiSrv.URL+"/rest/v1/clinics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(domain.HeaderServedFromCache))
	assert.Contains(t, rec.Body.String(), "walter-reed")

	// An uncached API read resolves to structured JSON, never a dropped
	// connection.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, apiSrv.URL+"/rest/v1/appointments", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var errBody domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "network_unavailable", errBody.Error)

	// The precached asset is served from the static partition.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, appSrv.URL+"/assets/app.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{margin:0}", rec.Body.String())

	// Navigation to an unvisited page falls back to the precached shell.
	navReq := httptest.NewRequest(http.MethodGet, appSrv.URL+"/resources/tricare", nil)
	navReq.Header.Set("Sec-Fetch-Mode", "navigate")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, navReq)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "navigator shell")

	// A submission made during the outage is deferred, not lost.
	claim := httptest.NewRequest(http.MethodPost, apiSrv.URL+"/rest/v1/claims", strings.NewReader(`{"kind":"travel"}`))
	claim.Header.Set(domain.HeaderBackgroundSync, "claim-001")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, claim)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	depth, err := queue.Depth(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, depth)

	// Recovery: a fresh backend accepts the replayed submission.
	recovered := newAPIServer()
	defer recovered.Close()
	recoveredURL, err := url.Parse(recovered.URL)
	require.NoError(t, err)

	client := recovered.Client()
	replayed, err := queue.Replay(ctx, func(ctx context.Context, p notify.Pending) error {
		target, perr := url.Parse(p.URL)
		if perr != nil {
			return perr
		}
		target.Scheme = recoveredURL.Scheme
		target.Host = recoveredURL.Host

		req, rerr := http.NewRequestWithContext(ctx, p.Method, target.String(), strings.NewReader(string(p.Body)))
		if rerr != nil {
			return rerr
		}
		resp, derr := client.Do(req)
		if derr != nil {
			return derr
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return assert.AnError
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, replayed)

	depth, err = queue.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestVersionRolloverDropsStaleEntries(t *testing.T) {
	appSrv := newAppServer()
	defer appSrv.Close()

	appOrigin, err := url.Parse(appSrv.URL)
	require.NoError(t, err)

	store := cache.NewMemoryStore()
	ctx := context.Background()

	// Seed generation v1 with the shell and a stylesheet.
	v1, err := lifecycle.NewManager(lifecycle.ManagerConfig{Store: store, AppOrigin: appOrigin, Version: "v1"})
	require.NoError(t, err)
	require.NoError(t, v1.Install(ctx, &lifecycle.Manifest{
		StaticAssets:  []string{"/assets/app.css"},
		OfflineRoutes: []string{"/"},
	}))

	// Deploy generation v2 with a smaller manifest. The shared asset moves
	// to the new partition; the dropped route stays behind in the old one.
	v2, err := lifecycle.NewManager(lifecycle.ManagerConfig{Store: store, AppOrigin: appOrigin, Version: "v2"})
	require.NoError(t, err)
	require.NoError(t, v2.Install(ctx, &lifecycle.Manifest{StaticAssets: []string{"/assets/app.css"}}))

	// Before activation both generations coexist.
	parts, err := store.Partitions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"static-v1", "static-v2"}, parts)

	require.NoError(t, v2.Activate(ctx))

	// Activation is the only point where entries are evicted.
	parts, err = store.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"static-v2"}, parts)

	keys, err := store.Keys(ctx, "static-v2")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}
