package proxy

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/milvetnav/navigator-gateway/internal/resilience"
	"github.com/milvetnav/navigator-gateway/pkg/cache"
	"github.com/milvetnav/navigator-gateway/pkg/domain"
	"github.com/milvetnav/navigator-gateway/pkg/notify"
	"github.com/milvetnav/navigator-gateway/pkg/telemetry"
)

// assetExtensions identifies script/style/image/font resources by path when
// the client does not send fetch-metadata headers.
var assetExtensions = map[string]struct{}{
	".js": {}, ".mjs": {}, ".css": {}, ".map": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".webp": {}, ".ico": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".otf": {}, ".eot": {},
}

// assetDestinations are the Sec-Fetch-Dest values routed to the asset strategy.
var assetDestinations = map[string]struct{}{
	"script": {}, "style": {}, "image": {}, "font": {},
}

// Config holds the router's collaborators and routing knobs.
type Config struct {
	// Store is the partitioned response cache.
	Store cache.Store
	// Upstream issues outgoing requests. Defaults to http.DefaultTransport.
	Upstream http.RoundTripper
	// AppOrigin is the origin serving the application itself.
	AppOrigin *url.URL
	// APIHost is the backend-as-a-service hostname that selects the API strategy.
	APIHost string
	// Version is the cache version tag (e.g. "v1") naming the partitions.
	Version string
	// Policy optionally overrides classification with a Rego decision.
	Policy *RoutePolicy
	// Queue, when set, accepts deferred non-GET submissions that opted in
	// via the X-Background-Sync header and failed at the transport level.
	Queue notify.Queue
	// Breaker guards the API upstream. Nil disables circuit breaking.
	Breaker *resilience.Breaker
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Router intercepts every application request and applies the caching
// strategy for its class. It implements http.Handler; each request is served
// on its own goroutine and the cache store is the only shared state.
type Router struct {
	store    cache.Store
	upstream http.RoundTripper
	cfg      Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics

	staticPartition  string
	dynamicPartition string
}

// NewRouter constructs a Router from cfg.
func NewRouter(cfg Config) *Router {
	if cfg.Store == nil {
		panic("proxy: cache store is required")
	}
	if cfg.AppOrigin == nil {
		panic("proxy: app origin is required")
	}
	upstream := cfg.Upstream
	if upstream == nil {
		upstream = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "v1"
	}

	return &Router{
		store:            cfg.Store,
		upstream:         upstream,
		cfg:              cfg,
		logger:           logger,
		metrics:          cfg.Metrics,
		staticPartition:  domain.PartitionName(domain.PartitionStatic, version),
		dynamicPartition: domain.PartitionName(domain.PartitionDynamic, version),
	}
}

// ServeHTTP classifies the request and dispatches its strategy.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(domain.HeaderRequestID)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	class := rt.classify(r)

	rt.logger.Debug("request intercepted",
		"method", r.Method,
		"host", requestHost(r),
		"path", r.URL.Path,
		"class", string(class),
		"request_id", requestID,
	)

	switch class {
	case domain.RouteBypass:
		rt.serveBypass(w, r, requestID)
	case domain.RouteAPI:
		rt.serveAPI(w, r, requestID)
	case domain.RouteNavigation:
		rt.serveNavigation(w, r, requestID)
	case domain.RouteAsset:
		rt.serveAsset(w, r, requestID)
	default:
		rt.serveDefault(w, r, requestID)
	}
}

// classify runs the ordered classification chain. A configured route policy
// may override the built-in decision; an unknown or failing policy result
// falls back to the chain.
func (rt *Router) classify(r *http.Request) domain.RouteClass {
	builtin := rt.classifyBuiltin(r)

	if rt.cfg.Policy != nil {
		if class, ok := rt.cfg.Policy.Evaluate(r.Context(), RouteInput{
			Method:      r.Method,
			Host:        requestHost(r),
			Path:        r.URL.Path,
			Destination: r.Header.Get("Sec-Fetch-Dest"),
			Mode:        r.Header.Get("Sec-Fetch-Mode"),
		}); ok {
			return class
		}
	}
	return builtin
}

// classifyBuiltin is the fixed, ordered chain: non-GET, API host, navigation,
// asset, default. First match wins.
func (rt *Router) classifyBuiltin(r *http.Request) domain.RouteClass {
	if r.Method != http.MethodGet {
		return domain.RouteBypass
	}
	if rt.isAPIHost(r) {
		return domain.RouteAPI
	}
	if isNavigation(r) {
		return domain.RouteNavigation
	}
	if isAsset(r) {
		return domain.RouteAsset
	}
	return domain.RouteDefault
}

func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func isAsset(r *http.Request) bool {
	if dest := r.Header.Get("Sec-Fetch-Dest"); dest != "" {
		_, ok := assetDestinations[dest]
		return ok
	}
	_, ok := assetExtensions[strings.ToLower(path.Ext(r.URL.Path))]
	return ok
}

// isAPIHost reports whether the request addresses the backend host. An
// APIHost configured with an explicit port must match host and port both.
func (rt *Router) isAPIHost(r *http.Request) bool {
	if rt.cfg.APIHost == "" {
		return false
	}
	if strings.Contains(rt.cfg.APIHost, ":") {
		host := r.URL.Host
		if host == "" {
			host = r.Host
		}
		return strings.EqualFold(host, rt.cfg.APIHost)
	}
	return strings.EqualFold(requestHost(r), rt.cfg.APIHost)
}

// requestHost returns the hostname the request addresses, without port.
func requestHost(r *http.Request) string {
	host := r.URL.Host
	if host == "" {
		host = r.Host
	}
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return host
}

// targetURL resolves where the request should be forwarded: API traffic goes
// to the API host directly, everything else to the application origin.
func (rt *Router) targetURL(r *http.Request) *url.URL {
	target := *r.URL
	if rt.isAPIHost(r) {
		target.Scheme = "https"
		if r.URL.Scheme != "" {
			target.Scheme = r.URL.Scheme
		}
		target.Host = r.URL.Host
		if target.Host == "" {
			target.Host = r.Host
		}
		return &target
	}

	target.Scheme = rt.cfg.AppOrigin.Scheme
	target.Host = rt.cfg.AppOrigin.Host
	return &target
}

// cacheKey is the canonical store key for a request.
func (rt *Router) cacheKey(r *http.Request) string {
	return cache.RequestKey(r.Method, rt.targetURL(r))
}

// fetch forwards the request upstream and buffers the response body so it can
// be both cached and replayed to the client.
func (rt *Router) fetch(r *http.Request) (*fetchedResponse, error) {
	target := rt.targetURL(r)

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}
	copyHeaders(out.Header, r.Header)

	resp, err := rt.upstream.RoundTrip(out)
	if err != nil {
		rt.metrics.RecordUpstreamError(target.Hostname())
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		rt.metrics.RecordUpstreamError(target.Hostname())
		return nil, err
	}

	return &fetchedResponse{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}

// fetchedResponse is a live upstream response, fully buffered.
type fetchedResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// ok reports whether the response is cacheable (2xx).
func (f *fetchedResponse) ok() bool {
	return f.Status >= 200 && f.Status < 300
}

func (f *fetchedResponse) writeTo(w http.ResponseWriter) {
	copyHeaders(w.Header(), f.Header)
	w.WriteHeader(f.Status)
	_, _ = w.Write(f.Body)
}

// hopByHopHeaders must not be forwarded between the client and upstream.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func copyHeaders(dst, src http.Header) {
	for k, vals := range src {
		if _, skip := hopByHopHeaders[http.CanonicalHeaderKey(k)]; skip {
			continue
		}
		for _, v := range vals {
			dst.Add(k, v)
		}
	}
}
