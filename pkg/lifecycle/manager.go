package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/milvetnav/navigator-gateway/internal/resilience"
	"github.com/milvetnav/navigator-gateway/pkg/cache"
	"github.com/milvetnav/navigator-gateway/pkg/domain"
	"github.com/milvetnav/navigator-gateway/pkg/notify"
	"github.com/milvetnav/navigator-gateway/pkg/telemetry"
)

// ManagerConfig wires the lifecycle manager's collaborators.
type ManagerConfig struct {
	Store cache.Store
	// Upstream fetches manifest entries during install. Defaults to
	// http.DefaultTransport.
	Upstream http.RoundTripper
	// AppOrigin is the origin the manifest's relative paths resolve against.
	AppOrigin *url.URL
	// Version names the partitions this deployment owns.
	Version string
	// Hub, when set, receives an activation event so connected clients know
	// the cache generation changed.
	Hub     *notify.Hub
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	// Retry overrides the install fetch policy. Zero value selects defaults.
	Retry resilience.Policy
}

// Manager performs the install and activate phases of a deployment.
type Manager struct {
	store    cache.Store
	upstream http.RoundTripper
	origin   *url.URL
	version  string
	hub      *notify.Hub
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	retry    resilience.Policy

	staticPartition  string
	dynamicPartition string
}

// NewManager constructs a Manager from cfg.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("lifecycle: cache store is required")
	}
	if cfg.AppOrigin == nil {
		return nil, fmt.Errorf("lifecycle: app origin is required")
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
	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.BaseDelay == 0 {
		retry = resilience.DefaultPolicy()
	}

	return &Manager{
		store:            cfg.Store,
		upstream:         upstream,
		origin:           cfg.AppOrigin,
		version:          version,
		hub:              cfg.Hub,
		logger:           logger,
		metrics:          cfg.Metrics,
		retry:            retry,
		staticPartition:  domain.PartitionName(domain.PartitionStatic, version),
		dynamicPartition: domain.PartitionName(domain.PartitionDynamic, version),
	}, nil
}

// Install seeds the static partition with every manifest entry. It is
// idempotent: entries already cached are left alone, and a failed entry fails
// the whole install so a retried deployment starts from a known state.
func (m *Manager) Install(ctx context.Context, manifest *Manifest) error {
	start := time.Now()
	seeded := 0

	for _, p := range manifest.Paths() {
		target := *m.origin
		target.Path = p
		key := cache.RequestKey(http.MethodGet, &target)

		// Only entries already owned by this generation count as seeded; a
		// hit from an older partition must be refetched for the new one.
		if existing, err := m.store.Get(ctx, key); err == nil && existing.Partition == m.staticPartition {
			continue
		}

		entry, err := resilience.ExecuteWith(ctx, m.retry, func(ctx context.Context) (*cache.Entry, error) {
			return m.fetchEntry(ctx, key, &target)
		})
		if err != nil {
			return fmt.Errorf("precache %s: %w", p, err)
		}
		if err := m.store.Put(ctx, m.staticPartition, entry); err != nil {
			return fmt.Errorf("store %s: %w", p, err)
		}
		seeded++
	}

	m.logger.Info("install complete",
		"partition", m.staticPartition,
		"entries", len(manifest.Paths()),
		"seeded", seeded,
		"duration", time.Since(start),
	)
	return nil
}

// Activate retires partitions that belong to other cache versions. Entries
// are never evicted outside this call. Clients subscribed to the event hub
// are told the generation changed so they can refresh.
func (m *Manager) Activate(ctx context.Context) error {
	partitions, err := m.store.Partitions(ctx)
	if err != nil {
		return fmt.Errorf("list partitions: %w", err)
	}

	current := map[string]struct{}{
		m.staticPartition:  {},
		m.dynamicPartition: {},
	}

	dropped := 0
	for _, p := range partitions {
		if _, keep := current[p]; keep {
			continue
		}
		if err := m.store.DropPartition(ctx, p); err != nil {
			return fmt.Errorf("drop partition %s: %w", p, err)
		}
		m.metrics.RecordPartitionDrop()
		m.logger.Info("dropped stale partition", "partition", p)
		dropped++
	}

	m.logger.Info("activation complete", "version", m.version, "dropped", dropped)

	if m.hub != nil {
		if err := m.hub.Broadcast(notify.EventClaim, map[string]string{"version": m.version}); err != nil {
			m.logger.Warn("failed to announce activation", "error", err)
		}
	}
	return nil
}

// fetchEntry retrieves one manifest path and converts it into a cache entry.
// Non-2xx responses are errors here: a deployment must not seed error pages.
func (m *Manager) fetchEntry(ctx context.Context, key string, target *url.URL) (*cache.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.upstream.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return cache.NewEntry(key, resp.StatusCode, resp.Header.Clone(), body), nil
}
