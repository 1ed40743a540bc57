// Package lifecycle manages the cache partitions across deployments: seeding
// the static partition at install time, retiring stale partitions at
// activation, and reacting to manifest changes on disk.
package lifecycle

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest declares what the gateway precaches and which routes must work
// offline. It is the deploy artifact that changes with each release.
type Manifest struct {
	// StaticAssets are origin-relative paths seeded into the static
	// partition at install time.
	StaticAssets []string `yaml:"static_assets"`
	// OfflineRoutes are navigation paths precached so they resolve without
	// a network connection.
	OfflineRoutes []string `yaml:"offline_routes"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate rejects manifests whose entries are not origin-relative paths.
func (m *Manifest) Validate() error {
	for _, p := range append(append([]string{}, m.StaticAssets...), m.OfflineRoutes...) {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("manifest entry %q must be an origin-relative path", p)
		}
	}
	return nil
}

// Paths returns every path the manifest wants precached, assets first.
func (m *Manifest) Paths() []string {
	out := make([]string, 0, len(m.StaticAssets)+len(m.OfflineRoutes))
	out = append(out, m.StaticAssets...)
	out = append(out, m.OfflineRoutes...)
	return out
}
