// Package cache provides the partitioned response store backing the gateway's
// offline strategies. Partitions are named, versioned collections of entries;
// a given key exists in at most one partition at a time, and entries are only
// evicted wholesale at version-upgrade boundaries, never by TTL or LRU.
package cache

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/milvetnav/navigator-gateway/pkg/domain"
)

// Entry is a stored response keyed by request identity. Entries are owned
// exclusively by the store; writers always replace them wholesale.
type Entry struct {
	Key       string      `json:"key"`
	Status    int         `json:"status"`
	Header    http.Header `json:"header"`
	Body      []byte      `json:"body"`
	StoredAt  time.Time   `json:"stored_at"`
	Partition string      `json:"partition"`
}

// Store exposes persistence operations for cached responses. Implementations
// must be safe for concurrent use; key collisions resolve last-write-wins.
type Store interface {
	// Get returns the entry for key, or domain.ErrEntryNotFound.
	Get(ctx context.Context, key string) (*Entry, error)
	// Put stores entry under the named partition, replacing any previous
	// entry with the same key in ANY partition.
	Put(ctx context.Context, partition string, entry *Entry) error
	// Delete removes the entry for key if present.
	Delete(ctx context.Context, key string) error
	// Partitions lists the partition names that currently hold entries.
	Partitions(ctx context.Context) ([]string, error)
	// Keys lists the keys stored in a partition.
	Keys(ctx context.Context, partition string) ([]string, error)
	// DropPartition removes a partition and all of its entries.
	DropPartition(ctx context.Context, partition string) error
	// Close releases the backing resources.
	Close() error
}

// RequestKey builds the canonical cache key for a request: the method plus
// the normalized URL. Only GET responses are ever stored, but the method is
// kept in the key so the invariant is visible in the data.
func RequestKey(method string, u *url.URL) string {
	normalized := *u
	normalized.Fragment = ""
	normalized.Host = strings.ToLower(normalized.Host)
	normalized.Scheme = strings.ToLower(normalized.Scheme)
	return strings.ToUpper(method) + " " + normalized.String()
}

// NewEntry captures a response body and metadata into a store entry.
func NewEntry(key string, status int, header http.Header, body []byte) *Entry {
	return &Entry{
		Key:      key,
		Status:   status,
		Header:   header.Clone(),
		Body:     body,
		StoredAt: time.Now(),
	}
}

// WriteTo replays a cached entry onto a ResponseWriter, marking it as served
// from cache.
func (e *Entry) WriteTo(w http.ResponseWriter) error {
	for k, vals := range e.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(domain.HeaderServedFromCache, "true")
	w.WriteHeader(e.Status)
	_, err := w.Write(e.Body)
	return err
}
