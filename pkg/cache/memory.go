package cache

import (
	"context"
	"sync"

	"github.com/milvetnav/navigator-gateway/pkg/domain"
)

// MemoryStore is the in-memory Store used by single-instance deployments and
// tests. Writes replace entries atomically under the store lock, which gives
// the last-write-wins semantics the router relies on.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	partitions map[string]map[string]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]*Entry),
		partitions: make(map[string]map[string]struct{}),
	}
}

// Get retrieves the entry for key.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	dup := *entry
	return &dup, nil
}

// Put stores entry under partition, evicting the key from any other partition
// first so a key never lives in two partitions.
func (s *MemoryStore) Put(_ context.Context, partition string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[entry.Key]; ok && prev.Partition != partition {
		delete(s.partitions[prev.Partition], entry.Key)
		if len(s.partitions[prev.Partition]) == 0 {
			delete(s.partitions, prev.Partition)
		}
	}

	dup := *entry
	dup.Partition = partition
	s.entries[entry.Key] = &dup

	if s.partitions[partition] == nil {
		s.partitions[partition] = make(map[string]struct{})
	}
	s.partitions[partition][entry.Key] = struct{}{}
	return nil
}

// Delete removes the entry for key if present.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	delete(s.entries, key)
	delete(s.partitions[entry.Partition], key)
	if len(s.partitions[entry.Partition]) == 0 {
		delete(s.partitions, entry.Partition)
	}
	return nil
}

// Partitions lists partition names that currently hold entries.
func (s *MemoryStore) Partitions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.partitions))
	for name := range s.partitions {
		names = append(names, name)
	}
	return names, nil
}

// Keys lists the keys stored in a partition.
func (s *MemoryStore) Keys(_ context.Context, partition string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.partitions[partition]))
	for key := range s.partitions[partition] {
		keys = append(keys, key)
	}
	return keys, nil
}

// DropPartition removes a partition and all of its entries.
func (s *MemoryStore) DropPartition(_ context.Context, partition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.partitions[partition] {
		delete(s.entries, key)
	}
	delete(s.partitions, partition)
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
