package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/milvetnav/navigator-gateway/pkg/domain"
)

// RedisStore persists cached responses in Redis so multiple gateway replicas
// share one cache. The layout keeps the single-partition-per-key invariant
// explicit:
//
//	navcache:entry:<key>       -> JSON-encoded Entry
//	navcache:part:<partition>  -> set of keys in that partition
//	navcache:partitions        -> set of known partition names
type RedisStore struct {
	rdb *redis.Client
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{rdb: rdb}, nil
}

func entryKey(key string) string      { return "navcache:entry:" + key }
func partitionKey(name string) string { return "navcache:part:" + name }
func partitionsIndex() string         { return "navcache:partitions" }

// Get retrieves the entry for key.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := s.rdb.Get(ctx, entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &entry, nil
}

// Put stores entry under partition, removing the key from any previous
// partition's index first.
func (s *RedisStore) Put(ctx context.Context, partition string, entry *Entry) error {
	if prev, err := s.Get(ctx, entry.Key); err == nil && prev.Partition != partition {
		if err := s.rdb.SRem(ctx, partitionKey(prev.Partition), entry.Key).Err(); err != nil {
			return fmt.Errorf("srem failed: %w", err)
		}
	}

	dup := *entry
	dup.Partition = partition
	raw, err := json.Marshal(&dup)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, entryKey(entry.Key), raw, 0)
	pipe.SAdd(ctx, partitionKey(partition), entry.Key)
	pipe.SAdd(ctx, partitionsIndex(), partition)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put failed: %w", err)
	}
	return nil
}

// Delete removes the entry for key if present.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	entry, err := s.Get(ctx, key)
	if errors.Is(err, domain.ErrEntryNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, entryKey(key))
	pipe.SRem(ctx, partitionKey(entry.Partition), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Partitions lists the known partition names.
func (s *RedisStore) Partitions(ctx context.Context) ([]string, error) {
	names, err := s.rdb.SMembers(ctx, partitionsIndex()).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers failed: %w", err)
	}
	return names, nil
}

// Keys lists the keys stored in a partition.
func (s *RedisStore) Keys(ctx context.Context, partition string) ([]string, error) {
	keys, err := s.rdb.SMembers(ctx, partitionKey(partition)).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers failed: %w", err)
	}
	return keys, nil
}

// DropPartition removes a partition and all of its entries.
func (s *RedisStore) DropPartition(ctx context.Context, partition string) error {
	keys, err := s.Keys(ctx, partition)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, entryKey(key))
	}
	pipe.Del(ctx, partitionKey(partition))
	pipe.SRem(ctx, partitionsIndex(), partition)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("drop partition failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Client exposes the underlying connection so other redis-backed components
// can share it.
func (s *RedisStore) Client() *redis.Client {
	return s.rdb
}
