package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pending is a deferred non-GET submission recorded while the network was
// unreachable. ID is the client-supplied idempotency key; a key that was
// already replayed successfully is never replayed again.
type Pending struct {
	ID       string      `json:"id"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	QueuedAt time.Time   `json:"queued_at"`
}

// Queue persists pending submissions in FIFO order. Implementations must be
// safe for concurrent use.
type Queue interface {
	// Enqueue records a pending submission. A duplicate ID is ignored.
	Enqueue(ctx context.Context, p Pending) error
	// Replay submits pending entries in FIFO order. Entries whose ID was
	// already accepted are skipped. Replay stops at the first submission
	// failure so order is preserved; it returns the number replayed.
	Replay(ctx context.Context, submit func(context.Context, Pending) error) (int, error)
	// Depth reports the number of pending submissions.
	Depth(ctx context.Context) (int, error)
}

// MemoryQueue is the in-process Queue used by single-instance deployments
// and tests.
type MemoryQueue struct {
	mu       sync.Mutex
	pending  []Pending
	accepted map[string]struct{}
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{accepted: make(map[string]struct{})}
}

// Enqueue records a pending submission, ignoring duplicate IDs.
func (q *MemoryQueue) Enqueue(_ context.Context, p Pending) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, done := q.accepted[p.ID]; done {
		return nil
	}
	for _, existing := range q.pending {
		if existing.ID == p.ID {
			return nil
		}
	}
	if p.QueuedAt.IsZero() {
		p.QueuedAt = time.Now()
	}
	q.pending = append(q.pending, p)
	return nil
}

// Replay submits pending entries in FIFO order.
func (q *MemoryQueue) Replay(ctx context.Context, submit func(context.Context, Pending) error) (int, error) {
	q.mu.Lock()
	batch := make([]Pending, len(q.pending))
	copy(batch, q.pending)
	q.mu.Unlock()

	replayed := 0
	for _, p := range batch {
		q.mu.Lock()
		_, done := q.accepted[p.ID]
		q.mu.Unlock()
		if done {
			q.drop(p.ID)
			continue
		}

		if err := submit(ctx, p); err != nil {
			return replayed, fmt.Errorf("replay %s %s: %w", p.Method, p.URL, err)
		}

		q.mu.Lock()
		q.accepted[p.ID] = struct{}{}
		q.mu.Unlock()
		q.drop(p.ID)
		replayed++
	}
	return replayed, nil
}

func (q *MemoryQueue) drop(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.pending {
		if p.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// Depth reports the number of pending submissions.
func (q *MemoryQueue) Depth(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), nil
}

// RedisQueue persists the deferred-submission queue in Redis so it survives
// gateway restarts. Layout:
//
//	navsync:queue    -> list of JSON-encoded Pending (FIFO)
//	navsync:accepted -> set of idempotency keys already replayed
type RedisQueue struct {
	rdb *redis.Client
}

// NewRedisQueue wraps an existing Redis client.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

const (
	redisQueueKey    = "navsync:queue"
	redisAcceptedKey = "navsync:accepted"
)

// Enqueue records a pending submission, ignoring duplicate IDs.
func (q *RedisQueue) Enqueue(ctx context.Context, p Pending) error {
	done, err := q.rdb.SIsMember(ctx, redisAcceptedKey, p.ID).Result()
	if err != nil {
		return fmt.Errorf("sismember failed: %w", err)
	}
	if done {
		return nil
	}

	if p.QueuedAt.IsZero() {
		p.QueuedAt = time.Now()
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending submission: %w", err)
	}
	if err := q.rdb.RPush(ctx, redisQueueKey, raw).Err(); err != nil {
		return fmt.Errorf("rpush failed: %w", err)
	}
	return nil
}

// Replay submits pending entries in FIFO order.
func (q *RedisQueue) Replay(ctx context.Context, submit func(context.Context, Pending) error) (int, error) {
	replayed := 0
	for {
		raw, err := q.rdb.LIndex(ctx, redisQueueKey, 0).Result()
		if err == redis.Nil {
			return replayed, nil
		}
		if err != nil {
			return replayed, fmt.Errorf("lindex failed: %w", err)
		}

		var p Pending
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			// A corrupt head entry would wedge the queue forever; drop it.
			_ = q.rdb.LPop(ctx, redisQueueKey).Err()
			continue
		}

		done, err := q.rdb.SIsMember(ctx, redisAcceptedKey, p.ID).Result()
		if err != nil {
			return replayed, fmt.Errorf("sismember failed: %w", err)
		}
		if !done {
			if err := submit(ctx, p); err != nil {
				return replayed, fmt.Errorf("replay %s %s: %w", p.Method, p.URL, err)
			}
			if err := q.rdb.SAdd(ctx, redisAcceptedKey, p.ID).Err(); err != nil {
				return replayed, fmt.Errorf("sadd failed: %w", err)
			}
			replayed++
		}

		if err := q.rdb.LPop(ctx, redisQueueKey).Err(); err != nil {
			return replayed, fmt.Errorf("lpop failed: %w", err)
		}
	}
}

// Depth reports the number of pending submissions.
func (q *RedisQueue) Depth(ctx context.Context) (int, error) {
	n, err := q.rdb.LLen(ctx, redisQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("llen failed: %w", err)
	}
	return int(n), nil
}
