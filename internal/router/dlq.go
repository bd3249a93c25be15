package router

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mystiatech/conductor/internal/clog"
	"github.com/mystiatech/conductor/internal/conductor"
	"github.com/mystiatech/conductor/internal/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	dlqHashKeyPrefix = "conductor:dlq:"
	dlqNextRetryZSet = "conductor:dlq:next_retry"
)

// Store persists and retrieves DLQEntry records. Two implementations exist:
// a Redis-backed store (production) and an in-memory store (fallback when
// Redis is disabled or unreachable), mirroring the teacher's cache
// "degrade-gracefully" pattern.
type Store interface {
	Save(ctx context.Context, entry conductor.DLQEntry) error
	Delete(ctx context.Context, requestID string) error
	Due(ctx context.Context, now time.Time) ([]conductor.DLQEntry, error)
	Size(ctx context.Context) (int, error)
}

// DLQ is the dead-letter queue: a separate retry loop that periodically
// reattempts failed requests with exponential backoff up to max_retries.
type DLQ struct {
	store      Store
	executor   Executor
	metrics    *metrics.Registry
	maxRetries int

	pollInterval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	running bool
}

// NewDLQ constructs a DLQ backed by store.
func NewDLQ(store Store, executor Executor, reg *metrics.Registry, maxRetries int, pollInterval time.Duration) *DLQ {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &DLQ{
		store:        store,
		executor:     executor,
		metrics:      reg,
		maxRetries:   maxRetries,
		pollInterval: pollInterval,
	}
}

// Enqueue stores a newly-failed request for later retry.
func (d *DLQ) Enqueue(ctx context.Context, entry conductor.DLQEntry) {
	if entry.MaxRetries == 0 {
		entry.MaxRetries = d.maxRetries
	}
	if entry.NextRetry.IsZero() {
		entry.NextRetry = time.Now().Add(backoff(entry.RetryCount))
	}
	if err := d.store.Save(ctx, entry); err != nil {
		clog.Router().Error().Err(err).Str("request_id", entry.RequestID).Msg("dlq enqueue failed")
		return
	}
	if d.metrics != nil {
		if n, err := d.store.Size(ctx); err == nil {
			d.metrics.SetDLQSize(n)
		}
	}
}

// backoff is min(2^retry_count, 30) seconds.
func backoff(retryCount int) time.Duration {
	seconds := math.Min(math.Pow(2, float64(retryCount)), 30)
	return time.Duration(seconds) * time.Second
}

// Start runs the 5s (default) retry sweep loop until Stop is called.
func (d *DLQ) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.mu.Unlock()

	go d.loop(ctx)
}

func (d *DLQ) loop(ctx context.Context) {
	defer close(d.doneCh)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.sweep(ctx)
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the retry loop.
func (d *DLQ) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopCh)
	doneCh := d.doneCh
	d.mu.Unlock()
	<-doneCh
}

func (d *DLQ) sweep(ctx context.Context) {
	due, err := d.store.Due(ctx, time.Now())
	if err != nil {
		clog.Router().Error().Err(err).Msg("dlq sweep: fetch due entries failed")
		return
	}

	for _, entry := range due {
		retryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		result := d.executor.ExecuteRequest(retryCtx, entry.PluginName, entry.Request, "")
		cancel()

		if result.Success {
			if err := d.store.Delete(ctx, entry.RequestID); err != nil {
				clog.Router().Error().Err(err).Str("request_id", entry.RequestID).Msg("dlq delete after success failed")
			}
			if d.metrics != nil {
				d.metrics.RoutingRequestsTotal.WithLabelValues(entry.PluginName, "dlq_retry_success").Inc()
			}
			continue
		}

		entry.Error = result.Error
		entry.RetryCount++
		entry.LastAttempt = time.Now()

		if entry.RetryCount >= entry.MaxRetries {
			if err := d.store.Delete(ctx, entry.RequestID); err != nil {
				clog.Router().Error().Err(err).Str("request_id", entry.RequestID).Msg("dlq delete after max retries failed")
			}
			clog.Router().Warn().Str("request_id", entry.RequestID).Int("retry_count", entry.RetryCount).Msg("dlq entry dropped after max retries")
			if d.metrics != nil {
				d.metrics.RoutingRequestsTotal.WithLabelValues(entry.PluginName, "dlq_failed").Inc()
			}
			continue
		}

		entry.NextRetry = time.Now().Add(backoff(entry.RetryCount))
		if err := d.store.Save(ctx, entry); err != nil {
			clog.Router().Error().Err(err).Str("request_id", entry.RequestID).Msg("dlq resave after failed retry failed")
		}
	}

	if d.metrics != nil {
		if n, err := d.store.Size(ctx); err == nil {
			d.metrics.SetDLQSize(n)
		}
	}
}

// RedisStore is the production Store, backing DLQEntry records as Redis
// hashes keyed conductor:dlq:<request_id> with a ZSET sorted by next_retry
// unix time, giving the sweep an O(log n) "entries due now" range query.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing go-redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Save(ctx context.Context, entry conductor.DLQEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}
	key := dlqHashKeyPrefix + entry.RequestID
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.ZAdd(ctx, dlqNextRetryZSet, redis.Z{Score: float64(entry.NextRetry.Unix()), Member: entry.RequestID})
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Delete(ctx context.Context, requestID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, dlqHashKeyPrefix+requestID)
	pipe.ZRem(ctx, dlqNextRetryZSet, requestID)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Due(ctx context.Context, now time.Time) ([]conductor.DLQEntry, error) {
	ids, err := r.client.ZRangeByScore(ctx, dlqNextRetryZSet, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return nil, err
	}

	var out []conductor.DLQEntry
	for _, id := range ids {
		data, err := r.client.Get(ctx, dlqHashKeyPrefix+id).Result()
		if err != nil {
			continue
		}
		var entry conductor.DLQEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *RedisStore) Size(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, dlqNextRetryZSet).Result()
	return int(n), err
}

// MemoryStore is the in-memory fallback Store used when Redis is disabled
// or unreachable.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]conductor.DLQEntry
}

// NewMemoryStore constructs an empty in-memory DLQ store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]conductor.DLQEntry{}}
}

func (m *MemoryStore) Save(ctx context.Context, entry conductor.DLQEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.RequestID] = entry
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, requestID)
	return nil
}

func (m *MemoryStore) Due(ctx context.Context, now time.Time) ([]conductor.DLQEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []conductor.DLQEntry
	for _, e := range m.entries {
		if !e.NextRetry.After(now) && e.RetryCount < e.MaxRetries {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) Size(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}
