// Package cache provides the two-tier memoization layer for expensive
// aggregation results: a short-lived in-process tier that also coalesces
// concurrently in-flight computations per key, backed by a shared durable
// store consulted on in-process misses.
//
// Tier-2 failures are never surfaced to callers; they degrade to a miss and
// the caller's compute function runs as the fallback path.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"log/slog"
)

// slot is the tagged state of one cache key: either a resolved value with
// its fetch timestamp, or a pending in-flight computation that later
// callers attach to.
type slot[V any] interface {
	isSlot()
}

type resolvedSlot[V any] struct {
	data V
	at   time.Time
}

func (resolvedSlot[V]) isSlot() {}

// pendingSlot is the shared future for an in-flight computation. val and
// err are written exactly once, before done is closed.
type pendingSlot[V any] struct {
	done chan struct{}
	val  V
	err  error
}

func (*pendingSlot[V]) isSlot() {}

// Cache is the in-process tier keyed by string, with single-flight
// computation and an optional durable backing store. The mutex guards only
// the slot map; lookups, computations and store writes happen outside it.
type Cache[V any] struct {
	mu    sync.Mutex
	slots map[string]slot[V]
	ttl   time.Duration
	store Store
	log   *slog.Logger
}

// NewCache builds a cache with the given in-process TTL. store may be nil
// for a purely in-process cache.
func NewCache[V any](logger *slog.Logger, ttl time.Duration, store Store) *Cache[V] {
	return &Cache[V]{
		slots: make(map[string]slot[V]),
		ttl:   ttl,
		store: store,
		log:   logger,
	}
}

// Get returns the cached value for key, consulting the durable store on an
// in-process miss. It never blocks on an in-flight computation and never
// returns a store error: absent or unreachable both read as a miss.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V

	c.mu.Lock()
	switch s := c.slots[key].(type) {
	case resolvedSlot[V]:
		if time.Since(s.at) < c.ttl {
			c.mu.Unlock()
			return s.data, true
		}
		delete(c.slots, key)
	}
	c.mu.Unlock()

	val, ok := c.storeGet(ctx, key)
	if !ok {
		return zero, false
	}
	c.storeResolved(key, val)
	return val, true
}

// GetOrCompute returns the value for key, computing it at most once across
// concurrent callers. The first caller to miss owns the lookup (durable
// store first, then fn); every caller arriving before it resolves receives
// the identical result. Failed computations are never cached, so the next
// call retries cleanly.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error) {
	var zero V

	c.mu.Lock()
	switch s := c.slots[key].(type) {
	case resolvedSlot[V]:
		if time.Since(s.at) < c.ttl {
			c.mu.Unlock()
			return s.data, nil
		}
		delete(c.slots, key)
	case *pendingSlot[V]:
		c.mu.Unlock()
		select {
		case <-s.done:
			return s.val, s.err
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	p := &pendingSlot[V]{done: make(chan struct{})}
	c.slots[key] = p
	c.mu.Unlock()

	val, fromStore, err := c.lookup(ctx, key, fn)

	c.mu.Lock()
	if err != nil {
		delete(c.slots, key)
	} else {
		c.slots[key] = resolvedSlot[V]{data: val, at: time.Now()}
	}
	c.mu.Unlock()

	p.val, p.err = val, err
	close(p.done)

	if err == nil && !fromStore {
		c.storeSet(ctx, key, val)
	}
	return val, err
}

// BatchGet resolves several keys at once, partitioning them into warm
// unexpired in-process entries and keys needing a single multi-key durable
// lookup. The result preserves the input ordering, with nil in place of
// every key found neither warm nor stored.
func (c *Cache[V]) BatchGet(ctx context.Context, keys []string) []*V {
	results := make([]*V, len(keys))
	var missing []string
	missingIdx := make(map[string][]int)

	c.mu.Lock()
	for i, key := range keys {
		if s, ok := c.slots[key].(resolvedSlot[V]); ok && time.Since(s.at) < c.ttl {
			data := s.data
			results[i] = &data
			continue
		}
		if len(missingIdx[key]) == 0 {
			missing = append(missing, key)
		}
		missingIdx[key] = append(missingIdx[key], i)
	}
	c.mu.Unlock()

	if len(missing) == 0 || c.store == nil {
		return results
	}

	rows, err := c.store.BatchGet(ctx, missing)
	if err != nil {
		c.log.Warn("durable cache batch lookup failed", slog.Any("error", err))
		return results
	}

	for key, raw := range rows {
		var val V
		if err := json.Unmarshal(raw, &val); err != nil {
			c.log.Warn("discarding undecodable cache entry", slog.String("key", key), slog.Any("error", err))
			continue
		}
		c.storeResolved(key, val)
		for _, i := range missingIdx[key] {
			data := val
			results[i] = &data
		}
	}
	return results
}

// Sweep evicts expired resolved entries and reports how many were removed.
// Pending entries are left alone; their owners clear them on completion.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, s := range c.slots {
		if r, ok := s.(resolvedSlot[V]); ok && time.Since(r.at) >= c.ttl {
			delete(c.slots, key)
			removed++
		}
	}
	return removed
}

// lookup consults the durable store, falling back to fn. Store errors are
// logged and degrade to a miss; only fn errors propagate.
func (c *Cache[V]) lookup(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, bool, error) {
	if val, ok := c.storeGet(ctx, key); ok {
		return val, true, nil
	}
	val, err := fn(ctx)
	return val, false, err
}

func (c *Cache[V]) storeGet(ctx context.Context, key string) (V, bool) {
	var zero V
	if c.store == nil {
		return zero, false
	}
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("durable cache lookup failed", slog.String("key", key), slog.Any("error", err))
		return zero, false
	}
	if !ok {
		return zero, false
	}
	var val V
	if err := json.Unmarshal(raw, &val); err != nil {
		c.log.Warn("discarding undecodable cache entry", slog.String("key", key), slog.Any("error", err))
		return zero, false
	}
	return val, true
}

func (c *Cache[V]) storeSet(ctx context.Context, key string, val V) {
	if c.store == nil {
		return
	}
	raw, err := json.Marshal(val)
	if err != nil {
		c.log.Warn("failed to encode cache entry", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		c.log.Warn("durable cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

// storeResolved installs a resolved value without clobbering an in-flight
// computation for the same key.
func (c *Cache[V]) storeResolved(key string, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.slots[key].(*pendingSlot[V]); busy {
		return
	}
	c.slots[key] = resolvedSlot[V]{data: val, at: time.Now()}
}
