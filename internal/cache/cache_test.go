package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"log/slog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Value int `json:"value"`
}

// fakeStore records calls and serves canned responses for the durable tier.
type fakeStore struct {
	mu      sync.Mutex
	rows    map[string][]byte
	getErr  error
	gets    int
	sets    int
	batches int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string][]byte)}
}

func (s *fakeStore) put(key string, val any) {
	raw, _ := json.Marshal(val)
	s.mu.Lock()
	s.rows[key] = raw
	s.mu.Unlock()
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	raw, ok := s.rows[key]
	return raw, ok, nil
}

func (s *fakeStore) BatchGet(_ context.Context, keys []string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	if s.getErr != nil {
		return nil, s.getErr
	}
	out := make(map[string][]byte)
	for _, key := range keys {
		if raw, ok := s.rows[key]; ok {
			out[key] = raw
		}
	}
	return out, nil
}

func (s *fakeStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	s.rows[key] = value
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetOrComputeMemoizesWithinTTL(t *testing.T) {
	cache := NewCache[sample](discardLogger(), time.Minute, nil)
	var calls atomic.Int32

	compute := func(context.Context) (sample, error) {
		calls.Add(1)
		return sample{Value: 42}, nil
	}

	first, err := cache.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	second, err := cache.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)

	assert.Equal(t, sample{Value: 42}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrComputeCoalescesConcurrentCallers(t *testing.T) {
	cache := NewCache[sample](discardLogger(), time.Minute, nil)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (sample, error) {
		calls.Add(1)
		<-release
		return sample{Value: 7}, nil
	}

	const workers = 16
	results := make([]sample, workers)
	errs := make([]error, workers)
	var started, finished sync.WaitGroup
	started.Add(workers)
	finished.Add(workers)

	for i := 0; i < workers; i++ {
		go func(i int) {
			defer finished.Done()
			started.Done()
			results[i], errs[i] = cache.GetOrCompute(context.Background(), "hot", compute)
		}(i)
	}

	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	finished.Wait()

	assert.Equal(t, int32(1), calls.Load(), "only one caller should own the computation")
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, sample{Value: 7}, results[i])
	}
}

func TestGetOrComputeFailureIsNotCached(t *testing.T) {
	cache := NewCache[sample](discardLogger(), time.Minute, nil)
	var calls atomic.Int32

	_, err := cache.GetOrCompute(context.Background(), "k", func(context.Context) (sample, error) {
		calls.Add(1)
		return sample{}, errors.New("upstream down")
	})
	require.Error(t, err)

	val, err := cache.GetOrCompute(context.Background(), "k", func(context.Context) (sample, error) {
		calls.Add(1)
		return sample{Value: 3}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, sample{Value: 3}, val)
	assert.Equal(t, int32(2), calls.Load(), "a failed computation must be retried")
}

func TestGetOrComputeStoreHitSkipsCompute(t *testing.T) {
	store := newFakeStore()
	store.put("warm", sample{Value: 11})
	cache := NewCache[sample](discardLogger(), time.Minute, store)

	val, err := cache.GetOrCompute(context.Background(), "warm", func(context.Context) (sample, error) {
		t.Fatal("compute must not run on a durable hit")
		return sample{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, sample{Value: 11}, val)
	assert.Equal(t, 0, store.sets, "a store-sourced value must not be written back")

	// The hit is now warm in-process; the store is not consulted again.
	gets := store.gets
	_, err = cache.GetOrCompute(context.Background(), "warm", func(context.Context) (sample, error) {
		return sample{}, errors.New("unexpected")
	})
	require.NoError(t, err)
	assert.Equal(t, gets, store.gets)
}

func TestGetOrComputeStoreFailureDegradesToCompute(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("disk on fire")
	cache := NewCache[sample](discardLogger(), time.Minute, store)

	val, err := cache.GetOrCompute(context.Background(), "k", func(context.Context) (sample, error) {
		return sample{Value: 5}, nil
	})
	require.NoError(t, err, "durable-tier failures must stay invisible to callers")
	assert.Equal(t, sample{Value: 5}, val)
}

func TestGetOrComputeWriteThrough(t *testing.T) {
	store := newFakeStore()
	cache := NewCache[sample](discardLogger(), time.Minute, store)

	_, err := cache.GetOrCompute(context.Background(), "k", func(context.Context) (sample, error) {
		return sample{Value: 9}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.sets)

	raw, ok := store.rows["k"]
	require.True(t, ok)
	var decoded sample
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, sample{Value: 9}, decoded)
}

func TestGetDoesNotBlockOnPendingComputation(t *testing.T) {
	cache := NewCache[sample](discardLogger(), time.Minute, nil)

	release := make(chan struct{})
	go cache.GetOrCompute(context.Background(), "slow", func(context.Context) (sample, error) {
		<-release
		return sample{Value: 1}, nil
	})
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := cache.Get(context.Background(), "slow")
		assert.False(t, ok)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Get blocked behind an in-flight computation")
	}
	close(release)
}

func TestBatchGetPreservesOrderingAndMisses(t *testing.T) {
	store := newFakeStore()
	store.put("stored", sample{Value: 2})
	cache := NewCache[sample](discardLogger(), time.Minute, store)

	_, err := cache.GetOrCompute(context.Background(), "warm", func(context.Context) (sample, error) {
		return sample{Value: 1}, nil
	})
	require.NoError(t, err)

	results := cache.BatchGet(context.Background(), []string{"warm", "missing", "stored", "warm"})
	require.Len(t, results, 4)

	require.NotNil(t, results[0])
	assert.Equal(t, sample{Value: 1}, *results[0])
	assert.Nil(t, results[1])
	require.NotNil(t, results[2])
	assert.Equal(t, sample{Value: 2}, *results[2])
	require.NotNil(t, results[3])
	assert.Equal(t, sample{Value: 1}, *results[3])

	assert.Equal(t, 1, store.batches, "one durable lookup covers every in-process miss")
}

func TestBatchGetStoreFailureReturnsWarmEntriesOnly(t *testing.T) {
	store := newFakeStore()
	cache := NewCache[sample](discardLogger(), time.Minute, store)

	_, err := cache.GetOrCompute(context.Background(), "warm", func(context.Context) (sample, error) {
		return sample{Value: 4}, nil
	})
	require.NoError(t, err)
	store.getErr = errors.New("timeout")

	results := cache.BatchGet(context.Background(), []string{"warm", "cold"})
	require.NotNil(t, results[0])
	assert.Equal(t, sample{Value: 4}, *results[0])
	assert.Nil(t, results[1])
}

func TestSweepEvictsOnlyExpiredEntries(t *testing.T) {
	cache := NewCache[sample](discardLogger(), 30*time.Millisecond, nil)

	_, err := cache.GetOrCompute(context.Background(), "old", func(context.Context) (sample, error) {
		return sample{Value: 1}, nil
	})
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	_, err = cache.GetOrCompute(context.Background(), "fresh", func(context.Context) (sample, error) {
		return sample{Value: 2}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, cache.Sweep())

	val, ok := cache.Get(context.Background(), "fresh")
	require.True(t, ok)
	assert.Equal(t, sample{Value: 2}, val)
}
