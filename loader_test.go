package smartcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrLoadCachesResult(t *testing.T) {
	cache, _ := newTestCache[string](t, 10, Options[string]{DefaultTTL: time.Hour})
	ctx := context.Background()

	var calls atomic.Int32
	load := func(context.Context) (string, error) {
		calls.Add(1)
		return "answer", nil
	}

	for i := 0; i < 3; i++ {
		v, err := cache.GetOrLoad(ctx, "prompt", load)
		if err != nil || v != "answer" {
			t.Fatalf("GetOrLoad = %q, %v", v, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("Expected a single load, got %d", n)
	}
}

func TestGetOrLoadDeduplicatesConcurrentMisses(t *testing.T) {
	cache, _ := newTestCache[int](t, 10, Options[int]{DefaultTTL: time.Hour})
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := cache.GetOrLoad(ctx, "k", load)
			if err != nil {
				t.Errorf("GetOrLoad failed: %v", err)
			}
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, v := range results {
		if v != 7 {
			t.Errorf("result %d = %d, want 7", i, v)
		}
	}
	if n := calls.Load(); n < 1 || n > 2 {
		t.Errorf("Expected concurrent misses to share a load, got %d loads", n)
	}
}

func TestGetOrLoadErrorIsNotCached(t *testing.T) {
	cache, _ := newTestCache[int](t, 10, Options[int]{DefaultTTL: time.Hour})
	boom := errors.New("upstream unavailable")

	_, err := cache.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected loader error, got %v", err)
	}
	if _, ok := cache.Get("k"); ok {
		t.Errorf("Failed loads must not be cached")
	}
}

func TestGetOrLoadWithTTL(t *testing.T) {
	cache, mock := newTestCache[int](t, 10, Options[int]{DefaultTTL: time.Hour})

	v, err := cache.GetOrLoadWithTTL(context.Background(), "k", time.Second, func(context.Context) (int, error) {
		return 1, nil
	})
	if err != nil || v != 1 {
		t.Fatalf("GetOrLoadWithTTL = %d, %v", v, err)
	}
	mock.Add(time.Second)
	if _, ok := cache.Get("k"); ok {
		t.Errorf("Loaded value should honour the explicit TTL")
	}
}

func TestGetOrLoadContextCancelled(t *testing.T) {
	cache, _ := newTestCache[int](t, 10, Options[int]{DefaultTTL: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := cache.GetOrLoad(ctx, "slow", func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestGetOrLoadSharedLoadRechecksCache(t *testing.T) {
	cache, _ := newTestCache[int](t, 10, Options[int]{DefaultTTL: time.Hour})

	// Simulates a caller whose miss raced with an earlier load storing k.
	if err := cache.Set("k", 1); err != nil {
		t.Fatalf("Failed to set k: %v", err)
	}

	var calls atomic.Int32
	v, err := cache.loadShared(context.Background(), "k", time.Hour, func(context.Context) (int, error) {
		calls.Add(1)
		return 2, nil
	})
	if err != nil || v != 1 {
		t.Errorf("loadShared = %d, %v; want the stored value", v, err)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("Expected no load for a stored key, got %d", n)
	}
	if s := cache.Stats(); s.Hits != 0 || s.Misses != 0 {
		t.Errorf("Re-check should not count as a lookup, got %+v", s)
	}
}
