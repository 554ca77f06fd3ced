package mediawiki

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoDo_ComputesOnce(t *testing.T) {
	var cache memoCache
	var calls atomic.Int64

	for i := 0; i < 3; i++ {
		v, err := cache.do("key", func() (any, error) {
			calls.Add(1)
			return "value", nil
		})
		if err != nil {
			t.Fatalf("do failed: %v", err)
		}
		if v != "value" {
			t.Errorf("do = %v, want value", v)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("compute ran %d times, want 1", n)
	}
}

func TestMemoDo_SingleFlight(t *testing.T) {
	var cache memoCache
	var calls atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cache.do("key", func() (any, error) {
				calls.Add(1)
				time.Sleep(10 * time.Millisecond)
				return 42, nil
			})
		}()
	}
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("concurrent first calls executed the compute %d times, want 1", n)
	}
}

func TestMemoDo_ErrorsNotCached(t *testing.T) {
	var cache memoCache
	var calls atomic.Int64

	_, err := cache.do("key", func() (any, error) {
		calls.Add(1)
		return nil, errors.New("transient")
	})
	if err == nil {
		t.Fatal("expected error from first call")
	}

	v, err := cache.do("key", func() (any, error) {
		calls.Add(1)
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if v != "recovered" {
		t.Errorf("do = %v, want recovered", v)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("compute ran %d times, want 2", n)
	}
}

func TestMemoDo_DistinctKeys(t *testing.T) {
	var cache memoCache
	var calls atomic.Int64

	for _, key := range []string{"a", "b", "a"} {
		_, _ = cache.do(key, func() (any, error) {
			calls.Add(1)
			return key, nil
		})
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("compute ran %d times, want 2", n)
	}
}

func TestMemoKey(t *testing.T) {
	if memoKey("search", "warp", 10, true) != memoKey("search", "warp", 10, true) {
		t.Error("equal tuples should produce equal keys")
	}
	if memoKey("search", "warp", 10, true) == memoKey("search", "warp", 10, false) {
		t.Error("distinct tuples should produce distinct keys")
	}
	// The separator keeps adjacent arguments from running together.
	if memoKey("ab", "c") == memoKey("a", "bc") {
		t.Error("argument boundaries should be preserved")
	}
}
