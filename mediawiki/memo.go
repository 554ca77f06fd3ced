package mediawiki

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Idran/MemoryTauAPI/metrics"
)

// memoCache memoizes idempotent query results for the lifetime of the
// process. Each key is computed at most once: concurrent first callers for
// the same key share a single in-flight execution instead of racing to
// issue duplicate network calls. There is no eviction and no TTL; only
// calls declared idempotent within a process run (search, suggest) are
// wrapped in it.
type memoCache struct {
	entries sync.Map // key (string) -> *memoEntry
}

type memoEntry struct {
	mu   sync.Mutex
	done bool
	val  any
}

// do returns the cached result for key, computing it with fn on first use.
// Failed computations are not cached; the next caller retries.
func (m *memoCache) do(key string, fn func() (any, error)) (any, error) {
	e, _ := m.entries.LoadOrStore(key, &memoEntry{})
	entry := e.(*memoEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.done {
		metrics.RecordCacheAccess(true)
		return entry.val, nil
	}
	metrics.RecordCacheAccess(false)

	val, err := fn()
	if err != nil {
		m.entries.Delete(key)
		return nil, err
	}
	entry.val = val
	entry.done = true
	return val, nil
}

// memoKey renders an ordered argument tuple into a cache key. Equal
// argument tuples always render to equal keys.
func memoKey(parts ...any) string {
	elems := make([]string, len(parts))
	for i, p := range parts {
		elems[i] = fmt.Sprint(p)
	}
	return strings.Join(elems, "\x1f")
}
