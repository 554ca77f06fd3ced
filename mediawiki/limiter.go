package mediawiki

import (
	"sync"
	"time"

	"github.com/Idran/MemoryTauAPI/metrics"
)

// rateLimiter enforces a minimum interval between outbound API calls. The
// last-completion timestamp is shared by every call path of a Client and is
// mutated under the mutex, so concurrent callers cannot race under the
// minimum-interval guarantee.
type rateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time

	// overridable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{
		interval: interval,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// wait blocks until at least the configured interval has elapsed since the
// previous call completed. A zero interval disables rate limiting.
func (r *rateLimiter) wait() {
	if r.interval <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.last.IsZero() {
		if d := r.interval - r.now().Sub(r.last); d > 0 {
			metrics.RateLimitWaits.Inc()
			r.sleep(d)
		}
	}
}

// done records the completion of the call that wait admitted. The interval
// is measured from completion, not from send, so a slow round trip still
// buys the server a full quiet period before the next request.
func (r *rateLimiter) done() {
	if r.interval <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = r.now()
}
