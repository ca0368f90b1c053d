package progress

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle allows at most one event per interval for every key. Keys live
// for the process lifetime; the key space is bounded by active status messages.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
}

func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval, limiters: make(map[string]*rate.Limiter)}
}

func (t *Throttle) Allow(key string) bool {
	return t.AllowAt(key, time.Now())
}

func (t *Throttle) AllowAt(key string, now time.Time) bool {
	t.mu.Lock()
	l, ok := t.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.interval), 1)
		t.limiters[key] = l
	}
	t.mu.Unlock()
	return l.AllowN(now, 1)
}

// Forget drops the limiter for key.
func (t *Throttle) Forget(key string) {
	t.mu.Lock()
	delete(t.limiters, key)
	t.mu.Unlock()
}

// Throttled wraps a Sink so that it sees at most one report per interval for key.
func (t *Throttle) Throttled(key string, next Sink) Sink {
	next = OrDiscard(next)
	return SinkFunc(func(s State) {
		if t.Allow(key) {
			next.Report(s)
		}
	})
}
