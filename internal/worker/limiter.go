package worker

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

const defaultBurst = 5

// Limiter throttles calls per downstream. Each key (a scorer or LLM
// provider name) gets its own token bucket.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// NewLimiter creates a limiter allowing requestsPerSecond per key. A
// non-positive rate disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = defaultBurst
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Limiter{buckets: make(map[string]*rate.Limiter), limit: limit, burst: burst}
}

// Wait blocks until key has a token. It fails without waiting when ctx
// would expire before the token is available.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.bucket(key).Wait(ctx)
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	return b
}
