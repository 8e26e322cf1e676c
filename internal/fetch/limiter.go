package fetch

import (
	"context"
	"sync"
	"time"

	crerr "github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

// OriginLimiter spaces requests to the same origin at least interval apart.
// Different origins do not wait for each other.
type OriginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
}

func NewOriginLimiter(interval time.Duration) *OriginLimiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &OriginLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
	}
}

func (l *OriginLimiter) get(origin string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[origin]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(l.limit, 1)
	l.limiters[origin] = limiter
	return limiter
}

// Wait blocks until a request to rawURL's origin may proceed.
func (l *OriginLimiter) Wait(ctx context.Context, rawURL string) error {
	if l == nil {
		return nil
	}
	start := time.Now()
	if err := l.get(origin(rawURL)).Wait(ctx); err != nil {
		return crerr.Wrap(err, "rate limit wait")
	}
	limiterWait.WithLabelValues(host(rawURL)).Observe(time.Since(start).Seconds())
	return nil
}
