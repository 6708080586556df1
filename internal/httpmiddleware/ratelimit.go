package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"guardattend/internal/metrics"
)

// TokenBucket is an in-memory per-client rate limiter. Each client IP gets
// capacity tokens refilled at perMinute.
type TokenBucket struct {
	capacity int
	rate     int
	metrics  *metrics.Collectors
	now      func() time.Time

	mu    sync.Mutex
	state map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewTokenBucket creates a limiter. A capacity of zero means perMinute.
func NewTokenBucket(capacity, perMinute int, m *metrics.Collectors) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &TokenBucket{
		capacity: capacity,
		rate:     perMinute,
		metrics:  m,
		now:      time.Now,
		state:    make(map[string]*bucket),
	}
}

// Middleware rejects requests over the limit with 429.
func (l *TokenBucket) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip) {
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			l.metrics.RateLimited.WithLabelValues(route).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *TokenBucket) allow(key string) bool {
	if l.rate <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true
	}
	refill := int(now.Sub(b.last).Minutes() * float64(l.rate))
	if refill > 0 {
		b.tokens = min(b.tokens+refill, l.capacity)
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
