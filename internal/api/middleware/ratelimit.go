package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the token buckets kept in memory. The least
// recently seen client is forgotten first and starts over with a full bucket.
const maxTrackedClients = 10000

// RateLimiter hands out one token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	rps      rate.Limit
	burst    int
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return newRateLimiter(rps, burst, maxTrackedClients)
}

func newRateLimiter(rps float64, burst, clients int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if clients < 1 {
		clients = maxTrackedClients
	}
	limiters, err := lru.New[string, *rate.Limiter](clients)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &RateLimiter{
		limiters: limiters,
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters.Add(key, lim)
	}
	return lim
}

// Middleware rejects requests over the limit with 429.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
