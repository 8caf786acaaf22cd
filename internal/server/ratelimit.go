package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Entries idle longer than this are dropped by the sweeper.
const limiterIdleTTL = 10 * time.Minute

// clientLimiters tracks one token bucket per client IP.
type clientLimiters struct {
	mu    sync.Mutex
	perIP map[string]*clientBucket
	rps   rate.Limit
	burst int
}

type clientBucket struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(rps, burst int) *clientLimiters {
	return &clientLimiters{
		perIP: make(map[string]*clientBucket),
		rps:   rate.Limit(rps),
		burst: burst,
	}
}

// allow takes one token from the IP's bucket, creating it on first sight.
func (cl *clientLimiters) allow(ip string) bool {
	cl.mu.Lock()
	b, ok := cl.perIP[ip]
	if !ok {
		b = &clientBucket{bucket: rate.NewLimiter(cl.rps, cl.burst)}
		cl.perIP[ip] = b
	}
	b.lastSeen = time.Now()
	cl.mu.Unlock()

	return b.bucket.Allow()
}

// sweep drops buckets that have been idle past the TTL.
func (cl *clientLimiters) sweep() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for ip, b := range cl.perIP {
		if time.Since(b.lastSeen) > limiterIdleTTL {
			delete(cl.perIP, ip)
		}
	}
}

// RateLimiter returns a Gin middleware that enforces per-IP token-bucket
// rate limiting. rps is the steady-state requests per second; burst is the
// maximum burst size.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	cl := newClientLimiters(rps, burst)

	go func() {
		for {
			time.Sleep(5 * time.Minute)
			cl.sweep()
		}
	}()

	return func(c *gin.Context) {
		if !cl.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
