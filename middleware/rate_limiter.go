package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter implements per-key rate limiting using token bucket algorithm.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	rate      int
	window    time.Duration
	lastPrune time.Time
	now       func() time.Time
}

type tokenBucket struct {
	tokens   int
	lastFill time.Time
}

// NewRateLimiter allows ratePerWindow requests per key in every window.
func NewRateLimiter(ratePerWindow int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		rate:    ratePerWindow,
		window:  window,
		now:     time.Now,
	}
}

// Allow checks if a request should be allowed for the given key.
// Returns (allowed, retryAfter) where retryAfter is the duration to wait if denied.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	perToken := rl.perToken()
	if now.Sub(rl.lastPrune) >= rl.window {
		rl.prune(now, perToken)
	}

	bucket, exists := rl.buckets[key]
	if !exists {
		rl.buckets[key] = &tokenBucket{tokens: rl.rate - 1, lastFill: now}
		return true, 0
	}

	// Refill whole tokens only, keeping the remainder for the next call
	if refill := int(now.Sub(bucket.lastFill) / perToken); refill > 0 {
		bucket.tokens = min(rl.rate, bucket.tokens+refill)
		bucket.lastFill = bucket.lastFill.Add(time.Duration(refill) * perToken)
		if bucket.tokens == rl.rate {
			bucket.lastFill = now
		}
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true, 0
	}
	return false, perToken - now.Sub(bucket.lastFill)
}

func (rl *RateLimiter) perToken() time.Duration {
	perToken := rl.window / time.Duration(rl.rate)
	if perToken <= 0 {
		perToken = time.Nanosecond
	}
	return perToken
}

// prune drops buckets that would be full again by now. A returning client
// simply starts a fresh bucket.
func (rl *RateLimiter) prune(now time.Time, perToken time.Duration) {
	for key, b := range rl.buckets {
		if now.Sub(b.lastFill) >= time.Duration(rl.rate-b.tokens)*perToken {
			delete(rl.buckets, key)
		}
	}
	rl.lastPrune = now
}

// Len returns the number of clients currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Reset resets the rate limiter for a key.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// RateLimitMiddleware rejects clients that exceed the limiter with 429.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := rl.Allow(c.ClientIP())
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Demasiadas solicitudes, intente más tarde"})
			return
		}
		c.Next()
	}
}
