package server

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/raaihank/docmask/internal/config"
)

// idleBucketTTL is how long an unused client limiter is kept
const idleBucketTTL = time.Hour

// RateLimiter applies a token bucket per client IP to image uploads
type RateLimiter struct {
	config   config.RateLimitConfig
	limiters map[string]*clientLimiter
	mu       sync.Mutex
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:   cfg,
		limiters: make(map[string]*clientLimiter),
	}
}

// Allow reports whether a request from clientIP may proceed
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.Enabled {
		return true
	}
	return r.getLimiter(clientIP).Allow()
}

func (r *RateLimiter) getLimiter(clientIP string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.limiters[clientIP]; ok {
		c.lastSeen = time.Now()
		return c.limiter
	}

	perSecond := rate.Limit(float64(r.config.RequestsPerMin) / 60.0)
	burst := r.config.Burst
	if burst < 1 {
		burst = 1
	}

	c := &clientLimiter{
		limiter:  rate.NewLimiter(perSecond, burst),
		lastSeen: time.Now(),
	}
	r.limiters[clientIP] = c
	return c.limiter
}

// CleanupOldBuckets removes limiters not used within the idle TTL
func (r *RateLimiter) CleanupOldBuckets() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-idleBucketTTL)
	for ip, c := range r.limiters {
		if c.lastSeen.Before(cutoff) {
			delete(r.limiters, ip)
		}
	}
}

// StartCleanupRoutine periodically drops idle limiters until ctx is done
func (r *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.CleanupOldBuckets()
			case <-ctx.Done():
				return
			}
		}
	}()
}
