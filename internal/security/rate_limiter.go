package security

import (
	"context"
	"sync"
	"time"

	"github.com/raaihank/redaction-review/internal/config"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client
type RateLimiter struct {
	config  *config.RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:  cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow reports whether a request from the given client is allowed
func (r *RateLimiter) Allow(clientID string) bool {
	if !r.config.Enabled {
		return true
	}
	now := r.now()
	return r.getBucket(clientID, now).limiter.AllowN(now, 1)
}

// Tokens returns the tokens currently available to a client
func (r *RateLimiter) Tokens(clientID string) float64 {
	r.mu.Lock()
	b, exists := r.buckets[clientID]
	r.mu.Unlock()

	if !exists {
		return float64(r.config.Burst)
	}
	return b.limiter.TokensAt(r.now())
}

// Clients returns the number of tracked clients
func (r *RateLimiter) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

func (r *RateLimiter) getBucket(clientID string, now time.Time) *bucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, exists := r.buckets[clientID]
	if !exists {
		b = &bucket{
			limiter: rate.NewLimiter(rate.Limit(r.config.RequestsPerSecond), r.config.Burst),
		}
		r.buckets[clientID] = b
	}
	b.lastSeen = now
	return b
}

// CleanupOldBuckets removes buckets that have not been used since maxIdle ago
func (r *RateLimiter) CleanupOldBuckets(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	removed := 0
	for id, b := range r.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(r.buckets, id)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine periodically drops idle buckets until ctx is cancelled
func (r *RateLimiter) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupOldBuckets(time.Hour)
			}
		}
	}()
}
