package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultCleanupInterval = 5 * time.Minute

// RateLimitConfig configures the per-owner token bucket.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
	CleanupInterval   time.Duration
}

type ownerLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per owner.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	limiters map[string]*ownerLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter builds a limiter and starts its cleanup loop. A zero rate disables limiting.
func NewRateLimiter(cfg RateLimitConfig, logger *zap.Logger) *RateLimiter {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	rl := &RateLimiter{
		limit:    rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		burst:    burst,
		interval: interval,
		logger:   logger,
		limiters: make(map[string]*ownerLimiter),
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Middleware limits authenticated requests per owner. It must run after Auth.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl.limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID, ok := OwnerIDFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !rl.limiterFor(ownerID).Allow() {
				rl.logger.Warn("rate limit exceeded", zap.String("owner_id", ownerID))
				w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
				writeError(w, http.StatusTooManyRequests, "too many requests, please retry later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Len returns the number of tracked owners.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) limiterFor(ownerID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	if ol, ok := rl.limiters[ownerID]; ok {
		ol.lastAccess = now
		return ol.limiter
	}
	ol := &ownerLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst), lastAccess: now}
	rl.limiters[ownerID] = ol
	return ol.limiter
}

// retryAfterSeconds is the time to refill one token.
func (rl *RateLimiter) retryAfterSeconds() int {
	secs := int(math.Ceil(1.0 / float64(rl.limit)))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.evictIdle(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// evictIdle drops owners idle for more than two cleanup intervals.
func (rl *RateLimiter) evictIdle(now time.Time) {
	ttl := rl.interval * 2
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ownerID, ol := range rl.limiters {
		if now.Sub(ol.lastAccess) > ttl {
			delete(rl.limiters, ownerID)
		}
	}
}
