package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/webrana-confchat/internal/api/response"
	"github.com/welldanyogia/webrana-confchat/internal/logger"
	"golang.org/x/time/rate"
)

// Rate limiter housekeeping
const (
	limiterCleanupInterval = 10 * time.Minute
	limiterIdleTimeout     = 30 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter manages rate limiters per IP address
type IPRateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewIPRateLimiter creates a new IP-based rate limiter
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    b,
	}
}

// GetLimiter returns the rate limiter for the given IP
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	v, exists := i.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(i.rate, i.burst)}
		i.visitors[ip] = v
	}
	v.lastSeen = time.Now()

	return v.limiter
}

// CleanupOlderThan forgets IPs not seen within idle
func (i *IPRateLimiter) CleanupOlderThan(idle time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	for ip, v := range i.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(i.visitors, ip)
		}
	}
}

// Len returns the number of tracked IPs
func (i *IPRateLimiter) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.visitors)
}

// RunCleanup periodically drops idle IPs until ctx is cancelled
func (i *IPRateLimiter) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.CleanupOlderThan(limiterIdleTimeout)
		}
	}
}

// RateLimiter returns per-IP rate limiting middleware backed by limiter
func RateLimiter(limiter *IPRateLimiter, secLogger *logger.SecurityLogger) echo.MiddlewareFunc {
	retryAfter := strconv.Itoa(retryAfterSeconds(limiter.rate))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()

			if !limiter.GetLimiter(ip).Allow() {
				secLogger.RateLimitExceeded(ip, c.Path())
				c.Response().Header().Set("Retry-After", retryAfter)
				return response.TooManyRequests(c, "rate limit exceeded")
			}

			return next(c)
		}
	}
}

// retryAfterSeconds is the time until one more token is available
func retryAfterSeconds(r rate.Limit) int {
	if r <= 0 {
		return 60
	}
	secs := int(1 / float64(r))
	if secs < 1 {
		secs = 1
	}
	return secs
}
