package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"otprelay/internal/config"
	apperrors "otprelay/pkg/errors"
	"otprelay/pkg/metrics"
)

var ErrRateLimited = apperrors.NewError("RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests)

type RateLimitConfig struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() RateLimitConfig {
	return RateLimitConfig{
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// FromConfig converts the server section; intervals there are in seconds.
func FromConfig(cfg config.RateLimitConfig) RateLimitConfig {
	out := DefaultConfig()
	if cfg.RPS > 0 {
		out.RPS = cfg.RPS
	}
	if cfg.Burst > 0 {
		out.Burst = cfg.Burst
	}
	if cfg.CleanupInterval > 0 {
		out.CleanupInterval = time.Duration(cfg.CleanupInterval) * time.Second
	}
	if cfg.MaxAge > 0 {
		out.MaxAge = time.Duration(cfg.MaxAge) * time.Second
	}
	return out
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clients holds one token bucket per client IP.
type clients struct {
	cfg RateLimitConfig

	mu   sync.Mutex
	byIP map[string]*client
}

func newClients(cfg RateLimitConfig) *clients {
	return &clients{cfg: cfg, byIP: make(map[string]*client)}
}

func (c *clients) get(ip string, now time.Time) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.byIP[ip]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(rate.Limit(c.cfg.RPS), c.cfg.Burst)}
		c.byIP[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// sweep forgets clients idle for longer than MaxAge and returns how many remain.
func (c *clients) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ip, cl := range c.byIP {
		if now.Sub(cl.lastSeen) > c.cfg.MaxAge {
			delete(c.byIP, ip)
		}
	}
	return len(c.byIP)
}

func (c *clients) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.sweep(now)
		}
	}
}

// RateLimitMiddleware limits each client IP. The sweeper stops with ctx.
func RateLimitMiddleware(ctx context.Context, cfg RateLimitConfig) gin.HandlerFunc {
	cs := newClients(cfg)
	go cs.runSweeper(ctx)

	limit := strconv.FormatFloat(cfg.RPS, 'f', -1, 64)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = c.RemoteIP()
		}
		limiter := cs.get(ip, time.Now())

		c.Header("X-RateLimit-Limit", limit)
		if !limiter.Allow() {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apperrors.ToErrorResponse(ErrRateLimited))
			return
		}
		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()

		remaining := int(limiter.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}
