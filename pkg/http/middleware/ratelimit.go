package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	RPS   float64
	Burst int
	// Idle visitors are forgotten after TTL.
	TTL time.Duration
	// KeyFunc identifies a client; defaults to the real client IP.
	KeyFunc func(c echo.Context) string
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	cfg       RateLimitConfig
	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a limiter, filling unset fields with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c echo.Context) string { return c.RealIP() }
	}
	return &RateLimiter{
		cfg:       cfg,
		visitors:  make(map[string]*visitor),
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Allow reports whether the client identified by key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > rl.cfg.TTL {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > rl.cfg.TTL {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RPS), rl.cfg.Burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rl.Allow(rl.cfg.KeyFunc(c)) {
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}

// RateLimit is a shorthand for NewRateLimiter(cfg).Middleware().
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return NewRateLimiter(cfg).Middleware()
}
