package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/smallbiznis/ifs-auth/internal/telemetry"
)

// Throttle is a process-local token bucket per client IP in front of every
// route. Login and refresh attempts are limited separately in the shared
// store; this only sheds request floods.
type Throttle struct {
	rpm     int
	limit   rate.Limit
	burst   int
	idle    time.Duration
	metrics *telemetry.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewThrottle creates a throttle for the requests-per-minute budget. A
// non-positive budget disables throttling and returns nil.
func NewThrottle(requestsPerMinute int, metrics *telemetry.Metrics, logger *zap.Logger) *Throttle {
	if requestsPerMinute <= 0 {
		return nil
	}
	if logger == nil {
		logger = zap.L()
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		rpm:     requestsPerMinute,
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		idle:    5 * time.Minute,
		metrics: metrics,
		logger:  logger,
		clients: make(map[string]*clientLimiter),
	}
}

// Handler returns the gin middleware. A nil Throttle passes everything.
func (t *Throttle) Handler() gin.HandlerFunc {
	if t == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := t.limiterFor(ip)
		if !limiter.Allow() {
			t.metrics.RateLimited("http")
			t.logger.Warn("request throttled", zap.String("client_ip", ip), zap.String("path", c.Request.URL.Path))
			c.Header("Retry-After", strconv.Itoa(t.retryAfterSeconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

// retryAfterSeconds is the time to refill one token, rounded up.
func (t *Throttle) retryAfterSeconds() int {
	return (60 + t.rpm - 1) / t.rpm
}

func (t *Throttle) limiterFor(key string) *rate.Limiter {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.clients[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	limiter := rate.NewLimiter(t.limit, t.burst)
	t.clients[key] = &clientLimiter{limiter: limiter, lastSeen: now}
	t.evictIdleLocked(now)
	return limiter
}

func (t *Throttle) evictIdleLocked(now time.Time) {
	for key, entry := range t.clients {
		if now.Sub(entry.lastSeen) > t.idle {
			delete(t.clients, key)
		}
	}
}
