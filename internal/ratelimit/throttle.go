package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/redmonkez12/blog-api/internal/httputil"
	"github.com/redmonkez12/blog-api/internal/logging"
)

// ThrottleConfig sets the in-process token bucket applied to every API request
type ThrottleConfig struct {
	Rate            rate.Limit
	Burst           int
	CleanupInterval time.Duration
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Throttle keeps one token bucket per client IP. It smooths bursts on a
// single instance; the Redis Limiter enforces the cross-instance budgets.
type Throttle struct {
	cfg ThrottleConfig

	mu      sync.Mutex
	clients map[string]*clientLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewThrottle starts the background eviction of idle clients
func NewThrottle(cfg ThrottleConfig) *Throttle {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	t := &Throttle{
		cfg:     cfg,
		clients: make(map[string]*clientLimiter),
		stopCh:  make(chan struct{}),
	}

	go t.cleanupLoop()

	return t
}

// Stop ends the eviction goroutine
func (t *Throttle) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Allow reports whether ip may make a request now
func (t *Throttle) Allow(ip string) bool {
	return t.limiterFor(ip).Allow()
}

// Middleware rejects requests over the per-IP rate with 429 and a Retry-After header
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !t.Allow(ip) {
			logging.GetLoggerFromContext(r.Context()).Warn("request throttled", "ip", ip)
			w.Header().Set("Retry-After", strconv.Itoa(t.retryAfterSeconds()))
			httputil.RespondErrorWithCode(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Len returns the number of tracked clients
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

func (t *Throttle) limiterFor(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if c, ok := t.clients[ip]; ok {
		c.lastAccess = now
		return c.limiter
	}

	c := &clientLimiter{
		limiter:    rate.NewLimiter(t.cfg.Rate, t.cfg.Burst),
		lastAccess: now,
	}
	t.clients[ip] = c
	return c.limiter
}

func (t *Throttle) retryAfterSeconds() int {
	if t.cfg.Rate <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(1/float64(t.cfg.Rate))))
}

func (t *Throttle) cleanupLoop() {
	ticker := time.NewTicker(t.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.evictIdle(time.Now())
		case <-t.stopCh:
			return
		}
	}
}

// evictIdle drops clients idle for more than two cleanup intervals
func (t *Throttle) evictIdle(now time.Time) {
	ttl := 2 * t.cfg.CleanupInterval

	t.mu.Lock()
	defer t.mu.Unlock()

	for ip, c := range t.clients {
		if now.Sub(c.lastAccess) > ttl {
			delete(t.clients, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
