package middlewares

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// LimitStore counts hits per key in fixed windows.
type LimitStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

type RateLimiter struct {
	store  LimitStore
	prefix string
	limit  int
	window time.Duration
}

func NewRateLimiter(store LimitStore, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		store:  store,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// RateLimiterMiddleware enforces the limit for a derived key. A failing store
// lets the request through.
func (rl *RateLimiter) RateLimiterMiddleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" {
			// fallback to IP if key cannot be derived
			key = clientIP(c)
		}

		ok, retryAfter, err := rl.store.Allow(c.Request.Context(), rl.prefix+":"+key, rl.limit, rl.window)
		if err != nil {
			slog.Default().WarnContext(c.Request.Context(), "rate limit store unavailable", "err", err)
			c.Next()
			return
		}

		if !ok {
			secs := int(retryAfter.Round(time.Second).Seconds())
			if secs < 0 {
				secs = 0
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			abortJSON(c, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again shortly.")
			return
		}

		c.Next()
	}
}

// MemoryStore keeps fixed windows per key in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	now     func() time.Time
}

type clientBucket struct {
	count     int
	windowEnd time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

func (s *MemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.clients[key]
	if !ok || now.After(b.windowEnd) {
		s.clients[key] = &clientBucket{count: 1, windowEnd: now.Add(window)}
		s.evict(now)
		return true, 0, nil
	}

	if b.count >= limit {
		return false, b.windowEnd.Sub(now), nil
	}

	b.count++
	return true, 0, nil
}

// evict drops expired buckets once the map grows. Must hold s.mu.
func (s *MemoryStore) evict(now time.Time) {
	if len(s.clients) < 10_000 {
		return
	}
	for k, b := range s.clients {
		if now.After(b.windowEnd) {
			delete(s.clients, k)
		}
	}
}

// for unauthenticated endpoints: rate limit by IP
func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

// For authenticated endpoints: rate limit by userID if available
func KeyByUserOrIP(c *gin.Context) string {
	id, ok := UserIDFromContext(c)
	if ok {
		return "user:" + id
	}
	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	// Gin's ClientIP respects X-Forwarded-For / X-Real-IP if configured.
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)
	if err == nil && host != "" {
		return host
	}

	return ip
}
