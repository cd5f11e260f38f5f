package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"lex_dossier_app_go/logger"
)

// RateLimitStore counts hits per key over a fixed window.
type RateLimitStore interface {
	// Hit records one request for key and returns the count in the
	// current window.
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// rateLimitEntry tracks request count and window expiration
type rateLimitEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryRateLimitStore keeps counters in process memory.
type MemoryRateLimitStore struct {
	mu    sync.Mutex
	store map[string]*rateLimitEntry
	now   func() time.Time
}

// NewMemoryRateLimitStore creates a store and starts its cleanup goroutine.
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	s := &MemoryRateLimitStore{
		store: make(map[string]*rateLimitEntry),
		now:   time.Now,
	}
	go s.cleanup()
	return s
}

func (s *MemoryRateLimitStore) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, exists := s.store[key]
	if !exists || now.After(entry.expiresAt) {
		s.store[key] = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
		return 1, nil
	}
	entry.count++
	return entry.count, nil
}

// cleanup removes expired entries every minute
func (s *MemoryRateLimitStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	for range ticker.C {
		s.mu.Lock()
		now := s.now()
		for key, entry := range s.store {
			if now.After(entry.expiresAt) {
				delete(s.store, key)
			}
		}
		s.mu.Unlock()
	}
}

// RedisRateLimitStore shares counters between instances through Redis.
type RedisRateLimitStore struct {
	client *redis.Client
}

func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// NewRedisRateLimitStoreFromURL parses url (redis://…) and pings the server.
func NewRedisRateLimitStoreFromURL(ctx context.Context, url string) (*RedisRateLimitStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return NewRedisRateLimitStore(client), nil
}

func (s *RedisRateLimitStore) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// RateLimitConfig defines the configuration for rate limiting
type RateLimitConfig struct {
	// Name separates the counters of different limiters sharing a store
	Name string
	// Requests is the maximum number of requests allowed within the window
	Requests int
	// Window is the time window for rate limiting
	Window time.Duration
	// KeyFunc is a function that returns a unique key for rate limiting (defaults to IP)
	KeyFunc func(c echo.Context) string
	// Message is the error message returned when rate limit is exceeded
	Message string
}

// RateLimiter is a per-endpoint rate limiter
type RateLimiter struct {
	config RateLimitConfig
	mu     sync.RWMutex
	store  RateLimitStore
}

// NewRateLimiter creates a limiter backed by store, or by process memory when store is nil.
func NewRateLimiter(config RateLimitConfig, store RateLimitStore) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = func(c echo.Context) string {
			return c.RealIP()
		}
	}
	if config.Message == "" {
		config.Message = "Too many requests. Please try again later."
	}
	if config.Name == "" {
		config.Name = "default"
	}
	if store == nil {
		store = NewMemoryRateLimitStore()
	}
	return &RateLimiter{config: config, store: store}
}

// SetStore swaps the backing store, e.g. for Redis once it is reachable.
func (rl *RateLimiter) SetStore(store RateLimitStore) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.store = store
}

func (rl *RateLimiter) currentStore() RateLimitStore {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.store
}

// Middleware returns the rate limiting middleware. Store failures let the
// request through.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ratelimit:" + rl.config.Name + ":" + rl.config.KeyFunc(c)

			count, err := rl.currentStore().Hit(c.Request().Context(), key, rl.config.Window)
			if err != nil {
				logger.WithFields(logrus.Fields{"limiter": rl.config.Name, "error": err.Error()}).
					Warn("[SECURITY] rate limit store unavailable, allowing request")
				return next(c)
			}
			if count > int64(rl.config.Requests) {
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(rl.config.Window.Seconds())))
				return echo.NewHTTPError(http.StatusTooManyRequests, rl.config.Message)
			}
			return next(c)
		}
	}
}

// Pre-configured rate limiters for common use cases

// LoginRateLimiter limits login attempts to 5 per minute per IP
var LoginRateLimiter = NewRateLimiter(RateLimitConfig{
	Name:     "login",
	Requests: 5,
	Window:   time.Minute,
	Message:  "Too many login attempts. Please wait a minute before trying again.",
}, nil)

// PasswordResetRateLimiter limits password reset requests to 3 per hour per IP
var PasswordResetRateLimiter = NewRateLimiter(RateLimitConfig{
	Name:     "password_reset",
	Requests: 3,
	Window:   time.Hour,
	Message:  "Too many password reset requests. Please try again later.",
}, nil)

// PublicFormRateLimiter limits anonymous dossier and appointment submissions
var PublicFormRateLimiter = NewRateLimiter(RateLimitConfig{
	Name:     "public_form",
	Requests: 10,
	Window:   time.Minute,
	Message:  "Too many form submissions. Please wait before trying again.",
}, nil)

// UploadRateLimiter limits document uploads to 30 per minute per IP
var UploadRateLimiter = NewRateLimiter(RateLimitConfig{
	Name:     "upload",
	Requests: 30,
	Window:   time.Minute,
	Message:  "Too many uploads. Please slow down.",
}, nil)

// UseRateLimitStore points every pre-configured limiter at store.
func UseRateLimitStore(store RateLimitStore) {
	for _, rl := range []*RateLimiter{LoginRateLimiter, PasswordResetRateLimiter, PublicFormRateLimiter, UploadRateLimiter} {
		rl.SetStore(store)
	}
}
