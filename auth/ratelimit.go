package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/transportuni/chatbot-api/apperror"
)

const rateLimitKeyPrefix = "ratelimit:auth:"

// RateLimiter is a fixed-window request counter kept in Redis, keyed by client IP.
// It is shared by every server instance pointing at the same Redis.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger *slog.Logger
}

// NewRateLimiter allows limit requests per window for each client.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{client: client, limit: limit, window: window, logger: logger}
}

// Allow counts one request for key. When the window's budget is spent it returns
// false and the time until the window resets.
// A counter found without an expiry gets one, so a key can never outlive its window.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := rateLimitKeyPrefix + key

	var incr *redis.IntCmd
	var pttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("rate limit incr: %w", err)
	}

	ttl := pttl.Val()
	if ttl < 0 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("rate limit expire: %w", err)
		}
		ttl = l.window
	}
	if incr.Val() <= int64(l.limit) {
		return true, 0, nil
	}
	return false, ttl, nil
}

// Middleware rejects over-limit clients with 429. If Redis is unavailable the
// request is let through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter, err := l.Allow(r.Context(), clientIP(r))
		if err != nil {
			l.logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			secs := int((retryAfter + time.Second - 1) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			WriteError(w, r, apperror.NewTooManyRequestsError("too many requests, try again later", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the host part of RemoteAddr, which chi's RealIP middleware
// has already replaced with the forwarded address when one is present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
