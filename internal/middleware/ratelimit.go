package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AnshRaj112/expense-tracker-backend/pkg/clientip"
)

const (
	// RateLimitWindow is the fixed counting window
	RateLimitWindow = 120 * time.Second
	// RateLimitMaxRequests is the maximum number of requests allowed in the window
	RateLimitMaxRequests = 25
	// RateLimitKeyPrefix is the Redis key prefix for rate limiting
	RateLimitKeyPrefix = "ratelimit:"
	// BlockedIPKeyPrefix is the Redis key prefix for blocked IPs
	BlockedIPKeyPrefix = "blocked_ip:"
	// BlockedIPDuration is how long an IP stays blocked
	BlockedIPDuration = time.Hour
)

// RedisRateLimiter is a fixed-window counter per IP shared by every instance.
// Exceeding the window blocks the IP for BlockedIPDuration.
type RedisRateLimiter struct {
	client   *redis.Client
	resolver clientip.Resolver
	log      *zap.Logger

	Window   time.Duration
	Max      int
	BlockFor time.Duration
}

func NewRedisRateLimiter(client *redis.Client, resolver clientip.Resolver, log *zap.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:   client,
		resolver: resolver,
		log:      log.Named("ratelimit"),
		Window:   RateLimitWindow,
		Max:      RateLimitMaxRequests,
		BlockFor: BlockedIPDuration,
	}
}

// Middleware limits the requests whose path is in paths; a nil set limits all.
// Redis failures let the request through.
func (l *RedisRateLimiter) Middleware(paths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if paths != nil && !paths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := l.resolver.IP(r)

			blocked, err := l.IsBlocked(ctx, ip)
			if err == nil && blocked {
				writeError(w, http.StatusTooManyRequests, "Your IP has been temporarily blocked due to excessive requests. Please try again later.")
				return
			}

			count, err := l.hit(ctx, ip)
			if err != nil {
				l.log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			if count > int64(l.Max) {
				if err := l.client.Set(ctx, BlockedIPKeyPrefix+ip, "1", l.BlockFor).Err(); err != nil {
					l.log.Warn("failed to block ip", zap.String("ip", ip), zap.Error(err))
				} else {
					l.log.Warn("ip blocked for exceeding rate limit", zap.String("ip", ip), zap.Int64("count", count))
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(l.BlockFor.Seconds())))
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Your IP has been temporarily blocked. Please try again later.")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(int64(l.Max)-count, 10))
			next.ServeHTTP(w, r)
		})
	}
}

// hit increments ip's counter, starting the window on the first hit.
func (l *RedisRateLimiter) hit(ctx context.Context, ip string) (int64, error) {
	key := RateLimitKeyPrefix + ip
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.Window).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// UnblockIP removes an IP from the blocked list and resets its counter.
func (l *RedisRateLimiter) UnblockIP(ctx context.Context, ip string) error {
	return l.client.Del(ctx, BlockedIPKeyPrefix+ip, RateLimitKeyPrefix+ip).Err()
}

// IsBlocked checks if an IP is currently blocked
func (l *RedisRateLimiter) IsBlocked(ctx context.Context, ip string) (bool, error) {
	count, err := l.client.Exists(ctx, BlockedIPKeyPrefix+ip).Result()
	return count > 0, err
}
