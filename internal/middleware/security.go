package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/AnshRaj112/expense-tracker-backend/pkg/clientip"
)

const (
	headerXContentTypeOptions     = "X-Content-Type-Options"
	headerXFrameOptions           = "X-Frame-Options"
	headerReferrerPolicy          = "Referrer-Policy"
	headerContentSecurityPolicy   = "Content-Security-Policy"
	headerStrictTransportSecurity = "Strict-Transport-Security"
)

// SecurityHeaders sets security-related response headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerXContentTypeOptions, "nosniff")
		w.Header().Set(headerXFrameOptions, "DENY")
		w.Header().Set(headerReferrerPolicy, "no-referrer")
		w.Header().Set(headerContentSecurityPolicy, "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set(headerStrictTransportSecurity, "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// HostCheck returns 403 when r.Host does not match allowedHost.
// allowedHost should be the bare hostname without scheme or port.
func HostCheck(allowedHost string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowedHost == "" {
				next.ServeHTTP(w, r)
				return
			}
			reqHost := r.Host
			if host, _, err := net.SplitHostPort(reqHost); err == nil {
				reqHost = host
			}
			if !strings.EqualFold(strings.TrimSpace(reqHost), strings.TrimSpace(allowedHost)) {
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthPaths are the unauthenticated credential endpoints that get the
// stricter limits.
var AuthPaths = map[string]bool{
	"/api/users/login":    true,
	"/api/users/register": true,
}

type limiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	ttl     time.Duration
}

func NewIPRateLimiter(limit rate.Limit, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   limit,
		burst:   burst,
		ttl:     30 * time.Minute,
	}
}

// Allow takes one token from ip's bucket.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastUse = time.Now()
	l.mu.Unlock()
	return e.limiter.Allow()
}

// Sweep drops buckets idle since before now minus the TTL and returns how
// many were removed.
func (l *IPRateLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for ip, e := range l.entries {
		if now.Sub(e.lastUse) > l.ttl {
			delete(l.entries, ip)
			removed++
		}
	}
	return removed
}

// RunCleanup sweeps every interval until ctx is done.
func (l *IPRateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Sweep(now)
		}
	}
}

// RateLimit rejects requests with 429 once the client's bucket is empty.
// With a non-nil paths set only those paths are limited.
func RateLimit(l *IPRateLimiter, resolver clientip.Resolver, paths map[string]bool, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if paths != nil && !paths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			if !l.Allow(resolver.IP(r)) {
				writeError(w, http.StatusTooManyRequests, message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const (
	globalRateLimitRPS   = 10
	globalRateLimitBurst = 40
	authRateLimitEvery   = 5 * time.Second
	authRateLimitBurst   = 10
	limiterSweepInterval = 5 * time.Minute
)

// ProductionSecurity returns middlewares for production: SecurityHeaders,
// HostCheck and a per-IP global limit. The limiter's cleanup loop runs until
// ctx is done.
func ProductionSecurity(ctx context.Context, allowedHost string, resolver clientip.Resolver) []func(http.Handler) http.Handler {
	global := NewIPRateLimiter(rate.Limit(globalRateLimitRPS), globalRateLimitBurst)
	go global.RunCleanup(ctx, limiterSweepInterval)

	return []func(http.Handler) http.Handler{
		SecurityHeaders,
		HostCheck(allowedHost),
		RateLimit(global, resolver, nil, "Too many requests. Please slow down."),
	}
}

// MemoryAuthRateLimit limits AuthPaths per IP in process; used when Redis is
// not configured.
func MemoryAuthRateLimit(ctx context.Context, resolver clientip.Resolver) func(http.Handler) http.Handler {
	l := NewIPRateLimiter(rate.Every(authRateLimitEvery), authRateLimitBurst)
	go l.RunCleanup(ctx, limiterSweepInterval)
	return RateLimit(l, resolver, AuthPaths, "Too many login attempts. Please try again later.")
}
