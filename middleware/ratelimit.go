package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/shopauth"
	"golang.org/x/time/rate"
)

// RateLimiter is a per-key token bucket held in process memory. It absorbs
// bursts before they reach the engine, whose Redis windows stay the
// authoritative limits.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
	created int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSecond requests per key with the given burst.
// Buckets unused for ten minutes are swept.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
	}
}

// Allow takes one token for key. When none is available it returns the
// delay until the next one.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b

		// sweep every 100 new keys to bound memory
		rl.created++
		if rl.created >= 100 {
			rl.sweep(now)
			rl.created = 0
		}
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	delay := res.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	res.CancelAt(now)
	return false, delay
}

// must hold rl.mu
func (rl *RateLimiter) sweep(now time.Time) {
	for k, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.idle {
			delete(rl.buckets, k)
		}
	}
}

// RateLimit rejects requests over the limiter's budget with 429 and a
// Retry-After header. A nil limiter disables it; an empty key passes.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || keyFunc == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, retryAfter := limiter.Allow(key)
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			retrySeconds := int(math.Ceil(retryAfter.Seconds()))
			if retrySeconds < 1 {
				retrySeconds = 1
			}
			slog.WarnContext(r.Context(), "shopauth: http rate limit exceeded", "key", key, "path", r.URL.Path, "retry_after", retrySeconds)

			w.Header().Set("Retry-After", strconv.Itoa(retrySeconds))
			writeJSONError(w, "rate limit exceeded", http.StatusTooManyRequests)
		})
	}
}

// IPKey keys rate limits by the client IP attached by [ClientIP].
func IPKey(r *http.Request) string {
	ip := shopauth.ClientIPFromContext(r.Context())
	if ip == "" {
		return ""
	}
	return "ip:" + ip
}

// ClientIP resolves the caller's address and attaches it with
// shopauth.WithClientIP, which keys the engine's per-IP limits.
// X-Forwarded-For is honoured only when trustForwarded is set, i.e. behind a
// proxy that overwrites the header.
func ClientIP(trustForwarded bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r, trustForwarded)
			if ip != "" {
				r = r.WithContext(shopauth.WithClientIP(r.Context(), ip))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.SplitN(xff, ",", 2)
			ip := strings.TrimSpace(parts[0])
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if net.ParseIP(host) == nil {
		return ""
	}
	return host
}
