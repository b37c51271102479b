package mw

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/auth"
	"github.com/MrSnakeDoc/linkvault/internal/utils"
)

// RateLimitConfig tunes a token-bucket limiter. Each key gets Burst tokens
// and regains RefillPerMin of them per minute.
type RateLimitConfig struct {
	Burst         int
	RefillPerMin  int
	MaxEntries    int           // sweep idle buckets early once this many exist, 0 = no cap
	SweepInterval time.Duration // default 1m
	IdleTTL       time.Duration // buckets untouched this long are dropped, default 15m
	TrustProxy    bool          // resolve IP from proxy headers when true
	// KeyFunc picks the bucket for a request. Defaults to the client IP.
	KeyFunc func(r *http.Request) string
	// Now is the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

type bucket struct {
	tokens   float64
	refilled time.Time
}

type limiter struct {
	cfg       RateLimitConfig
	perSecond float64
	capacity  float64

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	cfg.Burst = max(cfg.Burst, 1)
	cfg.RefillPerMin = max(cfg.RefillPerMin, 1)
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.KeyFunc == nil {
		trust := cfg.TrustProxy
		cfg.KeyFunc = func(r *http.Request) string { return utils.ClientIP(r, trust) }
	}
	return &limiter{
		cfg:       cfg,
		perSecond: float64(cfg.RefillPerMin) / 60.0,
		capacity:  float64(cfg.Burst),
		buckets:   make(map[string]*bucket),
		lastSweep: cfg.Now(),
	}
}

// take spends one token for key. When none is left it reports how many
// whole seconds until one is.
func (l *limiter) take(key string, now time.Time) (ok bool, remaining, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.cfg.SweepInterval ||
		(l.cfg.MaxEntries > 0 && len(l.buckets) >= l.cfg.MaxEntries) {
		l.sweep(now)
	}

	b, found := l.buckets[key]
	if !found {
		b = &bucket{tokens: l.capacity, refilled: now}
		l.buckets[key] = b
	}
	if dt := now.Sub(b.refilled).Seconds(); dt > 0 {
		b.tokens = math.Min(l.capacity, b.tokens+dt*l.perSecond)
		b.refilled = now
	}

	if b.tokens < 1 {
		return false, 0, max(1, int(math.Ceil((1-b.tokens)/l.perSecond)))
	}
	b.tokens--
	return true, int(b.tokens), 0
}

// sweep drops buckets idle past IdleTTL. Callers hold l.mu.
func (l *limiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.refilled) > l.cfg.IdleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// RateLimit rejects requests past the bucket with 429 and a Retry-After
// header. Allowed responses carry X-RateLimit-Limit and -Remaining.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	l := newLimiter(cfg)
	limit := strconv.Itoa(l.cfg.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, remaining, retryAfter := l.take(l.cfg.KeyFunc(r), l.cfg.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				reject(w, http.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OwnerKey buckets by the session owner so one owner cannot exhaust the
// enrichment budget from many addresses. Requests without an owner fall back
// to the client IP.
func OwnerKey(trustProxy bool) func(r *http.Request) string {
	return func(r *http.Request) string {
		if owner, ok := auth.OwnerIDFromCtx(r.Context()); ok {
			return "owner:" + owner.String()
		}
		return "ip:" + utils.ClientIP(r, trustProxy)
	}
}
