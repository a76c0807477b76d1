package httpx

import (
	"math"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/dealerdesk/pkg/slogx"
	"golang.org/x/time/rate"
)

// Limit is a token bucket profile: Requests per Window, with up to Burst
// available at once.
type Limit struct {
	Requests int
	Window   time.Duration
	Burst    int
}

func (l Limit) every() rate.Limit {
	return rate.Limit(float64(l.Requests) / l.Window.Seconds())
}

// Profiles used by the issuer routes. Each one can be overridden with
// RATELIMIT_<NAME>_REQUESTS, RATELIMIT_<NAME>_WINDOW_SEC and
// RATELIMIT_<NAME>_BURST, which the e2e suite uses to lift them.
var (
	// StrictLimit guards credential endpoints.
	StrictLimit = LimitFromEnv("STRICT", Limit{Requests: 5, Window: time.Minute, Burst: 5})

	// ModerateLimit guards refresh and logout.
	ModerateLimit = LimitFromEnv("MODERATE", Limit{Requests: 20, Window: time.Minute, Burst: 20})

	// LenientLimit guards reads.
	LenientLimit = LimitFromEnv("LENIENT", Limit{Requests: 100, Window: time.Minute, Burst: 100})
)

// LimitFromEnv overlays RATELIMIT_<name>_* variables on def. Missing,
// malformed and non-positive values keep the default.
func LimitFromEnv(name string, def Limit) Limit {
	l := def
	if n, ok := positiveEnv("RATELIMIT_" + name + "_REQUESTS"); ok {
		l.Requests = n
	}
	if n, ok := positiveEnv("RATELIMIT_" + name + "_WINDOW_SEC"); ok {
		l.Window = time.Duration(n) * time.Second
	}
	if n, ok := positiveEnv("RATELIMIT_" + name + "_BURST"); ok {
		l.Burst = n
	}
	return l
}

func positiveEnv(key string) (int, bool) {
	n, err := strconv.Atoi(os.Getenv(key))
	return n, err == nil && n > 0
}

// KeyFunc buckets requests. An empty key lets the request through.
type KeyFunc func(*http.Request) string

// ClientIP is the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// UserOrIP keys authenticated requests by subject and IP, anonymous ones
// by IP alone.
func UserOrIP(r *http.Request) string {
	ip := ClientIP(r)
	if sub, ok := r.Context().Value(CtxKeyUserID).(string); ok && sub != "" {
		return sub + ":" + ip
	}
	return ip
}

// idleAfter is how long a key may go unseen before its bucket is dropped.
const idleAfter = 10 * time.Minute

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiterSet holds one bucket per key and sweeps idle ones on access.
type limiterSet struct {
	limit Limit
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func newLimiterSet(l Limit) *limiterSet {
	return &limiterSet{limit: l, now: time.Now, buckets: make(map[string]*bucket)}
}

// allow takes a token for key. When none is left it reports how long until
// the next one.
func (s *limiterSet) allow(key string) (bool, time.Duration) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > idleAfter {
		for k, b := range s.buckets {
			if now.Sub(b.seen) > idleAfter {
				delete(s.buckets, k)
			}
		}
		s.lastSweep = now
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(s.limit.every(), s.limit.Burst)}
		s.buckets[key] = b
	}
	b.seen = now

	if b.lim.AllowN(now, 1) {
		return true, 0
	}
	r := b.lim.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, wait
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// RateLimit rejects requests over l with 429 and a Retry-After header.
// Every call creates its own set of buckets.
func RateLimit(l Limit, key KeyFunc) Middleware {
	set := newLimiterSet(l)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				slogx.FromContext(r.Context()).Warn("rate limit key missing, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			ok, wait := set.allow(k)
			if !ok {
				retry := max(int(math.Ceil(wait.Seconds())), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Requests))
				w.Header().Set("X-RateLimit-Window", l.Window.String())

				slogx.FromContext(r.Context()).Warn("rate limit exceeded",
					"key", k,
					"path", r.URL.Path,
					"retry_after", retry,
				)
				WriteError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP limits per client IP.
func RateLimitByIP(l Limit) Middleware { return RateLimit(l, ClientIP) }

// RateLimitByUser limits per authenticated user, falling back to IP.
func RateLimitByUser(l Limit) Middleware { return RateLimit(l, UserOrIP) }
