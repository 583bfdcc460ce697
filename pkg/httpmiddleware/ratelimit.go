package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyFunc names the bucket a request is charged to.
type KeyFunc func(*http.Request) string

// RateLimitConfig allows Max requests per Window for each key, refilled
// smoothly over the window.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// Key defaults to ClientIP.
	Key KeyFunc
}

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

type limiter struct {
	max    int
	window time.Duration
	every  rate.Limit
	key    KeyFunc

	mu       sync.Mutex
	visitors map[string]*visitor
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.Key == nil {
		cfg.Key = ClientIP
	}
	if cfg.Max <= 0 {
		cfg.Max = 1
	}
	return &limiter{
		max:      cfg.Max,
		window:   cfg.Window,
		every:    rate.Every(cfg.Window / time.Duration(cfg.Max)),
		key:      cfg.Key,
		visitors: make(map[string]*visitor),
	}
}

// take charges one request to key. It returns the whole tokens left and,
// when the request is refused, how long until the next token.
func (l *limiter) take(key string, now time.Time) (left int, wait time.Duration, ok bool) {
	l.mu.Lock()
	v, found := l.visitors[key]
	if !found {
		v = &visitor{lim: rate.NewLimiter(l.every, l.max)}
		l.visitors[key] = v
	}
	v.seen = now
	l.mu.Unlock()

	if v.lim.AllowN(now, 1) {
		return int(math.Max(0, v.lim.TokensAt(now))), 0, true
	}
	missing := 1 - v.lim.TokensAt(now)
	wait = time.Duration(missing / float64(l.every) * float64(time.Second))
	return 0, wait, false
}

// sweep forgets keys idle for a full window. Their buckets are full again
// by then, so a fresh bucket behaves the same.
func (l *limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, v := range l.visitors {
		if now.Sub(v.seen) >= l.window {
			delete(l.visitors, key)
		}
	}
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// RateLimit rejects requests over the limit with 429 and the JSON error
// body. Every response carries X-RateLimit-Limit and X-RateLimit-Remaining;
// refusals also carry Retry-After. Idle keys are never evicted, so use
// RateLimitWithCleanup for long-running servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit plus a sweeper that evicts idle keys
// once per window until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		t := time.NewTicker(l.window)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				l.sweep(now)
			}
		}
	}()
	return l.middleware()
}

func (l *limiter) middleware() Middleware {
	limit := strconv.Itoa(l.max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			left, wait, ok := l.take(l.key(r), time.Now())

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(left))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				WriteError(w, http.StatusTooManyRequests, "too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys by the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SessionOrIP keys by the visitor session cookie so shoppers behind one
// NAT do not share a bucket. Requests without the cookie fall back to
// ClientIP.
func SessionOrIP(cookie string) KeyFunc {
	return func(r *http.Request) string {
		if c, err := r.Cookie(cookie); err == nil && c.Value != "" {
			return "session:" + c.Value
		}
		return "ip:" + ClientIP(r)
	}
}
