package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	corsMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsHeaders = "Content-Type, Authorization, api_key, " + RequestIDHeader
	corsExpose  = RequestIDHeader + ", X-RateLimit-Limit, X-RateLimit-Remaining, Retry-After"
)

// CORSConfig lists the storefront front-ends allowed to call the API.
type CORSConfig struct {
	// Origins are exact origins such as "https://shop.example.com" or
	// subdomain patterns such as "https://*.example.com". Empty or "*"
	// allows any origin.
	Origins []string
	// Credentials lets browsers send the session cookie cross-origin.
	// Origins are then always echoed back, never "*".
	Credentials bool
	// MaxAge caches preflight answers. Zero omits the header.
	MaxAge time.Duration
}

type originMatcher struct {
	any      bool
	exact    map[string]struct{}
	suffixes []struct{ scheme, suffix string }
}

func newOriginMatcher(origins []string) originMatcher {
	m := originMatcher{exact: make(map[string]struct{})}
	if len(origins) == 0 {
		m.any = true
	}
	for _, o := range origins {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		switch {
		case o == "*":
			m.any = true
		case strings.Contains(o, "://*."):
			scheme, host, _ := strings.Cut(o, "://*")
			m.suffixes = append(m.suffixes, struct{ scheme, suffix string }{scheme + "://", host})
		case o != "":
			m.exact[o] = struct{}{}
		}
	}
	return m
}

func (m originMatcher) allows(origin string) bool {
	if m.any {
		return true
	}
	origin = strings.ToLower(origin)
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, s := range m.suffixes {
		rest, ok := strings.CutPrefix(origin, s.scheme)
		if ok && len(rest) > len(s.suffix) && strings.HasSuffix(rest, s.suffix) {
			return true
		}
	}
	return false
}

// CORS answers preflight requests and decorates cross-origin responses.
// Disallowed origins get no CORS headers, so the browser blocks them.
func CORS(cfg CORSConfig) Middleware {
	match := newOriginMatcher(cfg.Origins)
	wildcard := match.any && !cfg.Credentials
	maxAge := ""
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(int(cfg.MaxAge.Seconds()))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if !wildcard {
				h.Add("Vary", "Origin")
			}

			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if origin == "" || !match.allows(origin) {
				if preflight {
					w.WriteHeader(http.StatusNoContent)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if wildcard {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			if cfg.Credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if !preflight {
				h.Set("Access-Control-Expose-Headers", corsExpose)
				next.ServeHTTP(w, r)
				return
			}

			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			if maxAge != "" {
				h.Set("Access-Control-Max-Age", maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
