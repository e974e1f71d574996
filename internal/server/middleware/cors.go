package middleware

import (
	"net/http"
	"strings"
)

const (
	corsMethods = "GET, OPTIONS"
	corsHeaders = "Authorization, X-API-Key, " + RequestIDHeader
	corsMaxAge  = "600"
)

// originPolicy matches Origin headers. Entries are exact origins, "*", or a
// subdomain pattern such as "https://*.example.com".
type originPolicy struct {
	any      bool
	exact    map[string]struct{}
	suffixes []string // "https://|.example.com"
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{any: len(origins) == 0, exact: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		switch {
		case o == "*":
			p.any = true
		case strings.Contains(o, "://*."):
			scheme, host, _ := strings.Cut(o, "://*")
			p.suffixes = append(p.suffixes, scheme+"://|"+host)
		case o != "":
			p.exact[o] = struct{}{}
		}
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	if p.any {
		return true
	}
	origin = strings.ToLower(origin)
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, s := range p.suffixes {
		scheme, host, _ := strings.Cut(s, "|")
		rest, ok := strings.CutPrefix(origin, scheme)
		if ok && len(rest) > len(host) && strings.HasSuffix(rest, host) {
			return true
		}
	}
	return false
}

// OriginMatcher reports whether an Origin header is allowed under the same
// rules CORS applies.
func OriginMatcher(allowedOrigins []string) func(origin string) bool {
	return newOriginPolicy(allowedOrigins).allows
}

// CORS sets cross-origin headers for allowed origins. An empty list allows
// every origin. OPTIONS requests are answered here and never reach next.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newOriginPolicy(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			if origin := r.Header.Get("Origin"); origin != "" && policy.allows(origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Expose-Headers", RequestIDHeader+", Retry-After")
				if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
					h.Set("Access-Control-Allow-Methods", corsMethods)
					h.Set("Access-Control-Allow-Headers", corsHeaders)
					h.Set("Access-Control-Max-Age", corsMaxAge)
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
