// Package middleware holds the HTTP wrappers of the status API.
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Auth requires one of the comma-separated keys in apiKeys on every request
// except OPTIONS and the listed public paths. Listing several keys lets an
// operator rotate without downtime. An empty apiKeys disables the check.
func Auth(apiKeys string, public ...string) func(http.Handler) http.Handler {
	var digests [][sha256.Size]byte
	for _, k := range strings.Split(apiKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	open := make(map[string]struct{}, len(public))
	for _, p := range public {
		open[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		if len(digests) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := open[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			token := presentedKey(r)
			if token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="sniperbot"`)
				writeJSONError(w, http.StatusUnauthorized, "missing api key")
				return
			}
			if !matchesAny(digests, token) {
				writeJSONError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// matchesAny compares digests so every comparison runs over equal-length
// input regardless of the presented key.
func matchesAny(digests [][sha256.Size]byte, token string) bool {
	got := sha256.Sum256([]byte(token))
	match := 0
	for _, d := range digests {
		match |= subtle.ConstantTimeCompare(got[:], d[:])
	}
	return match == 1
}

// presentedKey reads, in order, an Authorization Bearer token, X-API-Key and
// ?api_key=. The query form exists for browser websocket handshakes, which
// cannot set headers.
func presentedKey(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	return strings.TrimSpace(r.URL.Query().Get("api_key"))
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
