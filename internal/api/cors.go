package api

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// CORS returns middleware that handles CORS headers. Patterns match the
// request Origin's host the same way websocket origin patterns do, so
// "*.example.com" admits every subdomain and "*" admits everything.
func CORS(originPatterns []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				w.Header().Add("Vary", "Origin")
				if wildcard, ok := matchOrigin(originPatterns, origin); ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
					// Credentials only for explicit patterns; echoing any origin with
					// credentials would enable CSRF.
					if !wildcard {
						w.Header().Set("Access-Control-Allow-Credentials", "true")
					}
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

// matchOrigin reports whether origin is allowed and whether the match came
// from the catch-all pattern.
func matchOrigin(patterns []string, origin string) (wildcard, ok bool) {
	host := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		host = u.Host
	}
	for _, p := range patterns {
		if p == "*" {
			ok, wildcard = true, true
			continue
		}
		if strings.EqualFold(p, origin) || strings.EqualFold(p, host) {
			return false, true
		}
		if matched, err := path.Match(strings.ToLower(p), strings.ToLower(host)); err == nil && matched {
			return false, true
		}
	}
	return wildcard, ok
}
