package middleware

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"
)

// TokenHeader carries the control token on API requests.
const TokenHeader = "X-Control-Token"

// protectedPrefixes are the paths that move hardware or expose server internals.
var protectedPrefixes = []string{
	"/api/control",
	"/ws/control",
	"/logs/",
}

// AuthMiddleware guards protected paths. A request whose Origin names another
// host is refused with or without a token. When token is set it is also
// required; with an empty token same-origin requests are open, as the viewer
// page and the stream always are.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isProtected(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if !sameOrigin(r) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Browsers cannot set headers on websocket upgrades, so the query works too
		supplied := r.Header.Get(TokenHeader)
		if supplied == "" {
			supplied = r.URL.Query().Get("token")
		}

		if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sameOrigin accepts requests without an Origin header (curl, scripts) and
// those whose Origin host matches the Host header.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func isProtected(path string) bool {
	for _, prefix := range protectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
