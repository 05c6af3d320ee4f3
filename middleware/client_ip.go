package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/shelfauth"
)

// ClientIP stores the caller address in the request context for the engine's
// rate limiter. With trustProxy the first X-Forwarded-For entry wins.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := RequestIP(r, trustProxy)
			next.ServeHTTP(w, r.WithContext(shelfauth.WithClientIP(r.Context(), ip)))
		})
	}
}

// RequestIP extracts the caller address, falling back to shelfauth.DefaultClientIP.
func RequestIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if net.ParseIP(host) != nil {
		return host
	}
	return shelfauth.DefaultClientIP
}
