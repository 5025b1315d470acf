package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ByHeader extracts the rate limit key from a request header. Returns an
// empty key (skipping the limiter) when the header is absent.
func ByHeader(name string) KeyFunc {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(name))
	}
}

// ByAPIKey keys limits on the X-API-Key header, so every application gets
// its own budget regardless of how many hosts its SDKs run on.
func ByAPIKey() KeyFunc {
	return ByHeader("X-API-Key")
}

// ByClientIP keys limits on the client address, preferring the first
// X-Forwarded-For hop when a proxy is in front.
func ByClientIP() KeyFunc {
	return func(r *http.Request) string {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
}
