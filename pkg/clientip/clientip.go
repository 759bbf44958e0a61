package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Resolver extracts the client IP from a request. With TrustProxy set the
// left-most X-Forwarded-For entry (or X-Real-IP) wins; otherwise only
// r.RemoteAddr is used, since the headers are client-controlled.
type Resolver struct {
	TrustProxy bool
}

func (res Resolver) IP(r *http.Request) string {
	if res.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
				return ip
			}
		}
		if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xr) != nil {
			return xr
		}
	}
	return RealClientIP(r)
}

// RealClientIP returns the client IP from r.RemoteAddr only (no proxy headers).
func RealClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return strings.TrimSpace(host)
}
