package clientip

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolver(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", false, "198.51.100.4:5555", nil, "198.51.100.4"},
		{"remote addr without port", false, "198.51.100.4", nil, "198.51.100.4"},
		{"ignores forwarded header when untrusted", false, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.9"}, "10.0.0.1"},
		{"left-most forwarded entry", true, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.2"}, "203.0.113.9"},
		{"real ip header", true, "10.0.0.1:1", map[string]string{"X-Real-IP": "203.0.113.10"}, "203.0.113.10"},
		{"garbage header falls back", true, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "not-an-ip"}, "10.0.0.1"},
		{"ipv6 remote", false, "[2001:db8::1]:443", nil, "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, Resolver{TrustProxy: tt.trustProxy}.IP(r))
		})
	}
}
