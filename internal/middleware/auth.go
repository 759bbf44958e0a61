package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/AnshRaj112/expense-tracker-backend/internal/services"
)

// TokenParser returns the subject of a valid token.
type TokenParser interface {
	ExtractUsername(token string) (string, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// token subject on the request context. WebSocket upgrades may pass the
// token in the "token" query parameter instead, since browsers cannot set
// headers on them.
func RequireAuth(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" && isWebSocketUpgrade(r) {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			subject, err := tokens.ExtractUsername(token)
			if err != nil {
				if errors.Is(err, services.ErrExpiredToken) {
					writeError(w, http.StatusUnauthorized, "Token expired")
					return
				}
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(services.WithSubject(r.Context(), subject)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
