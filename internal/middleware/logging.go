package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/AnshRaj112/expense-tracker-backend/internal/logger"
	"github.com/AnshRaj112/expense-tracker-backend/internal/services"
	"github.com/AnshRaj112/expense-tracker-backend/pkg/clientip"
)

// RequestLogger logs one line per request and attaches the client metadata
// used by the audit log. It must run after chi's RequestID middleware.
func RequestLogger(log *zap.Logger, resolver clientip.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := chimw.GetReqID(r.Context())
			ip := resolver.IP(r)

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			ctx := services.WithRequestMeta(r.Context(), services.RequestMeta{
				IPAddress: ip,
				UserAgent: r.UserAgent(),
				RequestID: requestID,
			})

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("ip", ip),
			}

			reqLog := logger.WithRequestID(log, requestID)
			switch {
			case status >= 500:
				reqLog.Error("request completed", fields...)
			case status >= 400:
				reqLog.Warn("request completed", fields...)
			default:
				reqLog.Info("request completed", fields...)
			}
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}
