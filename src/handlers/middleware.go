package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/username/portfoliopulse/backend/src/logger"
)

// ContextualLoggerMiddleware attaches a request-scoped logger (request id,
// method, path) to the context and logs request completion.
func ContextualLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		reqLogger := logger.L.With(
			"requestID", requestID,
			"method", r.Method,
			"path", r.URL.Path,
		)
		ctx := logger.ToContext(r.Context(), reqLogger)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		reqLogger.Debug("Request completed", "duration", time.Since(start).String())
	})
}
