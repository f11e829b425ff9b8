package gateway

import (
	"net/http"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// withMiddleware wraps the mux with the gateway's cross-cutting layers:
// request IDs, rate limiting, request logging and counters.
func (g *Gateway) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		if !g.limiter.Allow() {
			g.requestsFailed.Add(1)
			g.logger.Warn("Request rate limited",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path)
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		g.requestsTotal.Add(1)
		g.logger.Debug("Request received",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr)

		next.ServeHTTP(w, r)
	})
}
