package slogx

import (
	"log/slog"
	"net/http"
	"time"
)

// HTTPMiddleware logs inbound requests and attaches a logger carrying the
// request ID to the request context. The ID from HeaderRequestID is reused
// when present, so a client's Transport and the server share it.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			reqID := r.Header.Get(HeaderRequestID)
			if reqID == "" {
				reqID = NewRequestID()
			}
			rw.Header().Set(HeaderRequestID, reqID)

			logger := base.With(
				"req_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
			)
			next.ServeHTTP(rw, r.WithContext(WithContext(r.Context(), logger)))

			logger.Debug("http_served",
				"status", rw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter

	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
