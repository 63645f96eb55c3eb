package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/idx"
)

// RequestIDHeader is read from the request when present and always echoed on
// the response.
const RequestIDHeader = "X-Request-ID"

// HTTPMiddleware logs one line per request and attaches a request-scoped
// logger to the context. Health endpoints log at debug.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" || len(reqID) > 128 {
				reqID = idx.New().String()
			}
			w.Header().Set(RequestIDHeader, reqID)

			logger := base.With(
				"req_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			rw := &responseWriter{ResponseWriter: w}
			next.ServeHTTP(rw, r.WithContext(WithContext(r.Context(), logger)))

			level := slog.LevelInfo
			switch {
			case rw.statusCode() >= 500:
				level = slog.LevelError
			case r.URL.Path == "/livez" || r.URL.Path == "/readyz":
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "http_request",
				"status", rw.statusCode(),
				"bytes", rw.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter

	status int
	bytes  int
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

func (rw *responseWriter) statusCode() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}
