package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

// statusWriter records the status and body size a handler produced.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach Flush and SetWriteDeadline on
// the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Log writes one line per request. Server errors log at error level, client
// errors at warn, the rest at info. Health check endpoints log at debug so they do
// not drown the access log.
func Log(loggerClient logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(ww, r)

			status := ww.status
			if status == 0 {
				// Handler wrote nothing; net/http sends 200.
				status = http.StatusOK
			}

			fields := []logger.Field{
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.String("route", routePattern(r)),
				logger.Int("status", status),
				logger.Int64("bytes", ww.bytes),
				logger.Duration("duration", time.Since(start)),
				logger.String("remote_ip", r.RemoteAddr),
				logger.String("request_id", middleware.GetReqID(r.Context())),
			}

			switch {
			case status >= http.StatusInternalServerError:
				loggerClient.Error("http_request", fields...)
			case status >= http.StatusBadRequest:
				loggerClient.Warn("http_request", append(fields, logger.String("user_agent", r.UserAgent()))...)
			case isHealthCheck(r.URL.Path):
				loggerClient.Debug("http_request", fields...)
			default:
				loggerClient.Info("http_request", fields...)
			}
		})
	}
}

// routePattern is the matched chi pattern, e.g. /api/bookmarks/{id}, so
// per-route aggregation does not explode on ids.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

func isHealthCheck(path string) bool {
	return path == "/healthz" || path == "/readyz"
}
