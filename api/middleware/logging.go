package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/msa-portal/portal-backend/pkg/metrics"
)

// Logging writes one request.complete line per request and feeds the HTTP
// metrics. Health check traffic is logged at debug.
func Logging(logg *logger.Logger, m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			status := rec.statusOrOK()
			route := routePattern(r)
			m.ObserveRequest(r.Method, route, status, elapsed)

			if logg == nil {
				return
			}
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"route":       route,
				"status":      status,
				"bytes":       rec.bytes,
				"duration_ms": elapsed.Milliseconds(),
			})
			switch {
			case status >= http.StatusInternalServerError:
				logg.Warn(ctx, "request.complete")
			case strings.HasPrefix(r.URL.Path, "/health"), r.URL.Path == "/metrics":
				logg.Debug(ctx, "request.complete")
			default:
				logg.Info(ctx, "request.complete")
			}
		})
	}
}

// routePattern is only complete once the router has finished matching.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) statusOrOK() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
