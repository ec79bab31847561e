package middleware

import (
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"

	"github.com/locallink/locallink-backend/pkg/logger"
)

// quietPaths are polled by probes and scrapers; they only log at debug.
var quietPaths = []string{"/health/", "/metrics"}

// Logging writes one line per request once it finishes, with the matched
// route pattern rather than the raw path so ids stay out of the message
// grouping. httpsnoop keeps Flusher and friends intact for the market stream.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			r = r.WithContext(ctx)

			m := httpsnoop.CaptureMetrics(next, w, r)

			fields := map[string]any{
				"status":      m.Code,
				"bytes":       m.Written,
				"duration_ms": m.Duration.Milliseconds(),
			}
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				fields["route"] = rc.RoutePattern()
			}
			done := logg.WithFields(ctx, fields)
			switch {
			case quiet(r.URL.Path) && m.Code < http.StatusInternalServerError:
				logg.Debug(done, "request.complete")
			case m.Code >= http.StatusInternalServerError:
				logg.Warn(done, "request.complete")
			default:
				logg.Info(done, "request.complete")
			}
		})
	}
}

func quiet(path string) bool {
	for _, p := range quietPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
