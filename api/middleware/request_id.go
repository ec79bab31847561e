package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/locallink/locallink-backend/pkg/logger"
)

const (
	requestIDHeader = "X-Request-Id"
	// Cloud Run front ends stamp this on every request as TRACE_ID/SPAN;o=1.
	cloudTraceHeader = "X-Cloud-Trace-Context"
	maxRequestIDLen  = 64
)

// RequestID tags every request with an id that is echoed back in
// X-Request-Id and attached to the request logger. A well-formed id from the
// client wins, then the Cloud trace id, then a fresh UUID.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := pickRequestID(r.Header)
			w.Header().Set(requestIDHeader, id)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
				if trace, _, ok := strings.Cut(r.Header.Get(cloudTraceHeader), "/"); ok && trace != id && validRequestID(trace) {
					ctx = logg.WithField(ctx, "trace_id", trace)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func pickRequestID(h http.Header) string {
	if id := strings.TrimSpace(h.Get(requestIDHeader)); validRequestID(id) {
		return id
	}
	if trace, _, _ := strings.Cut(h.Get(cloudTraceHeader), "/"); validRequestID(trace) {
		return trace
	}
	return uuid.NewString()
}

// validRequestID admits ids safe to echo into headers and log lines.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.' || c == ':':
		default:
			return false
		}
	}
	return true
}
