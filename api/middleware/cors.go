package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/cors"
)

const corsMaxAge = 300

// CORS applies the configured origin policy. Entries may use one wildcard
// ("https://*.locallink.in"); a bare "*" allows any origin but then drops
// credentials. An empty list falls back to the local dashboard.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := cleanOrigins(origins)
	if len(allowed) == 0 {
		allowed = []string{"http://localhost:3000"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "Last-Event-ID", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After", "Idempotent-Replayed"},
		AllowCredentials: !slices.Contains(allowed, "*"),
		MaxAge:           corsMaxAge,
	}).Handler
}

func cleanOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" && !slices.Contains(out, o) {
			out = append(out, o)
		}
	}
	return out
}
