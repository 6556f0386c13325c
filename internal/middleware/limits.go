package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/rs/cors"
)

// CORS allows the dashboard origins. "*" disables credentials, as browsers
// reject a wildcard origin with credentials.
func CORS(origins []string) func(http.Handler) http.Handler {
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", HeaderRequestID},
		AllowCredentials: !wildcard,
	})
	return c.Handler
}

// RateLimit caps requests per client IP over a sliding window. Counters live
// in process memory and reset on restart. A non-positive limit disables it.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
		}),
	)
}
