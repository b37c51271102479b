package mw

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows the browser client at origins to call the API with a bearer
// token. An empty list sends no CORS headers, so browsers refuse every
// cross-origin caller.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return passthrough
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Last-Event-ID"},
		ExposedHeaders: []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-Request-Id"},
		MaxAge:         300,
	})
	return c.Handler
}
