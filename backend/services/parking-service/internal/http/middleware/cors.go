package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the dashboard origins. An empty list allows any origin without credentials.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := allowedOrigins
	credentials := true
	if len(origins) == 0 {
		origins = []string{"*"}
		credentials = false
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: credentials,
		MaxAge:           300,
	})
}
