package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the single configured frontend origin. An empty origin allows any
// origin without credentials, which is only meant for local development.
func CORS(origin string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}
	if origin == "" {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowedOrigins = []string{origin}
		opts.AllowCredentials = true
	}
	return cors.Handler(opts)
}
