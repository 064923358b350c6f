package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

var defaultCORSOrigins = []string{
	"http://localhost:3000", // local web dev
	"http://localhost:8081", // Expo dev client
}

// CORS returns middleware that applies the API's allowed origin policy.
// Extra origins (e.g. the deployed storefront) are appended to the defaults.
func CORS(extraOrigins ...string) func(http.Handler) http.Handler {
	origins := append([]string{}, defaultCORSOrigins...)
	origins = append(origins, extraOrigins...)

	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Device-ID", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
