package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

var defaultCORSOrigins = []string{
	"http://localhost:3000", // local dev
	"https://wdirapp.com",
	"https://www.wdirapp.com",
}

// CORS returns middleware that applies the API's allowed origin policy. The
// configured site base URL is always allowed.
func CORS(baseURL string) func(http.Handler) http.Handler {
	origins := append([]string{}, defaultCORSOrigins...)
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		origins = append(origins, base)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
