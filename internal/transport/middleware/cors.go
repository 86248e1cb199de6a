package middleware

import (
	"net/http"

	"github.com/aolus-software/rbac-api/internal"
	"github.com/go-chi/cors"
)

// CORS builds the cross-origin handler from configuration.
func CORS(cfg internal.CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   []string{TraceHeader},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}
