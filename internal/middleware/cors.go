package middleware

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rs/cors"
)

// CORS answers preflights for the configured origins. Credentials are only
// allowed when every origin is named; browsers reject them with "*".
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	for _, origin := range origins {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			allowed = append(allowed, origin)
		}
	}
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	return cors.New(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{"Retry-After", requestIDHeader},
		MaxAge:           int(time.Hour.Seconds()),
		AllowCredentials: !slices.Contains(allowed, "*"),
	}).Handler
}
