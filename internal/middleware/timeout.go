package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

const defaultRequestTimeout = 30 * time.Second

// Timeout bounds the handler chain. http.TimeoutHandler cannot hijack, so
// websocket routes must be mounted outside it.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	body, err := json.Marshal(errorEnvelope("REQUEST_TIMEOUT", "request timed out after "+timeout.String()))
	if err != nil {
		body = []byte(`{"success":false}`)
	}

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, string(body))
	}
}
