package handler

import (
	"context"
	"log/slog"
	"net/http"

	"umbrella-admin/pkg/apierror"
)

// Health answers "ok" while check succeeds. A nil check always passes.
func Health(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				slog.Warn("health check failed", "error", err)
				writeError(w, apierror.New("UNAVAILABLE", "Backing store unreachable", "", http.StatusServiceUnavailable))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
