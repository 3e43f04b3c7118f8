package middleware

import (
	"encoding/json"
	"net/http"

	"umbrella-admin/internal/model"
)

func errorEnvelope(code string, message string) model.APIResponse {
	return model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: code, Message: message},
	}
}

// writeFailure writes the error envelope handlers use, for responses that
// middleware produces before any handler runs.
func writeFailure(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope(code, message))
}
