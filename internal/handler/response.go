package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"umbrella-admin/internal/lifecycle"
	"umbrella-admin/internal/model"
	"umbrella-admin/internal/state"
	"umbrella-admin/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var lcErr *lifecycle.Error
	var lcConfig *lifecycle.ConfigError
	var stConfig *state.ConfigError
	var apiErr *apierror.APIError

	switch {
	case errors.As(err, &lcConfig), errors.As(err, &stConfig):
		slog.Error("lifecycle misconfiguration", "error", err.Error())
	case errors.As(err, &lcErr):
		status, body = lifecycleError(lcErr)
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
		body.Fields = apiErr.Fields
	case errors.Is(err, model.ErrSubjectNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "User not found"
	case errors.Is(err, model.ErrSubjectAlreadyExists):
		status = http.StatusConflict
		body.Code = "ALREADY_EXISTS"
		body.Message = "User already exists"
	case errors.Is(err, model.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Invalid credentials"
	case errors.Is(err, model.ErrUnitNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Unit not found"
	case errors.Is(err, model.ErrUnitNameTaken):
		status = http.StatusConflict
		body.Code = "ALREADY_EXISTS"
		body.Message = "Unit name already taken"
	case errors.Is(err, model.ErrEntityNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Object not found"
	case errors.Is(err, model.ErrUnknownKind):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Unknown object kind"
	case errors.Is(err, model.ErrUnauthorized):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Authentication required"
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Invalid input"
	default:
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

func lifecycleError(err *lifecycle.Error) (int, *model.APIError) {
	body := &model.APIError{Message: err.Message, Fields: err.Fields}
	switch err.Code {
	case lifecycle.CodeNotFound:
		body.Code = "NOT_FOUND"
		return http.StatusNotFound, body
	case lifecycle.CodeInvalid:
		body.Code = "VALIDATION_FAILED"
		return http.StatusUnprocessableEntity, body
	case lifecycle.CodeTransitionDenied:
		body.Code = "TRANSITION_DENIED"
		return http.StatusConflict, body
	case lifecycle.CodeDeleteVetoed:
		body.Code = "DELETE_VETOED"
		return http.StatusConflict, body
	}
	slog.Error("unknown lifecycle error code", "code", err.Code)
	return http.StatusInternalServerError, &model.APIError{Code: "INTERNAL_ERROR", Message: "Unexpected server error"}
}

func parseIntOrDefault(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierror.BadRequest("invalid JSON body", "")
	}
	return nil
}
