package handler

import (
	"net/http"

	"umbrella-admin/internal/middleware"
	"umbrella-admin/internal/model"
	"umbrella-admin/pkg/apierror"
)

// requireSubject returns the authenticated subject, writing a 401 when the
// route was mounted without RequireAuth.
func requireSubject(w http.ResponseWriter, r *http.Request) (*model.Subject, bool) {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return nil, false
	}
	return subject, true
}
