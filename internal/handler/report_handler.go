package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"umbrella-admin/internal/accounting"
)

type ReportHandler struct {
	reports *accounting.Reports
}

func NewReportHandler(reports *accounting.Reports) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// SubventionYear returns the subventions of one accounting year with their
// totals for units and associations.
func (h *ReportHandler) SubventionYear(w http.ResponseWriter, r *http.Request) {
	subject, ok := requireSubject(w, r)
	if !ok {
		return
	}

	report, err := h.reports.SubventionYear(r.Context(), subject, chi.URLParam(r, "yearID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, report, nil)
}
