package handler

import (
	"net/http"

	"umbrella-admin/internal/model"
	"umbrella-admin/internal/service"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(service *service.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	items, meta, err := h.service.Query(r.Context(), service.AuditFilter{
		Kind:     query.Get("kind"),
		EntityID: query.Get("entity_id"),
		Action:   query.Get("action"),
		ActorID:  query.Get("actor_id"),
		From:     query.Get("from"),
		To:       query.Get("to"),
		Page:     parseIntOrDefault(query.Get("page"), 1),
		Limit:    parseIntOrDefault(query.Get("limit"), 50),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.AuditListData{Items: items}, &meta)
}
