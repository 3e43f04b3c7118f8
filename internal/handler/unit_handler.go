package handler

import (
	"net/http"

	"umbrella-admin/internal/model"
	"umbrella-admin/internal/service"
	"umbrella-admin/internal/util"
)

type UnitHandler struct {
	service *service.UnitService
}

func NewUnitHandler(service *service.UnitService) *UnitHandler {
	return &UnitHandler{service: service}
}

// List returns the unit tree, or the flat list with ?flat=true.
func (h *UnitHandler) List(w http.ResponseWriter, r *http.Request) {
	if parseBool(r.URL.Query().Get("flat")) {
		writeSuccess(w, http.StatusOK, h.service.List(), nil)
		return
	}
	writeSuccess(w, http.StatusOK, h.service.Tree(), nil)
}

func (h *UnitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload model.CreateUnitRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.service.Create(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, created, nil)
}

func (h *UnitHandler) CheckName(w http.ResponseWriter, r *http.Request) {
	name := util.CleanLine(r.URL.Query().Get("name"), 0)
	writeSuccess(w, http.StatusOK, map[string]any{
		"name":      name,
		"available": h.service.NameAvailable(name),
	}, nil)
}
