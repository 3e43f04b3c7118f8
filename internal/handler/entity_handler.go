package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"umbrella-admin/internal/lifecycle"
	"umbrella-admin/internal/model"
	"umbrella-admin/internal/util"
)

// EntityHandler serves every registered kind under /objects/{kind}.
type EntityHandler struct {
	registry *lifecycle.Registry
}

func NewEntityHandler(registry *lifecycle.Registry) *EntityHandler {
	return &EntityHandler{registry: registry}
}

func (h *EntityHandler) Kinds(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, h.registry.All(), nil)
}

func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, lifecycle.Endpoint.List)
}

func (h *EntityHandler) ListDeleted(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, lifecycle.Endpoint.ListDeleted)
}

// ListRelated lists a unit's objects for subjects validating there.
func (h *EntityHandler) ListRelated(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, lifecycle.Endpoint.ListRelated)
}

func (h *EntityHandler) list(w http.ResponseWriter, r *http.Request, list func(lifecycle.Endpoint, context.Context, *model.Subject, lifecycle.ListQuery) (lifecycle.ListResult[model.Entity], error)) {
	subject, endpoint, ok := h.resolve(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	q := lifecycle.ListQuery{
		UnitID: strings.TrimSpace(query.Get("unit")),
		Status: splitParam(query.Get("status")),
		Page:   parseIntOrDefault(query.Get("page"), 1),
		Limit:  parseIntOrDefault(query.Get("limit"), 50),
	}

	res, err := list(endpoint, r.Context(), subject, q)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, res, &res.Meta)
}

// Export returns every matching object unpaged; without ?unit it covers the
// whole organization.
func (h *EntityHandler) Export(w http.ResponseWriter, r *http.Request) {
	subject, endpoint, ok := h.resolve(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	items, err := endpoint.Export(r.Context(), subject, lifecycle.ListQuery{
		UnitID: strings.TrimSpace(query.Get("unit")),
		Status: splitParam(query.Get("status")),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, items, &model.Meta{Page: 1, Limit: len(items), Total: len(items), TotalPages: 1})
}

func (h *EntityHandler) Show(w http.ResponseWriter, r *http.Request) {
	subject, endpoint, ok := h.resolve(w, r)
	if !ok {
		return
	}

	res, err := endpoint.Show(r.Context(), subject, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, res, nil)
}

func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, "")
}

func (h *EntityHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, chi.URLParam(r, "id"))
}

func (h *EntityHandler) submit(w http.ResponseWriter, r *http.Request, id string) {
	subject, endpoint, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var payload model.SubmitEntityRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	res, err := endpoint.Submit(r.Context(), subject, lifecycle.SubmitRequest{
		ID:     id,
		UnitID: strings.TrimSpace(payload.UnitID),
		Data:   payload.Data,
		Dest:   strings.TrimSpace(payload.Dest),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeSuccess(w, status, res, nil)
}

// Delete previews the deletion unless ?confirm=true is set.
func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	subject, endpoint, ok := h.resolve(w, r)
	if !ok {
		return
	}

	confirm := r.Method == http.MethodDelete && parseBool(r.URL.Query().Get("confirm"))
	res, err := endpoint.Delete(r.Context(), subject, chi.URLParam(r, "id"), confirm)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, res, nil)
}

func (h *EntityHandler) Restore(w http.ResponseWriter, r *http.Request) {
	subject, endpoint, ok := h.resolve(w, r)
	if !ok {
		return
	}

	restored, err := endpoint.Restore(r.Context(), subject, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, restored, nil)
}

// PreviewStatus reports whether ?dest= is reachable without switching.
func (h *EntityHandler) PreviewStatus(w http.ResponseWriter, r *http.Request) {
	h.switchStatus(w, r, model.SwitchStatusRequest{Dest: r.URL.Query().Get("dest")})
}

func (h *EntityHandler) SwitchStatus(w http.ResponseWriter, r *http.Request) {
	var payload model.SwitchStatusRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	h.switchStatus(w, r, payload)
}

func (h *EntityHandler) switchStatus(w http.ResponseWriter, r *http.Request, payload model.SwitchStatusRequest) {
	subject, endpoint, ok := h.resolve(w, r)
	if !ok {
		return
	}

	res, err := endpoint.SwitchStatus(r.Context(), subject, lifecycle.SwitchRequest{
		ID:      chi.URLParam(r, "id"),
		Dest:    strings.TrimSpace(payload.Dest),
		Confirm: payload.Confirm,
		Bonus:   payload.Bonus,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, res, nil)
}

func (h *EntityHandler) Contact(w http.ResponseWriter, r *http.Request) {
	subject, endpoint, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var payload model.ContactRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	err := endpoint.Contact(r.Context(), subject, lifecycle.ContactRequest{
		ID:      chi.URLParam(r, "id"),
		Group:   strings.TrimSpace(payload.Group),
		Subject: util.CleanLine(payload.Subject, 200),
		Message: util.CleanText(payload.Message),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"sent": true}, nil)
}

func (h *EntityHandler) resolve(w http.ResponseWriter, r *http.Request) (*model.Subject, lifecycle.Endpoint, bool) {
	subject, ok := requireSubject(w, r)
	if !ok {
		return nil, nil, false
	}

	endpoint, ok := h.registry.Lookup(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, model.ErrUnknownKind)
		return nil, nil, false
	}
	return subject, endpoint, true
}

func splitParam(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
