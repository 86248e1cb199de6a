package role

import (
	"net/http"

	"github.com/aolus-software/rbac-api/internal/datatable"
	"github.com/aolus-software/rbac-api/internal/transport"
	"github.com/go-chi/chi"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     svc,
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q, err := datatable.Parse(r.URL.Query())
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	page, err := h.Service.List(r.Context(), q)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Roles retrieved", page)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var dto SaveDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	if err := h.Service.Create(r.Context(), dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusCreated, "Role created", nil)
}

func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Service.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Role retrieved", detail)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var dto SaveDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	if err := h.Service.Update(r.Context(), chi.URLParam(r, "id"), dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Role updated", nil)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Role deleted", nil)
}
