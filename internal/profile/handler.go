package profile

import (
	"net/http"

	"github.com/aolus-software/rbac-api/internal"
	"github.com/aolus-software/rbac-api/internal/snapshot"
	"github.com/aolus-software/rbac-api/internal/transport"
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

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (*snapshot.Snapshot, bool) {
	snap, ok := snapshot.FromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.NewUnauthorizedError("Authentication is required", internal.ErrCodeIdentityMissing))
		return nil, false
	}
	return snap, true
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.identity(w, r)
	if !ok {
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Profile retrieved", snap)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.identity(w, r)
	if !ok {
		return
	}

	var dto UpdateDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	updated, err := h.Service.Update(r.Context(), snap.ID, dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Profile updated", updated)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.identity(w, r)
	if !ok {
		return
	}

	var dto ChangePasswordDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	if err := h.Service.ChangePassword(r.Context(), snap.ID, dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Password updated", nil)
}
