package auth

import (
	"net/http"

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

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	result, err := h.Service.Login(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Login successful", result)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var dto RegisterDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	if err := h.Service.Register(r.Context(), dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusCreated, "Registration successful", nil)
}

func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var dto EmailDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	if err := h.Service.ResendVerification(r.Context(), dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Verification email sent", nil)
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var dto TokenDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	if err := h.Service.VerifyEmail(r.Context(), dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Email verified", nil)
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var dto EmailDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	if err := h.Service.ForgotPassword(r.Context(), dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Password reset email sent", nil)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var dto ResetPasswordDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	if err := h.Service.ResetPassword(r.Context(), dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteSuccess(w, http.StatusOK, "Password reset successful", nil)
}
