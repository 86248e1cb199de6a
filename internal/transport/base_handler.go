package transport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aolus-software/rbac-api/internal"
	"github.com/aolus-software/rbac-api/pkg/logger"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    interface{}         `json:"data"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
	// ExposeStack adds the goroutine stack to internal error responses.
	ExposeStack bool
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
		if lg == nil {
			lg = slog.Default()
		}
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *BaseHandler) WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	h.WriteJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// WriteError writes a bare error envelope for failures raised outside the service layer.
func (h *BaseHandler) WriteError(w http.ResponseWriter, status int, message string) {
	h.WriteJSON(w, status, Envelope{Success: false, Message: message})
}

// WriteAppError maps any error to its status code and error envelope.
func (h *BaseHandler) WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := internal.AsAppError(err)
	log := logger.FromOr(r.Context(), h.Logger)

	body := Envelope{Success: false, Message: appErr.Message}
	if len(appErr.Errors) > 0 {
		body.Errors = appErr.Errors
	}

	switch {
	case appErr.StatusCode >= http.StatusInternalServerError:
		log.ErrorContext(r.Context(), "request failed",
			"type", appErr.Type,
			"code", appErr.Code,
			"error", err,
			"method", r.Method,
			"url", r.URL.String(),
			"user_agent", r.UserAgent(),
			"ip", ClientIP(r),
			"timestamp", time.Now().UTC().Format(time.RFC3339),
		)
		if h.ExposeStack && appErr.Type == internal.ErrorTypeInternal {
			if body.Errors == nil {
				body.Errors = map[string][]string{}
			}
			body.Errors["_stack"] = strings.Split(strings.TrimSpace(string(debug.Stack())), "\n")
		}
	case appErr.Type != internal.ErrorTypeValidation:
		log.WarnContext(r.Context(), "request rejected",
			"type", appErr.Type,
			"code", appErr.Code,
			"message", appErr.GetDetailedMessage(),
			"method", r.Method,
			"url", r.URL.Path,
		)
	}

	h.WriteJSON(w, appErr.StatusCode, body)
}

// DecodeJSON reads the request body into dst. Unknown fields are ignored and
// an empty body is treated as an empty object.
func (h *BaseHandler) DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return internal.NewBadRequestError("Request body too large", internal.ErrCodeMalformedBody)
	}
	return internal.NewBadRequestError("Invalid request body", internal.ErrCodeMalformedBody).WithCause(err)
}

// ExtractTokenFromHeader extracts Bearer token from Authorization header
func (h *BaseHandler) ExtractTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return ""
	}

	return strings.TrimSpace(authHeader[7:])
}
