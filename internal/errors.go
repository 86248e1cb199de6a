package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type ErrorType string

const (
	ErrorTypeBadRequest         ErrorType = "BAD_REQUEST"
	ErrorTypeValidation         ErrorType = "VALIDATION_ERROR"
	ErrorTypeUnprocessable      ErrorType = "UNPROCESSABLE_ENTITY"
	ErrorTypeNotFound           ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized       ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden          ErrorType = "FORBIDDEN"
	ErrorTypeTooManyRequests    ErrorType = "TOO_MANY_REQUESTS"
	ErrorTypeInternal           ErrorType = "INTERNAL_ERROR"
	ErrorTypeServiceUnavailable ErrorType = "SERVICE_UNAVAILABLE"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeMalformedBody    ErrorCode = "MALFORMED_BODY"

	ErrCodeUserNotFound       ErrorCode = "USER_NOT_FOUND"
	ErrCodeEmailNotVerified   ErrorCode = "EMAIL_NOT_VERIFIED"
	ErrCodeUserInactive       ErrorCode = "USER_INACTIVE"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken         ErrorCode = "EMAIL_TAKEN"
	ErrCodeAlreadyVerified    ErrorCode = "ALREADY_VERIFIED"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	ErrCodeMissingToken       ErrorCode = "MISSING_TOKEN"
	ErrCodeWrongPassword      ErrorCode = "WRONG_PASSWORD"

	ErrCodeIdentityMissing    ErrorCode = "IDENTITY_MISSING"
	ErrCodeRoleDenied         ErrorCode = "ROLE_DENIED"
	ErrCodePermissionDenied   ErrorCode = "PERMISSION_DENIED"
	ErrCodeRoleNotFound       ErrorCode = "ROLE_NOT_FOUND"
	ErrCodeRoleNameTaken      ErrorCode = "ROLE_NAME_TAKEN"
	ErrCodePermissionNotFound ErrorCode = "PERMISSION_NOT_FOUND"
	ErrCodePermissionExists   ErrorCode = "PERMISSION_EXISTS"

	ErrCodeRateLimited    ErrorCode = "RATE_LIMITED"
	ErrCodeDependencyDown ErrorCode = "DEPENDENCY_DOWN"
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
)

// FieldErrors maps a field path to the messages raised against it.
type FieldErrors map[string][]string

func (f FieldErrors) Add(field, message string) {
	f[field] = append(f[field], message)
}

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Errors     FieldErrors `json:"errors,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// GetDetailedMessage flattens field messages into one line, sorted by field.
func (e *AppError) GetDetailedMessage() string {
	if len(e.Errors) == 0 {
		return e.Message
	}
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var messages []string
	for _, field := range fields {
		messages = append(messages, e.Errors[field]...)
	}
	return strings.Join(messages, "; ")
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithField returns the error with a field-tagged message appended.
func (e *AppError) WithField(field, message string) *AppError {
	if e.Errors == nil {
		e.Errors = FieldErrors{}
	}
	e.Errors.Add(field, message)
	return e
}

func (e *AppError) WithErrors(errs FieldErrors) *AppError {
	e.Errors = errs
	return e
}

func newAppError(t ErrorType, code ErrorCode, status int, message string) *AppError {
	return &AppError{
		Type:       t,
		Code:       code,
		Message:    message,
		StatusCode: status,
	}
}

func NewBadRequestError(message string, code ErrorCode) *AppError {
	return newAppError(ErrorTypeBadRequest, code, http.StatusBadRequest, message)
}

// NewValidationError is raised for request shape failures before business logic runs.
func NewValidationError(message string, errs FieldErrors) *AppError {
	return newAppError(ErrorTypeValidation, ErrCodeValidationFailed, http.StatusUnprocessableEntity, message).WithErrors(errs)
}

// NewUnprocessableError is a business-rule violation tagged to one field.
func NewUnprocessableError(message string, code ErrorCode, field, detail string) *AppError {
	err := newAppError(ErrorTypeUnprocessable, code, http.StatusUnprocessableEntity, message)
	if field != "" {
		err.WithField(field, detail)
	}
	return err
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return newAppError(ErrorTypeNotFound, code, http.StatusNotFound, message)
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return newAppError(ErrorTypeUnauthorized, code, http.StatusUnauthorized, message)
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return newAppError(ErrorTypeForbidden, code, http.StatusForbidden, message)
}

func NewTooManyRequestsError(message string) *AppError {
	return newAppError(ErrorTypeTooManyRequests, ErrCodeRateLimited, http.StatusTooManyRequests, message)
}

func NewInternalError(message string, cause error) *AppError {
	return newAppError(ErrorTypeInternal, ErrCodeInternal, http.StatusInternalServerError, message).WithCause(cause)
}

func NewServiceUnavailableError(message string, cause error) *AppError {
	return newAppError(ErrorTypeServiceUnavailable, ErrCodeDependencyDown, http.StatusServiceUnavailable, message).WithCause(cause)
}

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// AsAppError never returns nil for a non-nil err; unknown errors become internal.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := IsAppError(err); ok {
		return appErr
	}
	return NewInternalError("Internal server error", err)
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Errors  FieldErrors `json:"errors,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Errors:  e.Errors,
	})
}
