package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	errors "github.com/aolus-software/rbac-api/internal"
	"github.com/google/uuid"
)

// ValidatorFunc returns a message when the value is rejected, or "" when it passes.
type ValidatorFunc func(interface{}) string

type FieldValidator struct {
	FieldName  string
	Value      interface{}
	Validators []ValidatorFunc
	optional   bool
}

type ValidationBuilder struct {
	fields []*FieldValidator
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{
		fields: make([]*FieldValidator, 0),
	}
}

func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	fv := &FieldValidator{
		FieldName:  name,
		Value:      value,
		Validators: make([]ValidatorFunc, 0),
	}
	v.fields = append(v.fields, fv)
	return fv
}

// Optional skips the remaining rules when the value is empty.
func (fv *FieldValidator) Optional() *FieldValidator {
	fv.optional = true
	return fv
}

func (fv *FieldValidator) Required() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) string {
		if isEmpty(value) {
			return fmt.Sprintf("%s is required", fv.FieldName)
		}
		return ""
	})
	return fv
}

func (fv *FieldValidator) MinLength(min int) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) string {
		if v, ok := stringValue(value); ok && utf8.RuneCountInString(v) < min {
			return fmt.Sprintf("%s must be at least %d characters", fv.FieldName, min)
		}
		return ""
	})
	return fv
}

func (fv *FieldValidator) MaxLength(max int) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) string {
		if v, ok := stringValue(value); ok && utf8.RuneCountInString(v) > max {
			return fmt.Sprintf("%s must not exceed %d characters", fv.FieldName, max)
		}
		return ""
	})
	return fv
}

func (fv *FieldValidator) Email() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) string {
		v, ok := stringValue(value)
		if !ok || v == "" {
			return ""
		}
		addr, err := mail.ParseAddress(v)
		if err != nil || addr.Address != v || !strings.Contains(v[strings.LastIndex(v, "@")+1:], ".") {
			return "Must be a valid email address"
		}
		return ""
	})
	return fv
}

var strongPasswordSpecial = regexp.MustCompile(`[^A-Za-z0-9]`)

// StrongPassword requires 8+ characters with upper, lower, digit and special characters.
func (fv *FieldValidator) StrongPassword() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) string {
		v, ok := stringValue(value)
		if !ok {
			return ""
		}
		var upper, lower, digit bool
		for _, r := range v {
			switch {
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsLower(r):
				lower = true
			case unicode.IsDigit(r):
				digit = true
			}
		}
		if utf8.RuneCountInString(v) < 8 || !upper || !lower || !digit || !strongPasswordSpecial.MatchString(v) {
			return "Password must contain at least 8 characters, one uppercase, one lowercase, one number and one special character"
		}
		return ""
	})
	return fv
}

func (fv *FieldValidator) OneOf(allowed ...string) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) string {
		v, ok := stringValue(value)
		if !ok || v == "" {
			return ""
		}
		for _, a := range allowed {
			if v == a {
				return ""
			}
		}
		return fmt.Sprintf("%s must be one of: %s", fv.FieldName, strings.Join(allowed, ", "))
	})
	return fv
}

func (fv *FieldValidator) UUID() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) string {
		v, ok := stringValue(value)
		if !ok || v == "" {
			return ""
		}
		if _, err := uuid.Parse(v); err != nil {
			return fmt.Sprintf("%s must be a valid UUID", fv.FieldName)
		}
		return ""
	})
	return fv
}

// EachUUID validates every element of a string slice.
func (fv *FieldValidator) EachUUID() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) string {
		ids, ok := value.([]string)
		if !ok {
			return ""
		}
		for _, id := range ids {
			if _, err := uuid.Parse(id); err != nil {
				return fmt.Sprintf("%s must contain valid UUIDs", fv.FieldName)
			}
		}
		return ""
	})
	return fv
}

// EachLength bounds the length of every element of a string slice.
func (fv *FieldValidator) EachLength(min, max int) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) string {
		items, ok := value.([]string)
		if !ok {
			return ""
		}
		for _, item := range items {
			n := utf8.RuneCountInString(item)
			if n < min || n > max {
				return fmt.Sprintf("each %s must be between %d and %d characters", fv.FieldName, min, max)
			}
		}
		return ""
	})
	return fv
}

func (fv *FieldValidator) NotEmptySlice() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) string {
		if items, ok := value.([]string); ok && len(items) == 0 {
			return fmt.Sprintf("%s must contain at least one item", fv.FieldName)
		}
		return ""
	})
	return fv
}

func (fv *FieldValidator) Custom(validator ValidatorFunc) *FieldValidator {
	fv.Validators = append(fv.Validators, validator)
	return fv
}

// Validate runs every rule and returns a 422 validation error keyed by field, or nil.
func (v *ValidationBuilder) Validate() *errors.AppError {
	fieldErrors := errors.FieldErrors{}

	for _, field := range v.fields {
		if field.optional && isEmpty(field.Value) {
			continue
		}
		for _, validator := range field.Validators {
			if msg := validator(field.Value); msg != "" {
				fieldErrors.Add(field.FieldName, msg)
			}
		}
	}

	if len(fieldErrors) > 0 {
		return errors.NewValidationError("Validation failed", fieldErrors)
	}

	return nil
}

func stringValue(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case *string:
		if v == nil {
			return "", false
		}
		return *v, true
	}
	return "", false
}

func isEmpty(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case *string:
		return v == nil || strings.TrimSpace(*v) == ""
	case []string:
		return v == nil
	case int:
		return v == 0
	case int64:
		return v == 0
	}
	return false
}
