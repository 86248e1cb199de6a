package auth

import (
	"strings"

	"github.com/aolus-software/rbac-api/internal/core/common/validation"
)

// LoginDTO is the transport shape used by the HTTP handler to accept login requests.
type LoginDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (d *LoginDTO) Validate() error {
	d.Email = normalizeEmail(d.Email)

	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email().MaxLength(255)
	v.Field("password", d.Password).Required().MinLength(8).MaxLength(128)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type RegisterDTO struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (d *RegisterDTO) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = normalizeEmail(d.Email)

	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MinLength(3).MaxLength(255)
	v.Field("email", d.Email).Required().Email().MaxLength(255)
	v.Field("password", d.Password).Required().StrongPassword().MaxLength(72)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// EmailDTO backs resend-verification and forgot-password.
type EmailDTO struct {
	Email string `json:"email"`
}

func (d *EmailDTO) Validate() error {
	d.Email = normalizeEmail(d.Email)

	v := validation.NewValidator()
	v.Field("email", d.Email).Required().Email().MaxLength(255)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type TokenDTO struct {
	Token string `json:"token"`
}

func (d *TokenDTO) Validate() error {
	d.Token = strings.TrimSpace(d.Token)

	v := validation.NewValidator()
	v.Field("token", d.Token).Required().MinLength(10)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type ResetPasswordDTO struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (d *ResetPasswordDTO) Validate() error {
	d.Token = strings.TrimSpace(d.Token)

	v := validation.NewValidator()
	v.Field("token", d.Token).Required().MinLength(10)
	v.Field("password", d.Password).Required().StrongPassword().MaxLength(72)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
