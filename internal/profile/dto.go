package profile

import (
	"strings"

	"github.com/aolus-software/rbac-api/internal/core/common/validation"
)

type UpdateDTO struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Remarks *string `json:"remarks"`
}

func (d *UpdateDTO) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))

	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(255)
	v.Field("email", d.Email).Required().Email().MaxLength(255)
	v.Field("remarks", d.Remarks).Optional().MaxLength(255)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type ChangePasswordDTO struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (d *ChangePasswordDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("current_password", d.CurrentPassword).Required().MinLength(8).MaxLength(128)
	v.Field("new_password", d.NewPassword).Required().StrongPassword().MaxLength(72).
		Custom(func(value interface{}) string {
			if d.CurrentPassword != "" && value == d.CurrentPassword {
				return "New password must be different from the current password"
			}
			return ""
		})
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}
