package user

import (
	"strings"

	"github.com/aolus-software/rbac-api/internal/core/common/validation"
	userDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/user"
	"github.com/aolus-software/rbac-api/internal/datatable"
)

var statuses = []string{
	string(userDatamodel.StatusActive),
	string(userDatamodel.StatusInactive),
	string(userDatamodel.StatusSuspended),
	string(userDatamodel.StatusBlocked),
}

// ValidateListQuery rejects filters the list query cannot compare safely.
func ValidateListQuery(q datatable.Query) error {
	roleID, _ := q.Filter("role_id")
	status, _ := q.Filter("status")

	v := validation.NewValidator()
	v.Field("filter[role_id]", roleID).Optional().UUID()
	v.Field("filter[status]", strings.ToLower(status)).Optional().OneOf(statuses...)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type CreateDTO struct {
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Status   string   `json:"status"`
	Remark   *string  `json:"remark"`
	RoleIDs  []string `json:"role_ids"`
}

func (d *CreateDTO) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = normalizeEmail(d.Email)
	d.Status = strings.TrimSpace(d.Status)
	d.RoleIDs = dedupe(d.RoleIDs)

	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MinLength(3).MaxLength(100)
	v.Field("email", d.Email).Required().Email().MaxLength(255)
	v.Field("password", d.Password).Required().MinLength(8).MaxLength(72)
	v.Field("status", d.Status).Optional().OneOf(statuses...)
	v.Field("remark", d.Remark).Optional().MaxLength(255)
	v.Field("role_ids", d.RoleIDs).Optional().EachUUID()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// UpdateDTO leaves status and remark untouched when omitted. An omitted
// role_ids clears every role assignment.
type UpdateDTO struct {
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Status  string   `json:"status"`
	Remark  *string  `json:"remark"`
	RoleIDs []string `json:"role_ids"`
}

func (d *UpdateDTO) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = normalizeEmail(d.Email)
	d.Status = strings.TrimSpace(d.Status)
	d.RoleIDs = dedupe(d.RoleIDs)

	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MinLength(3).MaxLength(100)
	v.Field("email", d.Email).Required().Email().MaxLength(255)
	v.Field("status", d.Status).Optional().OneOf(statuses...)
	v.Field("remark", d.Remark).Optional().MaxLength(255)
	v.Field("role_ids", d.RoleIDs).Optional().EachUUID()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func dedupe(ids []string) []string {
	if ids == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
