package role

import (
	"strings"

	"github.com/aolus-software/rbac-api/internal/core/common/validation"
)

// SaveDTO backs both create and update. PermissionIDs may be empty but not absent.
type SaveDTO struct {
	Name          string   `json:"name"`
	PermissionIDs []string `json:"permission_ids"`
}

func (d *SaveDTO) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	d.PermissionIDs = dedupe(d.PermissionIDs)

	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MinLength(3).MaxLength(100)
	v.Field("permission_ids", d.PermissionIDs).Required().EachUUID()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
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
