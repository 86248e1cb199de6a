package permission

import (
	"strings"

	"github.com/aolus-software/rbac-api/internal/core/common/validation"
)

// CreateDTO creates one permission per name, each stored as "<group> <name>".
type CreateDTO struct {
	Group string   `json:"group"`
	Names []string `json:"name"`
}

func (d *CreateDTO) Validate() error {
	d.Group = strings.TrimSpace(d.Group)
	for i := range d.Names {
		d.Names[i] = strings.TrimSpace(d.Names[i])
	}

	v := validation.NewValidator()
	v.Field("group", d.Group).Required().MinLength(3).MaxLength(100)
	v.Field("name", d.Names).Required().NotEmptySlice().EachLength(3, 100)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// Expanded returns the full permission names in request order, without duplicates.
func (d *CreateDTO) Expanded() []string {
	seen := make(map[string]struct{}, len(d.Names))
	names := make([]string, 0, len(d.Names))
	for _, n := range d.Names {
		full := d.Group + " " + n
		key := strings.ToLower(full)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, full)
	}
	return names
}

type UpdateDTO struct {
	Name  string `json:"name"`
	Group string `json:"group"`
}

func (d *UpdateDTO) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Group = strings.TrimSpace(d.Group)

	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MinLength(3).MaxLength(100)
	v.Field("group", d.Group).Required().MinLength(3).MaxLength(100)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}
