package rbac

// AdminRole is seeded with the whole catalog.
const AdminRole = "admin"

const (
	PermUserList   = "user list"
	PermUserCreate = "user create"
	PermUserDetail = "user detail"
	PermUserEdit   = "user edit"
	PermUserDelete = "user delete"

	PermRoleList   = "role list"
	PermRoleCreate = "role create"
	PermRoleDetail = "role detail"
	PermRoleEdit   = "role edit"
	PermRoleDelete = "role delete"

	PermPermissionList   = "permission list"
	PermPermissionCreate = "permission create"
	PermPermissionDetail = "permission detail"
	PermPermissionEdit   = "permission edit"
	PermPermissionDelete = "permission delete"
)

// Catalog returns the seeded permissions keyed by group, in seeding order.
func Catalog() []Permission {
	actions := []string{"list", "create", "detail", "edit", "delete"}
	groups := []string{"user", "role", "permission"}

	out := make([]Permission, 0, len(actions)*len(groups))
	for _, g := range groups {
		for _, a := range actions {
			out = append(out, Permission{Name: g + " " + a, Group: g})
		}
	}
	return out
}
