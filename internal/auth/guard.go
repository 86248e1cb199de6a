package auth

import (
	"net/http"
	"strings"

	"github.com/aolus-software/rbac-api/internal"
	"github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	"github.com/aolus-software/rbac-api/internal/snapshot"
	"github.com/aolus-software/rbac-api/internal/transport"
	"github.com/aolus-software/rbac-api/pkg/logger"
)

// RBACAuthorization enforces role and permission predicates against the
// snapshot bound by Authenticator. Superusers pass every check.
type RBACAuthorization struct {
	*transport.BaseHandler
}

func NewRBACAuthorization(base *transport.BaseHandler) *RBACAuthorization {
	return &RBACAuthorization{BaseHandler: base}
}

// Require passes when the caller satisfies both the role list and the
// permission list. An empty list imposes no constraint.
func (ra *RBACAuthorization) Require(roles, permissions []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := ra.check(r, roles, permissions); err != nil {
				ra.WriteAppError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (ra *RBACAuthorization) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return ra.Require(roles, nil)
}

func (ra *RBACAuthorization) RequirePermissions(permissions ...string) func(http.Handler) http.Handler {
	return ra.Require(nil, permissions)
}

func (ra *RBACAuthorization) RequireSuperuser() func(http.Handler) http.Handler {
	return ra.Require([]string{rbac.SuperuserRole}, nil)
}

func (ra *RBACAuthorization) check(r *http.Request, roles, permissions []string) error {
	ctx := r.Context()
	snap, ok := snapshot.FromContext(ctx)
	if !ok {
		logger.FromOr(ctx, ra.Logger).ErrorContext(ctx, "authorization check without resolved identity", "path", r.URL.Path)
		return internal.NewForbiddenError("User information not found. Authentication is required before authorization.", internal.ErrCodeIdentityMissing)
	}

	if snap.IsSuperuser() {
		return nil
	}

	if len(roles) > 0 && !snap.HasAnyRole(roles) {
		logger.FromOr(ctx, ra.Logger).WarnContext(ctx, "access denied: missing role",
			"user_id", snap.ID,
			"required_roles", roles,
			"user_roles", snap.Roles)
		return internal.NewForbiddenError("Access denied. Required roles: "+strings.Join(roles, ", "), internal.ErrCodeRoleDenied)
	}

	if len(permissions) > 0 && !snap.HasAnyPermission(permissions) {
		logger.FromOr(ctx, ra.Logger).WarnContext(ctx, "access denied: missing permission",
			"user_id", snap.ID,
			"required_permissions", permissions)
		return internal.NewForbiddenError("Access denied. Required permissions: "+strings.Join(permissions, ", "), internal.ErrCodePermissionDenied)
	}

	return nil
}
