// Package snapshot builds the denormalized authorization view of a user:
// identity, role names and the permission names each role grants.
package snapshot

import (
	"context"

	"github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
)

type RolePermissions struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

type Snapshot struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Email       string            `json:"email"`
	Roles       []string          `json:"roles"`
	Permissions []RolePermissions `json:"permissions"`
}

func (s *Snapshot) IsSuperuser() bool {
	return s.HasRole(rbac.SuperuserRole)
}

func (s *Snapshot) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (s *Snapshot) HasAnyRole(roles []string) bool {
	for _, role := range roles {
		if s.HasRole(role) {
			return true
		}
	}
	return false
}

// PermissionSet is the union of every role's permissions.
func (s *Snapshot) PermissionSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, rp := range s.Permissions {
		for _, p := range rp.Permissions {
			set[p] = struct{}{}
		}
	}
	return set
}

func (s *Snapshot) HasAnyPermission(permissions []string) bool {
	set := s.PermissionSet()
	for _, p := range permissions {
		if _, ok := set[p]; ok {
			return true
		}
	}
	return false
}

// Cache stores snapshots per user. Get returns nil, nil on a miss.
//
// Generation changes whenever a user's entry is invalidated. A rebuild reads
// it before loading from the database and stores the result with Fill, which
// drops the write when an invalidation landed in between.
type Cache interface {
	Get(ctx context.Context, userID string) (*Snapshot, error)
	Set(ctx context.Context, s *Snapshot) error
	Generation(userID string) uint64
	Fill(ctx context.Context, s *Snapshot, generation uint64) (bool, error)
	Invalidate(ctx context.Context, userIDs ...string) error
}

type ctxKey struct{}

func WithContext(ctx context.Context, s *Snapshot) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (*Snapshot, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Snapshot)
	return s, ok && s != nil
}
