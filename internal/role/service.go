package role

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aolus-software/rbac-api/internal"
	rbacDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	"github.com/aolus-software/rbac-api/internal/datatable"
	"github.com/aolus-software/rbac-api/internal/snapshot"
)

const msgNotFound = "Role not found"

type Service struct {
	repo   RepositoryAPI
	cache  snapshot.Cache
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, cache snapshot.Cache, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

func (s *Service) List(ctx context.Context, q datatable.Query) (*datatable.Page[Role], error) {
	rows, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, internal.NewInternalError("Failed to list roles", err)
	}

	data := make([]Role, len(rows))
	for i := range rows {
		data[i] = FromDataModel(&rows[i])
	}
	return datatable.NewPage(data, q, total), nil
}

func (s *Service) Create(ctx context.Context, dto SaveDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}
	if err := s.checkSave(ctx, "", dto); err != nil {
		return err
	}

	r := &rbacDatamodel.Role{Name: dto.Name}
	if err := s.repo.Create(ctx, r, dto.PermissionIDs); err != nil {
		return internal.NewInternalError("Failed to create role", err)
	}

	s.logger.InfoContext(ctx, "role created", "role_id", r.ID, "permissions", len(dto.PermissionIDs))
	return nil
}

func (s *Service) Detail(ctx context.Context, id string) (*Detail, error) {
	r, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	assignedIDs, err := s.repo.AssignedPermissionIDs(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("Failed to load role permissions", err)
	}
	all, err := s.repo.AllPermissions(ctx)
	if err != nil {
		return nil, internal.NewInternalError("Failed to load permissions", err)
	}

	assigned := make(map[string]struct{}, len(assignedIDs))
	for _, pid := range assignedIDs {
		assigned[pid] = struct{}{}
	}

	return &Detail{
		Role:        FromDataModel(r),
		Permissions: GroupPermissions(all, assigned),
	}, nil
}

// Update renames the role and replaces its permission set. Every holder's
// cached snapshot is dropped.
func (s *Service) Update(ctx context.Context, id string, dto SaveDTO) error {
	r, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := dto.Validate(); err != nil {
		return err
	}
	if err := s.checkSave(ctx, id, dto); err != nil {
		return err
	}

	r.Name = dto.Name
	if err := s.repo.Update(ctx, r, dto.PermissionIDs); err != nil {
		return internal.NewInternalError("Failed to update role", err)
	}

	s.invalidateHolders(ctx, id)
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}

	holders, err := s.repo.HolderIDs(ctx, id)
	if err != nil {
		return internal.NewInternalError("Failed to load role holders", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return internal.NewInternalError("Failed to delete role", err)
	}

	s.logger.InfoContext(ctx, "role deleted", "role_id", id, "holders", len(holders))
	s.invalidate(ctx, holders)
	return nil
}

func (s *Service) checkSave(ctx context.Context, excludeID string, dto SaveDTO) error {
	taken, err := s.repo.NameTaken(ctx, dto.Name, excludeID)
	if err != nil {
		return internal.NewInternalError("Failed to check role name", err)
	}
	if taken {
		return internal.NewUnprocessableError("Role name already exists", internal.ErrCodeRoleNameTaken,
			"name", fmt.Sprintf("The role name for %s already exists", dto.Name))
	}

	missing, err := s.repo.MissingPermissions(ctx, dto.PermissionIDs)
	if err != nil {
		return internal.NewInternalError("Failed to check permissions", err)
	}
	if len(missing) > 0 {
		return internal.NewUnprocessableError("Unknown permissions", internal.ErrCodePermissionNotFound,
			"permission_ids", "Permissions not found: "+strings.Join(missing, ", "))
	}
	return nil
}

func (s *Service) find(ctx context.Context, id string) (*rbacDatamodel.Role, error) {
	r, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("Failed to load role", err)
	}
	if r == nil {
		return nil, internal.NewNotFoundError(msgNotFound, internal.ErrCodeRoleNotFound)
	}
	return r, nil
}

func (s *Service) invalidateHolders(ctx context.Context, roleID string) {
	holders, err := s.repo.HolderIDs(ctx, roleID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load role holders for invalidation", "role_id", roleID, "error", err)
		return
	}
	s.invalidate(ctx, holders)
}

func (s *Service) invalidate(ctx context.Context, userIDs []string) {
	if len(userIDs) == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		s.logger.WarnContext(ctx, "snapshot cache invalidation failed", "users", len(userIDs), "error", err)
	}
}
