package permission

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aolus-software/rbac-api/internal"
	rbacDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/rbac"
	"github.com/aolus-software/rbac-api/internal/datatable"
	"github.com/aolus-software/rbac-api/internal/snapshot"
)

const (
	msgNotFound   = "Permission not found"
	msgNameExists = "Permission name already exists"
)

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

func (s *Service) List(ctx context.Context, q datatable.Query) (*datatable.Page[Permission], error) {
	rows, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, internal.NewInternalError("Failed to list permissions", err)
	}

	data := make([]Permission, len(rows))
	for i := range rows {
		data[i] = FromDataModel(&rows[i])
	}
	return datatable.NewPage(data, q, total), nil
}

// Create inserts every expanded name in one batch, or none of them if any
// already exists.
func (s *Service) Create(ctx context.Context, dto CreateDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	names := dto.Expanded()
	existing, err := s.repo.ExistingNames(ctx, names)
	if err != nil {
		return internal.NewInternalError("Failed to check permissions", err)
	}
	if len(existing) > 0 {
		return internal.NewUnprocessableError("Some permission already exists", internal.ErrCodePermissionExists,
			"name", "Some permission already exists: "+strings.Join(existing, ", "))
	}

	batch := make([]*rbacDatamodel.Permission, len(names))
	for i, name := range names {
		batch[i] = &rbacDatamodel.Permission{Name: name, Group: dto.Group}
	}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return internal.NewInternalError("Failed to create permissions", err)
	}

	s.logger.InfoContext(ctx, "permissions created", "group", dto.Group, "count", len(batch))
	return nil
}

func (s *Service) Detail(ctx context.Context, id string) (*Permission, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	out := FromDataModel(p)
	return &out, nil
}

func (s *Service) Update(ctx context.Context, id string, dto UpdateDTO) error {
	p, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := dto.Validate(); err != nil {
		return err
	}

	taken, err := s.repo.NameTakenByOther(ctx, dto.Name, id)
	if err != nil {
		return internal.NewInternalError("Failed to check permission name", err)
	}
	if taken {
		return internal.NewUnprocessableError(msgNameExists, internal.ErrCodePermissionExists, "name", msgNameExists)
	}

	holders, err := s.repo.HolderIDs(ctx, id)
	if err != nil {
		return internal.NewInternalError("Failed to load permission holders", err)
	}

	p.Name = dto.Name
	p.Group = dto.Group
	if err := s.repo.Update(ctx, p); err != nil {
		return internal.NewInternalError("Failed to update permission", err)
	}

	s.invalidate(ctx, holders)
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}

	holders, err := s.repo.HolderIDs(ctx, id)
	if err != nil {
		return internal.NewInternalError("Failed to load permission holders", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return internal.NewInternalError("Failed to delete permission", err)
	}

	s.logger.InfoContext(ctx, "permission deleted", "permission_id", id)
	s.invalidate(ctx, holders)
	return nil
}

func (s *Service) find(ctx context.Context, id string) (*rbacDatamodel.Permission, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("Failed to load permission", err)
	}
	if p == nil {
		return nil, internal.NewNotFoundError(msgNotFound, internal.ErrCodePermissionNotFound)
	}
	return p, nil
}

func (s *Service) invalidate(ctx context.Context, userIDs []string) {
	if len(userIDs) == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		s.logger.WarnContext(ctx, "snapshot cache invalidation failed", "users", len(userIDs), "error", err)
	}
}
