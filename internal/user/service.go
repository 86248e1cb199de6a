package user

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aolus-software/rbac-api/internal"
	userDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/user"
	"github.com/aolus-software/rbac-api/internal/datatable"
	"github.com/aolus-software/rbac-api/internal/snapshot"
)

const (
	msgNotFound    = "User not found"
	msgEmailExists = "Email already exists"
)

type Service struct {
	repo   RepositoryAPI
	hasher PasswordHasherAPI
	cache  snapshot.Cache
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, hasher PasswordHasherAPI, cache snapshot.Cache, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		cache:  cache,
		logger: logger,
	}
}

func (s *Service) List(ctx context.Context, q datatable.Query) (*datatable.Page[ListItem], error) {
	if err := ValidateListQuery(q); err != nil {
		return nil, err
	}

	rows, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, internal.NewInternalError("Failed to list users", err)
	}

	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	roleNames, err := s.repo.RoleNames(ctx, ids)
	if err != nil {
		return nil, internal.NewInternalError("Failed to load user roles", err)
	}

	data := make([]ListItem, len(rows))
	for i := range rows {
		data[i] = NewListItem(&rows[i], roleNames[rows[i].ID])
	}
	return datatable.NewPage(data, q, total), nil
}

// Create stores an admin-provisioned user. The account starts unverified.
func (s *Service) Create(ctx context.Context, dto CreateDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}
	if err := s.checkSave(ctx, "", dto.Email, dto.RoleIDs); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(dto.Password)
	if err != nil {
		return internal.NewInternalError("Failed to hash password", err)
	}

	u := &userDatamodel.User{
		Name:     dto.Name,
		Email:    dto.Email,
		Password: hash,
		Status:   userDatamodel.Status(dto.Status),
		Remark:   dto.Remark,
	}
	if u.Status == "" {
		u.Status = userDatamodel.StatusActive
	}

	if err := s.repo.Create(ctx, u, dto.RoleIDs); err != nil {
		return internal.NewInternalError("Failed to create user", err)
	}

	s.logger.InfoContext(ctx, "user created", "user_id", u.ID, "roles", len(dto.RoleIDs))
	return nil
}

func (s *Service) Detail(ctx context.Context, id string) (*Detail, error) {
	u, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	roles, err := s.repo.Roles(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("Failed to load user roles", err)
	}
	return NewDetail(u, roles), nil
}

func (s *Service) Update(ctx context.Context, id string, dto UpdateDTO) error {
	u, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := dto.Validate(); err != nil {
		return err
	}
	if err := s.checkSave(ctx, id, dto.Email, dto.RoleIDs); err != nil {
		return err
	}

	u.Name = dto.Name
	u.Email = dto.Email
	if dto.Status != "" {
		u.Status = userDatamodel.Status(dto.Status)
	}
	if dto.Remark != nil {
		u.Remark = dto.Remark
	}

	if err := s.repo.Update(ctx, u, dto.RoleIDs); err != nil {
		return internal.NewInternalError("Failed to update user", err)
	}

	s.logger.InfoContext(ctx, "user updated", "user_id", id, "status", u.Status, "roles", len(dto.RoleIDs))
	s.invalidate(ctx, id)
	return nil
}

// Delete soft deletes the user. Role assignments are kept; every read path
// filters on deleted_at.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return internal.NewInternalError("Failed to delete user", err)
	}

	s.logger.InfoContext(ctx, "user deleted", "user_id", id)
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) checkSave(ctx context.Context, excludeID, email string, roleIDs []string) error {
	taken, err := s.repo.EmailTaken(ctx, email, excludeID)
	if err != nil {
		return internal.NewInternalError("Failed to check email", err)
	}
	if taken {
		return internal.NewUnprocessableError(msgEmailExists, internal.ErrCodeEmailTaken, "email", msgEmailExists)
	}

	missing, err := s.repo.MissingRoles(ctx, roleIDs)
	if err != nil {
		return internal.NewInternalError("Failed to check roles", err)
	}
	if len(missing) > 0 {
		return internal.NewUnprocessableError("Unknown roles", internal.ErrCodeRoleNotFound,
			"role_ids", "Roles not found: "+strings.Join(missing, ", "))
	}
	return nil
}

func (s *Service) find(ctx context.Context, id string) (*userDatamodel.User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("Failed to load user", err)
	}
	if u == nil {
		return nil, internal.NewNotFoundError(msgNotFound, internal.ErrCodeUserNotFound)
	}
	return u, nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "snapshot cache invalidation failed", "user_id", userID, "error", err)
	}
}
