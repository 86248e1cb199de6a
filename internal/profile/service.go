package profile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aolus-software/rbac-api/internal"
	userDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/user"
	"github.com/aolus-software/rbac-api/internal/snapshot"
)

const (
	msgEmailInUse      = "Email is already in use"
	msgWrongPassword   = "Current password is incorrect"
	msgAccountNotFound = "User not found or inactive"
)

type Service struct {
	repo      RepositoryAPI
	hasher    PasswordHasherAPI
	snapshots SnapshotBuilderAPI
	cache     snapshot.Cache
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, hasher PasswordHasherAPI, snapshots SnapshotBuilderAPI, cache snapshot.Cache, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		hasher:    hasher,
		snapshots: snapshots,
		cache:     cache,
		logger:    logger,
	}
}

// Update changes name, email and remark, then returns the rebuilt snapshot.
// The cache entry is dropped before the rebuild and refilled after it.
func (s *Service) Update(ctx context.Context, userID string, dto UpdateDTO) (*snapshot.Snapshot, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	u, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}

	taken, err := s.repo.EmailTaken(ctx, dto.Email, u.ID)
	if err != nil {
		return nil, internal.NewInternalError("Failed to check email", err)
	}
	if taken {
		return nil, internal.NewUnprocessableError("Profile update failed", internal.ErrCodeEmailTaken, "email", msgEmailInUse)
	}

	remark := u.Remark
	if dto.Remarks != nil {
		remark = dto.Remarks
	}
	if err := s.repo.UpdateProfile(ctx, u.ID, dto.Name, dto.Email, remark); err != nil {
		return nil, internal.NewInternalError("Failed to update profile", err)
	}

	s.invalidate(ctx, u.ID)

	gen := s.cache.Generation(u.ID)
	snap, err := s.snapshots.Build(ctx, u.ID, snapshot.Options{ActiveOnly: true})
	if err != nil {
		if errors.Is(err, snapshot.ErrUserNotFound) {
			return nil, internal.NewUnauthorizedError(msgAccountNotFound, internal.ErrCodeUserNotFound)
		}
		return nil, internal.NewInternalError("Failed to build user snapshot", err)
	}
	if _, err := s.cache.Fill(ctx, snap, gen); err != nil {
		s.logger.WarnContext(ctx, "snapshot cache write failed", "user_id", u.ID, "error", err)
	}

	s.logger.InfoContext(ctx, "profile updated", "user_id", u.ID)
	return snap, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID string, dto ChangePasswordDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}
	u, err := s.find(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Compare(u.Password, dto.CurrentPassword)
	if err != nil {
		return internal.NewInternalError("Failed to verify password", err)
	}
	if !ok {
		return internal.NewUnprocessableError("Password change failed", internal.ErrCodeWrongPassword, "current_password", msgWrongPassword)
	}

	hash, err := s.hasher.Hash(dto.NewPassword)
	if err != nil {
		return internal.NewInternalError("Failed to hash password", err)
	}
	if err := s.repo.UpdatePassword(ctx, u.ID, hash); err != nil {
		return internal.NewInternalError("Failed to update password", err)
	}

	s.logger.InfoContext(ctx, "password changed", "user_id", u.ID)
	s.invalidate(ctx, u.ID)
	return nil
}

func (s *Service) find(ctx context.Context, userID string) (*userDatamodel.User, error) {
	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, internal.NewInternalError("Failed to load user", err)
	}
	if u == nil {
		return nil, internal.NewUnauthorizedError(msgAccountNotFound, internal.ErrCodeUserNotFound)
	}
	return u, nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "snapshot cache invalidation failed", "user_id", userID, "error", err)
	}
}
