package postgres

import (
	"context"
	"errors"
	"strings"

	userDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/user"
	"github.com/aolus-software/rbac-api/internal/profile"
	"gorm.io/gorm"
)

type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) profile.RepositoryAPI {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *ProfileRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&userDatamodel.User{}).
		Where("LOWER(email) = ? AND id <> ?", strings.ToLower(email), excludeID).
		Count(&count).Error
	return count > 0, err
}

func (r *ProfileRepository) UpdateProfile(ctx context.Context, id, name, email string, remark *string) error {
	return r.db.WithContext(ctx).
		Model(&userDatamodel.User{ID: id}).
		Updates(map[string]interface{}{"name": name, "email": email, "remark": remark}).Error
}

func (r *ProfileRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.db.WithContext(ctx).
		Model(&userDatamodel.User{ID: id}).
		Update("password", passwordHash).Error
}
