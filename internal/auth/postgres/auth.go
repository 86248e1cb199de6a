package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aolus-software/rbac-api/internal/auth"
	userDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/user"
	"gorm.io/gorm"
)

type AuthRepository struct {
	db *gorm.DB
}

func NewAuthRepository(db *gorm.DB) auth.RepositoryAPI {
	return &AuthRepository{db: db}
}

func (r *AuthRepository) FindUserByEmail(ctx context.Context, email string) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *AuthRepository) FindUserByID(ctx context.Context, id string) (*userDatamodel.User, error) {
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

// CreateUserWithVerification inserts the user and its first verification
// token atomically.
func (r *AuthRepository) CreateUserWithVerification(ctx context.Context, u *userDatamodel.User, v *userDatamodel.EmailVerification) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			return err
		}
		v.UserID = u.ID
		return tx.Create(v).Error
	})
}

// ReplaceEmailVerification leaves only the newest verification token for the user.
func (r *AuthRepository) ReplaceEmailVerification(ctx context.Context, v *userDatamodel.EmailVerification) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", v.UserID).Delete(&userDatamodel.EmailVerification{}).Error; err != nil {
			return err
		}
		return tx.Create(v).Error
	})
}

func (r *AuthRepository) FindEmailVerification(ctx context.Context, token string) (*userDatamodel.EmailVerification, error) {
	var v userDatamodel.EmailVerification
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// MarkEmailVerified stamps email_verified_at once and consumes every
// verification token of the user.
func (r *AuthRepository) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&userDatamodel.User{}).
			Where("id = ? AND email_verified_at IS NULL", userID).
			Update("email_verified_at", at).Error
		if err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&userDatamodel.EmailVerification{}).Error
	})
}

func (r *AuthRepository) ReplacePasswordReset(ctx context.Context, t *userDatamodel.PasswordResetToken) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", t.UserID).Delete(&userDatamodel.PasswordResetToken{}).Error; err != nil {
			return err
		}
		return tx.Create(t).Error
	})
}

func (r *AuthRepository) FindPasswordReset(ctx context.Context, token string) (*userDatamodel.PasswordResetToken, error) {
	var t userDatamodel.PasswordResetToken
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *AuthRepository) ResetPassword(ctx context.Context, userID, passwordHash string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&userDatamodel.User{}).
			Where("id = ?", userID).
			Update("password", passwordHash).Error
		if err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&userDatamodel.PasswordResetToken{}).Error
	})
}

func (r *AuthRepository) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, int64, error) {
	var verifications, resets int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("expired_at <= ?", now).Delete(&userDatamodel.EmailVerification{})
		if res.Error != nil {
			return res.Error
		}
		verifications = res.RowsAffected

		res = tx.Where("expired_at <= ?", now).Delete(&userDatamodel.PasswordResetToken{})
		if res.Error != nil {
			return res.Error
		}
		resets = res.RowsAffected
		return nil
	})
	return verifications, resets, err
}
