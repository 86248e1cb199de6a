package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aolus-software/rbac-api/internal"
	userDatamodel "github.com/aolus-software/rbac-api/internal/core/datamodel/user"
	"github.com/aolus-software/rbac-api/internal/core/events"
	"github.com/aolus-software/rbac-api/internal/snapshot"
)

const (
	msgNoAccount          = "No account found with this email address"
	msgVerifyFirst        = "Please verify your email before logging in"
	msgAccountInactive    = "Your account is not active. Please contact support."
	msgBadCredentials     = "The credentials you provided are incorrect"
	msgEmailTaken         = "A user with this email already exists"
	msgAlreadyVerified    = "Email is already verified"
	msgInvalidVerifyToken = "The provided verification token is invalid"
	msgInvalidResetToken  = "The provided reset password token is invalid"
)

// Service is the main auth service with dependencies
type Service struct {
	repo      RepositoryAPI
	tokens    TokenGeneratorAPI
	hasher    PasswordHasherAPI
	snapshots SnapshotBuilderAPI
	cache     snapshot.Cache
	publisher PublisherAPI
	ttls      TokenTTLs
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(
	repo RepositoryAPI,
	tokens TokenGeneratorAPI,
	hasher PasswordHasherAPI,
	snapshots SnapshotBuilderAPI,
	cache snapshot.Cache,
	publisher PublisherAPI,
	ttls TokenTTLs,
	logger *slog.Logger,
) *Service {
	if ttls.Verification <= 0 {
		ttls.Verification = 24 * time.Hour
	}
	if ttls.Reset <= 0 {
		ttls.Reset = time.Hour
	}
	return &Service{
		repo:      repo,
		tokens:    tokens,
		hasher:    hasher,
		snapshots: snapshots,
		cache:     cache,
		publisher: publisher,
		ttls:      ttls,
		logger:    logger,
		now:       time.Now,
	}
}

// Login checks account state in a fixed order: existence, verification,
// status, then password.
func (s *Service) Login(ctx context.Context, dto LoginDTO) (*LoginResult, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	u, err := s.repo.FindUserByEmail(ctx, dto.Email)
	if err != nil {
		return nil, internal.NewInternalError("Failed to load user", err)
	}
	if u == nil {
		return nil, internal.NewUnprocessableError("Login failed", internal.ErrCodeUserNotFound, "email", msgNoAccount)
	}
	if !u.IsVerified() {
		return nil, internal.NewUnprocessableError("Login failed", internal.ErrCodeEmailNotVerified, "email", msgVerifyFirst)
	}
	if !u.IsActive() {
		return nil, internal.NewUnprocessableError("Login failed", internal.ErrCodeUserInactive, "email", msgAccountInactive)
	}

	ok, err := s.hasher.Compare(u.Password, dto.Password)
	if err != nil {
		return nil, internal.NewInternalError("Failed to verify credentials", err)
	}
	if !ok {
		return nil, internal.NewUnprocessableError("Login failed", internal.ErrCodeInvalidCredentials, "password", msgBadCredentials)
	}

	snap, err := s.loadSnapshot(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.GenerateToken(u.ID)
	if err != nil {
		return nil, internal.NewInternalError("Failed to issue token", err)
	}

	return &LoginResult{User: snap, Token: token}, nil
}

func (s *Service) loadSnapshot(ctx context.Context, userID string) (*snapshot.Snapshot, error) {
	if cached, err := s.cache.Get(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "snapshot cache read failed", "user_id", userID, "error", err)
	} else if cached != nil {
		return cached, nil
	}

	gen := s.cache.Generation(userID)
	snap, err := s.snapshots.Build(ctx, userID, snapshot.Options{ActiveOnly: true})
	if err != nil {
		if errors.Is(err, snapshot.ErrUserNotFound) {
			return nil, internal.NewUnprocessableError("Login failed", internal.ErrCodeUserNotFound, "email", msgNoAccount)
		}
		return nil, internal.NewInternalError("Failed to build user snapshot", err)
	}

	if _, err := s.cache.Fill(ctx, snap, gen); err != nil {
		s.logger.WarnContext(ctx, "snapshot cache write failed", "user_id", userID, "error", err)
	}
	return snap, nil
}

func (s *Service) Register(ctx context.Context, dto RegisterDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	existing, err := s.repo.FindUserByEmail(ctx, dto.Email)
	if err != nil {
		return internal.NewInternalError("Failed to check email", err)
	}
	if existing != nil {
		return internal.NewUnprocessableError("Registration failed", internal.ErrCodeEmailTaken, "email", msgEmailTaken)
	}

	hash, err := s.hasher.Hash(dto.Password)
	if err != nil {
		return internal.NewInternalError("Failed to hash password", err)
	}

	token, err := GenerateRandomToken()
	if err != nil {
		return internal.NewInternalError("Failed to generate token", err)
	}

	u := &userDatamodel.User{
		Name:     dto.Name,
		Email:    dto.Email,
		Password: hash,
		Status:   userDatamodel.StatusActive,
	}
	v := &userDatamodel.EmailVerification{
		Token:     token,
		ExpiredAt: s.now().Add(s.ttls.Verification),
	}

	if err := s.repo.CreateUserWithVerification(ctx, u, v); err != nil {
		return internal.NewInternalError("Failed to register user", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", u.ID)
	s.publish(ctx, events.NewEmailVerificationRequestedEvent(u.ID, u.Name, u.Email, token))
	return nil
}

// ResendVerification is silent for unknown emails.
func (s *Service) ResendVerification(ctx context.Context, dto EmailDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	u, err := s.repo.FindUserByEmail(ctx, dto.Email)
	if err != nil {
		return internal.NewInternalError("Failed to load user", err)
	}
	if u == nil {
		return nil
	}
	if u.IsVerified() {
		return internal.NewUnprocessableError("Verification failed", internal.ErrCodeAlreadyVerified, "email", msgAlreadyVerified)
	}

	token, err := GenerateRandomToken()
	if err != nil {
		return internal.NewInternalError("Failed to generate token", err)
	}

	v := &userDatamodel.EmailVerification{
		UserID:    u.ID,
		Token:     token,
		ExpiredAt: s.now().Add(s.ttls.Verification),
	}
	if err := s.repo.ReplaceEmailVerification(ctx, v); err != nil {
		return internal.NewInternalError("Failed to store verification token", err)
	}

	s.publish(ctx, events.NewEmailVerificationRequestedEvent(u.ID, u.Name, u.Email, token))
	return nil
}

func (s *Service) VerifyEmail(ctx context.Context, dto TokenDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	v, err := s.repo.FindEmailVerification(ctx, dto.Token)
	if err != nil {
		return internal.NewInternalError("Failed to load verification token", err)
	}
	if v == nil {
		return internal.NewUnprocessableError("Verification failed", internal.ErrCodeInvalidToken, "token", msgInvalidVerifyToken)
	}
	if v.Expired(s.now()) {
		return internal.NewUnprocessableError("Verification failed", internal.ErrCodeTokenExpired, "token", msgInvalidVerifyToken)
	}

	u, err := s.repo.FindUserByID(ctx, v.UserID)
	if err != nil {
		return internal.NewInternalError("Failed to load user", err)
	}
	if u == nil {
		return internal.NewUnprocessableError("Verification failed", internal.ErrCodeInvalidToken, "token", msgInvalidVerifyToken)
	}

	if err := s.repo.MarkEmailVerified(ctx, u.ID, s.now()); err != nil {
		return internal.NewInternalError("Failed to verify email", err)
	}

	s.logger.InfoContext(ctx, "email verified", "user_id", u.ID)
	return nil
}

// ForgotPassword never reveals whether the email is registered.
func (s *Service) ForgotPassword(ctx context.Context, dto EmailDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	u, err := s.repo.FindUserByEmail(ctx, dto.Email)
	if err != nil {
		return internal.NewInternalError("Failed to load user", err)
	}
	if u == nil {
		return nil
	}

	token, err := GenerateRandomToken()
	if err != nil {
		return internal.NewInternalError("Failed to generate token", err)
	}

	t := &userDatamodel.PasswordResetToken{
		UserID:    u.ID,
		Token:     token,
		ExpiredAt: s.now().Add(s.ttls.Reset),
	}
	if err := s.repo.ReplacePasswordReset(ctx, t); err != nil {
		return internal.NewInternalError("Failed to store reset token", err)
	}

	s.publish(ctx, events.NewPasswordResetRequestedEvent(u.ID, u.Name, u.Email, token))
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, dto ResetPasswordDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}

	t, err := s.repo.FindPasswordReset(ctx, dto.Token)
	if err != nil {
		return internal.NewInternalError("Failed to load reset token", err)
	}
	if t == nil {
		return internal.NewUnprocessableError("Password reset failed", internal.ErrCodeInvalidToken, "token", msgInvalidResetToken)
	}
	if t.Expired(s.now()) {
		return internal.NewUnprocessableError("Password reset failed", internal.ErrCodeTokenExpired, "token", msgInvalidResetToken)
	}

	u, err := s.repo.FindUserByID(ctx, t.UserID)
	if err != nil {
		return internal.NewInternalError("Failed to load user", err)
	}
	if u == nil {
		return internal.NewUnprocessableError("Password reset failed", internal.ErrCodeInvalidToken, "token", msgInvalidResetToken)
	}

	hash, err := s.hasher.Hash(dto.Password)
	if err != nil {
		return internal.NewInternalError("Failed to hash password", err)
	}

	if err := s.repo.ResetPassword(ctx, u.ID, hash); err != nil {
		return internal.NewInternalError("Failed to reset password", err)
	}

	if err := s.cache.Invalidate(ctx, u.ID); err != nil {
		s.logger.WarnContext(ctx, "snapshot cache invalidation failed", "user_id", u.ID, "error", err)
	}

	s.logger.InfoContext(ctx, "password reset", "user_id", u.ID)
	return nil
}

// PurgeExpiredTokens removes verification and reset tokens past their expiry.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, int64, error) {
	return s.repo.DeleteExpiredTokens(ctx, s.now())
}

// publish runs after the rows are committed; a failed enqueue leaves the token
// in place so the user can request another email.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to enqueue notification",
			"event_type", event.EventType(),
			"event_id", event.EventID(),
			"error", err)
	}
}
