package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnshRaj112/expense-tracker-backend/internal/database"
	"github.com/AnshRaj112/expense-tracker-backend/internal/metrics"
	"github.com/AnshRaj112/expense-tracker-backend/internal/models"
	"github.com/AnshRaj112/expense-tracker-backend/internal/validation"
	"github.com/AnshRaj112/expense-tracker-backend/pkg/utils"
)

// UserRepository is the credential store used by AuthService.
type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, p models.ProfileUpdate, now time.Time) (*models.User, error)
	RecordFailedLogin(ctx context.Context, id uuid.UUID, threshold int, lockUntil, now time.Time) (int, bool, error)
	RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, now time.Time) error
	ExpireLock(ctx context.Context, id uuid.UUID, now time.Time) error
	Unlock(ctx context.Context, id uuid.UUID, now time.Time) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// LockoutPolicy controls when repeated failed logins lock an account.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// AuthResult is returned by a successful Authenticate.
type AuthResult struct {
	Token     string
	ExpiresIn int64
	User      models.UserProfile
}

// AuthService owns registration, login with lockout bookkeeping and profile
// access.
type AuthService struct {
	users  UserRepository
	hasher PasswordHasher
	tokens *TokenService
	audit  AuditLog
	policy LockoutPolicy
	log    *zap.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(users UserRepository, hasher PasswordHasher, tokens *TokenService, audit AuditLog, policy LockoutPolicy, log *zap.Logger) *AuthService {
	if audit == nil {
		audit = NopAuditLog{}
	}
	if policy.Threshold <= 0 {
		policy.Threshold = 5
	}
	if policy.Duration <= 0 {
		policy.Duration = 15 * time.Minute
	}
	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		audit:  audit,
		policy: policy,
		log:    log.Named("auth"),
		now:    time.Now,
	}
}

// SetClock replaces the time source used for lockout decisions.
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

// RegisterUser creates an enabled, unverified, unlocked account. req must
// already have passed request validation.
func (s *AuthService) RegisterUser(ctx context.Context, req models.RegisterRequest) (models.UserProfile, error) {
	consent := validation.Errors{}
	if !req.TermsAccepted {
		consent["termsAccepted"] = "must be accepted"
	}
	if !req.PrivacyPolicyAccepted {
		consent["privacyPolicyAccepted"] = "must be accepted"
	}
	if len(consent) > 0 {
		return models.UserProfile{}, consent
	}

	email := utils.NormalizeEmail(req.Email)
	username := utils.NormalizeUsername(req.Username)

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		metrics.RegistrationsTotal.WithLabelValues("duplicate").Inc()
		return models.UserProfile{}, ErrDuplicateEmail
	}

	exists, err = s.users.ExistsByUsername(ctx, username)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("check username: %w", err)
	}
	if exists {
		metrics.RegistrationsTotal.WithLabelValues("duplicate").Inc()
		return models.UserProfile{}, ErrDuplicateUsername
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:                      uuid.New(),
		Email:                   email,
		Username:                username,
		PasswordHash:            hash,
		FirstName:               req.FirstName,
		LastName:                req.LastName,
		Enabled:                 true,
		TermsAcceptedAt:         &now,
		PrivacyPolicyAcceptedAt: &now,
		PasswordChangedAt:       &now,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration.
		var uv *database.UniqueViolation
		if errors.As(err, &uv) {
			metrics.RegistrationsTotal.WithLabelValues("duplicate").Inc()
			if uv.Field == "username" {
				return models.UserProfile{}, ErrDuplicateUsername
			}
			return models.UserProfile{}, ErrDuplicateEmail
		}
		return models.UserProfile{}, fmt.Errorf("create user: %w", err)
	}

	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	s.record(ctx, models.AuthEventRegistered, user.ID.String(), email, 0)
	s.log.Info("user registered", zap.String("user_id", user.ID.String()))

	return user.Profile(), nil
}

// Authenticate checks credentials and issues a token. Every failure other
// than infrastructure errors is ErrInvalidCredentials (or ErrAccountLocked,
// which matches it), whether the email is unknown, the account is disabled
// or locked, or the password is wrong.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	email = utils.NormalizeEmail(email)
	now := s.now().UTC()

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.burnHash(password)
			metrics.LoginAttemptsTotal.WithLabelValues("invalid").Inc()
			s.record(ctx, models.AuthEventLoginFailed, "", email, 0)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !user.Enabled {
		metrics.LoginAttemptsTotal.WithLabelValues("disabled").Inc()
		s.record(ctx, models.AuthEventLoginDisabled, user.ID.String(), email, user.FailedLoginAttempts)
		return nil, ErrInvalidCredentials
	}

	if user.LockActive(now) {
		return nil, s.rejectLocked(ctx, user, email)
	}

	if user.LockExpired(now) {
		if err := s.users.ExpireLock(ctx, user.ID, now); err != nil {
			return nil, fmt.Errorf("expire lock: %w", err)
		}
		user.Locked = false
		user.LockedUntil = nil
		user.FailedLoginAttempts = 0
		s.record(ctx, models.AuthEventAccountUnlocked, user.ID.String(), email, 0)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.log.Error("stored password hash is unreadable", zap.String("user_id", user.ID.String()), zap.Error(err))
		ok = false
	}

	if !ok {
		attempts, locked, err := s.users.RecordFailedLogin(ctx, user.ID, s.policy.Threshold, now.Add(s.policy.Duration), now)
		if errors.Is(err, database.ErrLocked) {
			return nil, s.rejectLocked(ctx, user, email)
		}
		if err != nil {
			return nil, fmt.Errorf("record failed login: %w", err)
		}
		if locked {
			metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
			metrics.AccountLocksTotal.Inc()
			s.record(ctx, models.AuthEventAccountLocked, user.ID.String(), email, attempts)
			s.log.Warn("account locked after repeated failed logins",
				zap.String("user_id", user.ID.String()),
				zap.Int("attempts", attempts),
			)
			return nil, ErrAccountLocked
		}
		metrics.LoginAttemptsTotal.WithLabelValues("invalid").Inc()
		s.record(ctx, models.AuthEventLoginFailed, user.ID.String(), email, attempts)
		return nil, ErrInvalidCredentials
	}

	if err := s.users.RecordSuccessfulLogin(ctx, user.ID, now); err != nil {
		if errors.Is(err, database.ErrLocked) {
			return nil, s.rejectLocked(ctx, user, email)
		}
		return nil, fmt.Errorf("record login: %w", err)
	}
	user.FailedLoginAttempts = 0
	user.LastLoginAt = &now

	token, err := s.tokens.GenerateToken(user.Email)
	if err != nil {
		return nil, err
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.record(ctx, models.AuthEventLoginSucceeded, user.ID.String(), email, 0)

	return &AuthResult{
		Token:     token,
		ExpiresIn: s.tokens.ExpirationTime(),
		User:      user.Profile(),
	}, nil
}

// burnHash spends about as long as a real verification so that unknown
// emails cannot be told apart by response time.
func (s *AuthService) burnHash(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("not-a-real-password")
		if err != nil {
			s.log.Error("failed to build dummy hash", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(password, s.dummyHash)
	}
}

// CurrentUser loads the user named by the token subject on ctx.
func (s *AuthService) CurrentUser(ctx context.Context) (*models.User, error) {
	subject, ok := SubjectFromContext(ctx)
	if !ok {
		return nil, ErrInvalidToken
	}
	user, err := s.users.FindByEmail(ctx, subject)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find current user: %w", err)
	}
	return user, nil
}

// CurrentUserID resolves the caller's id from the token subject on ctx.
func (s *AuthService) CurrentUserID(ctx context.Context) (uuid.UUID, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return user.ID, nil
}

func (s *AuthService) GetUserProfile(ctx context.Context, userID uuid.UUID) (models.UserProfile, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.UserProfile{}, ErrUserNotFound
		}
		return models.UserProfile{}, fmt.Errorf("find user: %w", err)
	}
	return user.Profile(), nil
}

// UpdateUserProfile applies a partial update of the non-security profile
// fields. An empty update returns the current profile unchanged.
func (s *AuthService) UpdateUserProfile(ctx context.Context, userID uuid.UUID, update models.ProfileUpdate) (models.UserProfile, error) {
	if update.Empty() {
		return s.GetUserProfile(ctx, userID)
	}

	user, err := s.users.UpdateProfile(ctx, userID, update, s.now().UTC())
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.UserProfile{}, ErrUserNotFound
		}
		return models.UserProfile{}, fmt.Errorf("update profile: %w", err)
	}
	return user.Profile(), nil
}

// SetProfilePicture stores the URL of an uploaded avatar.
func (s *AuthService) SetProfilePicture(ctx context.Context, userID uuid.UUID, url string) (models.UserProfile, error) {
	return s.UpdateUserProfile(ctx, userID, models.ProfileUpdate{ProfilePictureURL: &url})
}

// UnlockUser clears a lock and the failed-attempt counter by email.
func (s *AuthService) UnlockUser(ctx context.Context, email string) error {
	email = utils.NormalizeEmail(email)
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("find user: %w", err)
	}
	if err := s.users.Unlock(ctx, user.ID, s.now().UTC()); err != nil {
		return fmt.Errorf("unlock user: %w", err)
	}
	s.record(ctx, models.AuthEventAccountUnlocked, user.ID.String(), email, 0)
	s.log.Info("account unlocked", zap.String("user_id", user.ID.String()))
	return nil
}

// LoginHistory returns the caller's most recent auth events.
func (s *AuthService) LoginHistory(ctx context.Context, email string, limit int) ([]models.AuthEvent, error) {
	return s.audit.History(ctx, utils.NormalizeEmail(email), limit)
}

func (s *AuthService) record(ctx context.Context, typ models.AuthEventType, userID, email string, attempts int) {
	meta := RequestMetaFromContext(ctx)
	s.audit.Record(ctx, models.AuthEvent{
		CreatedAt:      s.now().UTC(),
		Type:           typ,
		UserID:         userID,
		Email:          email,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		FailedAttempts: attempts,
	})
}

func (s *AuthService) rejectLocked(ctx context.Context, user *models.User, email string) error {
	metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
	s.record(ctx, models.AuthEventLoginWhileLock, user.ID.String(), email, user.FailedLoginAttempts)
	return ErrAccountLocked
}
