package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnshRaj112/expense-tracker-backend/internal/models"
	"github.com/AnshRaj112/expense-tracker-backend/pkg/utils"
)

const userColumns = `id, email, username, password_hash, first_name, last_name,
	phone, profile_picture_url, locale, timezone,
	account_enabled, email_verified, account_locked, failed_login_attempts, locked_until, last_login_at,
	terms_accepted_at, privacy_policy_accepted_at, password_changed_at, created_at, updated_at`

// UserStore persists credential and profile records. Phone numbers are
// encrypted with cipher when one is configured.
type UserStore struct {
	db     *sql.DB
	cipher *utils.FieldCipher
	log    *zap.Logger
}

func NewUserStore(db *sql.DB, cipher *utils.FieldCipher) *UserStore {
	return &UserStore{db: db, cipher: cipher, log: zap.NewNop()}
}

// WithLogger sets the logger used for recoverable read problems.
func (s *UserStore) WithLogger(log *zap.Logger) *UserStore {
	s.log = log.Named("users")
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *UserStore) scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Phone, &u.ProfilePictureURL, &u.Locale, &u.Timezone,
		&u.Enabled, &u.EmailVerified, &u.Locked, &u.FailedLoginAttempts, &u.LockedUntil, &u.LastLoginAt,
		&u.TermsAcceptedAt, &u.PrivacyPolicyAcceptedAt, &u.PasswordChangedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	// Rows written before ENCRYPTION_KEY was set, or under a rotated key,
	// come back as stored.
	if u.Phone != nil {
		plain, err := s.cipher.Decrypt(*u.Phone)
		if err != nil {
			s.log.Warn("phone number could not be decrypted; returning stored value",
				zap.String("user_id", u.ID.String()), zap.Error(err))
		} else {
			u.Phone = &plain
		}
	}

	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	for _, t := range []**time.Time{&u.LockedUntil, &u.LastLoginAt, &u.TermsAcceptedAt, &u.PrivacyPolicyAcceptedAt, &u.PasswordChangedAt} {
		if *t != nil {
			utc := (*t).UTC()
			*t = &utc
		}
	}
	return &u, nil
}

func (s *UserStore) encryptPhone(phone *string) (*string, error) {
	if phone == nil || *phone == "" {
		return nil, nil
	}
	enc, err := s.cipher.Encrypt(*phone)
	if err != nil {
		return nil, fmt.Errorf("encrypt phone: %w", err)
	}
	return &enc, nil
}

// Create inserts u. A duplicate email or username yields *UniqueViolation.
func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	phone, err := s.encryptPhone(u.Phone)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.FirstName, u.LastName,
		phone, u.ProfilePictureURL, u.Locale, u.Timezone,
		u.Enabled, u.EmailVerified, u.Locked, u.FailedLoginAttempts, u.LockedUntil, u.LastLoginAt,
		u.TermsAcceptedAt, u.PrivacyPolicyAcceptedAt, u.PasswordChangedAt, u.CreatedAt, u.UpdatedAt,
	)
	return classifyError(err)
}

func (s *UserStore) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return s.scanUser(row)
}

// FindByEmail looks up by the normalized (lower-case) email.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return s.scanUser(row)
}

func (s *UserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, `SELECT COUNT(*) FROM users WHERE email = $1`, email)
}

func (s *UserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, `SELECT COUNT(*) FROM users WHERE username = $1`, username)
}

func (s *UserStore) exists(ctx context.Context, query string, arg any) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateProfile applies the non-nil fields of p. Empty optional strings are
// stored as NULL.
func (s *UserStore) UpdateProfile(ctx context.Context, id uuid.UUID, p models.ProfileUpdate, now time.Time) (*models.User, error) {
	sets := []string{}
	args := []any{}
	argIdx := 1

	set := func(column string, value any) {
		sets = append(sets, column+" = $"+strconv.Itoa(argIdx))
		args = append(args, value)
		argIdx++
	}
	optional := func(v *string) any {
		if v == nil || strings.TrimSpace(*v) == "" {
			return nil
		}
		trimmed := strings.TrimSpace(*v)
		return trimmed
	}

	if p.FirstName != nil {
		set("first_name", strings.TrimSpace(*p.FirstName))
	}
	if p.LastName != nil {
		set("last_name", strings.TrimSpace(*p.LastName))
	}
	if p.Phone != nil {
		phone, err := s.encryptPhone(p.Phone)
		if err != nil {
			return nil, err
		}
		if phone == nil {
			set("phone", nil)
		} else {
			set("phone", *phone)
		}
	}
	if p.ProfilePictureURL != nil {
		set("profile_picture_url", optional(p.ProfilePictureURL))
	}
	if p.Locale != nil {
		set("locale", optional(p.Locale))
	}
	if p.Timezone != nil {
		set("timezone", optional(p.Timezone))
	}
	set("updated_at", now)

	args = append(args, id)
	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $` + strconv.Itoa(argIdx)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.FindByID(ctx, id)
}

// lockInactive matches rows outside an active lock window. The caller binds
// the current time to the placeholder.
const lockInactive = `NOT (account_locked AND (locked_until IS NULL OR locked_until > $%d))`

// RecordFailedLogin increments the failed-attempt counter in one statement and
// locks the account until lockUntil once the counter reaches threshold. It
// returns the counter and lock flag as stored after the update. An account
// already inside a lock window is not touched and yields ErrLocked.
func (s *UserStore) RecordFailedLogin(ctx context.Context, id uuid.UUID, threshold int, lockUntil, now time.Time) (int, bool, error) {
	var attempts int
	var locked bool
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET
			failed_login_attempts = failed_login_attempts + 1,
			account_locked = CASE WHEN failed_login_attempts + 1 >= $2 THEN TRUE ELSE account_locked END,
			locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
			updated_at = $4
		WHERE id = $1 AND `+fmt.Sprintf(lockInactive, 4)+`
		RETURNING failed_login_attempts, account_locked
	`, id, threshold, lockUntil, now).Scan(&attempts, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, s.lockedOrMissing(ctx, id)
		}
		return 0, false, err
	}
	return attempts, locked, nil
}

// RecordSuccessfulLogin resets the failed-attempt counter and stamps
// last_login_at. It yields ErrLocked if a concurrent failure locked the
// account after the caller read it.
func (s *UserStore) RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, now time.Time) error {
	err := s.execOne(ctx, `
		UPDATE users SET failed_login_attempts = 0, last_login_at = $2, updated_at = $2
		WHERE id = $1 AND `+fmt.Sprintf(lockInactive, 2), id, now)
	if errors.Is(err, ErrNotFound) {
		return s.lockedOrMissing(ctx, id)
	}
	return err
}

// ExpireLock clears a lock whose locked_until has passed. It is a no-op when
// the lock was already cleared or has been renewed since the caller read it.
func (s *UserStore) ExpireLock(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET account_locked = FALSE, locked_until = NULL, failed_login_attempts = 0, updated_at = $2
		WHERE id = $1 AND account_locked AND locked_until IS NOT NULL AND locked_until <= $2
	`, id, now)
	return err
}

func (s *UserStore) lockedOrMissing(ctx context.Context, id uuid.UUID) error {
	ok, err := s.exists(ctx, `SELECT COUNT(*) FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return ErrLocked
}

// Unlock clears the lock state and the failed-attempt counter.
func (s *UserStore) Unlock(ctx context.Context, id uuid.UUID, now time.Time) error {
	return s.execOne(ctx, `
		UPDATE users SET account_locked = FALSE, locked_until = NULL, failed_login_attempts = 0, updated_at = $2
		WHERE id = $1
	`, id, now)
}

// SetEnabled toggles whether the account may log in at all.
func (s *UserStore) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool, now time.Time) error {
	return s.execOne(ctx, `UPDATE users SET account_enabled = $2, updated_at = $3 WHERE id = $1`, id, enabled, now)
}

func (s *UserStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
