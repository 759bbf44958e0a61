package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the stored credential and profile record.
type User struct {
	ID           uuid.UUID
	Email        string
	Username     string
	PasswordHash string

	FirstName         string
	LastName          string
	Phone             *string
	ProfilePictureURL *string
	Locale            *string
	Timezone          *string

	Enabled             bool
	EmailVerified       bool
	Locked              bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time

	TermsAcceptedAt         *time.Time
	PrivacyPolicyAcceptedAt *time.Time
	PasswordChangedAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockActive reports whether the account is inside its lock window at now.
// A lock without an expiry is administrative and never lapses on its own.
func (u *User) LockActive(now time.Time) bool {
	if !u.Locked {
		return false
	}
	return u.LockedUntil == nil || now.Before(*u.LockedUntil)
}

// LockExpired reports whether a time-bound lock has lapsed at now.
func (u *User) LockExpired(now time.Time) bool {
	return u.Locked && u.LockedUntil != nil && !now.Before(*u.LockedUntil)
}

// Profile is the public view of a user; it never carries credentials or lock state.
func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:                u.ID.String(),
		Email:             u.Email,
		Username:          u.Username,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		Phone:             u.Phone,
		ProfilePictureURL: u.ProfilePictureURL,
		Locale:            u.Locale,
		Timezone:          u.Timezone,
		EmailVerified:     u.EmailVerified,
		LastLoginAt:       u.LastLoginAt,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

type UserProfile struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	Username          string     `json:"username"`
	FirstName         string     `json:"firstName"`
	LastName          string     `json:"lastName"`
	Phone             *string    `json:"phone,omitempty"`
	ProfilePictureURL *string    `json:"profilePictureUrl,omitempty"`
	Locale            *string    `json:"locale,omitempty"`
	Timezone          *string    `json:"timezone,omitempty"`
	EmailVerified     bool       `json:"emailVerified"`
	LastLoginAt       *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type RegisterRequest struct {
	Email                 string `json:"email" validate:"required,email,max=255"`
	Password              string `json:"password" validate:"required,strongpassword"`
	Username              string `json:"username" validate:"required,username"`
	FirstName             string `json:"firstName" validate:"required,max=50"`
	LastName              string `json:"lastName" validate:"required,max=50"`
	TermsAccepted         bool   `json:"termsAccepted" validate:"eq=true"`
	PrivacyPolicyAccepted bool   `json:"privacyPolicyAccepted" validate:"eq=true"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProfileUpdate carries the mutable profile fields. Nil fields are left
// unchanged; an empty string clears an optional field.
type ProfileUpdate struct {
	FirstName         *string `json:"firstName" validate:"omitnil,min=1,max=50"`
	LastName          *string `json:"lastName" validate:"omitnil,min=1,max=50"`
	Phone             *string `json:"phone" validate:"omitempty,e164"`
	ProfilePictureURL *string `json:"profilePictureUrl" validate:"omitempty,url,max=2048"`
	Locale            *string `json:"locale" validate:"omitempty,bcp47_language_tag"`
	Timezone          *string `json:"timezone" validate:"omitempty,timezone"`
}

// Empty reports whether the update carries no fields.
func (p ProfileUpdate) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Phone == nil &&
		p.ProfilePictureURL == nil && p.Locale == nil && p.Timezone == nil
}

// AuthResponse is returned by a successful login.
type AuthResponse struct {
	Success     bool        `json:"success"`
	Message     string      `json:"message"`
	AccessToken string      `json:"accessToken"`
	TokenType   string      `json:"tokenType"`
	ExpiresIn   int64       `json:"expiresIn"`
	User        UserProfile `json:"user"`
}
