package services

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrDuplicateUsername  = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountLocked matches ErrInvalidCredentials too, so callers outside
	// the auth service cannot tell a locked account from a wrong password.
	ErrAccountLocked   = fmt.Errorf("%w: account locked", ErrInvalidCredentials)
	ErrUserNotFound    = errors.New("user not found")
	ErrExpenseNotFound = errors.New("expense not found")
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("token expired")
	ErrUploadsDisabled = errors.New("file uploads are not configured")
)
