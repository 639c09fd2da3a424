package user

import "errors"

var (
	ErrInvalidEmail    = errors.New("Invalid email format")
	ErrInvalidPassword = errors.New("Invalid password format")
	ErrMissingFullname = errors.New("Full name is required and must be a non-empty string")
	ErrInvalidFullname = errors.New("Full name contains invalid characters (only letters, spaces, hyphens, and apostrophes allowed)")
	ErrEmailRegistered = errors.New("Email already registered")
	ErrInvalidRole     = errors.New("Invalid role")
	ErrUserNotFound    = errors.New("User not found")
)
