package auth

import "errors"

// Credential failures stay distinct internally (logs, tests); the login
// handler collapses both into one 401 so responses do not reveal which
// emails have accounts.
var (
	ErrEmailPasswordRequired = errors.New("Email and password are required")
	ErrInvalidEmail          = errors.New("Unknown email address")
	ErrIncorrectPassword     = errors.New("Incorrect password")
	ErrNotAuthenticated      = errors.New("Not authenticated")
)
