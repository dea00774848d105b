package auth

import "errors"

var (
	ErrNotAuthenticated = errors.New("Not authenticated")
	ErrInvalidToken     = errors.New("Invalid identity token")
	ErrUnknownRole      = errors.New("Unknown role")
)
