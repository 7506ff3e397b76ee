// Package common defines shared constants and sentinel errors used across
// the repository, service and transport layers of gophauth. Callers should
// use errors.Is / errors.As to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorUnauthorized = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidPage    = errors.New("invalid page")

	// Credential errors. Both are reported with the same status code.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("user account is inactive")

	// Token errors.
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrMalformedToken   = errors.New("token is malformed")
	ErrTokenRevoked     = errors.New("token revoked")

	// Password hash errors.
	ErrCorruptHash = errors.New("corrupt password hash")
)
