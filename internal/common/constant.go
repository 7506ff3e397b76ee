// Package common contains shared constants and sentinel errors used across
// gophauth components.
package common

// AuthorizationHeaderName is the HTTP header carrying the bearer access token.
const AuthorizationHeaderName = "Authorization"

// BearerScheme is the only accepted authorization scheme.
const BearerScheme = "Bearer"

// Roles known to the service.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// DefaultPageSize is the fixed page size of admin user listings.
const DefaultPageSize = 10
