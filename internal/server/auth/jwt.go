// Package auth implements credential primitives: JWT signing and
// verification, the token service with refresh rotation, bcrypt password
// hashing and the password policy.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims extends the registered claims with the caller's role and the token
// kind. Subject is the user id, ID is the jti.
type Claims struct {
	jwt.RegisteredClaims
	Role      string `json:"role,omitempty"`
	TokenType string `json:"token_type"`
}

// UserID returns the subject claim.
func (c *Claims) UserID() string { return c.Subject }

// GenerateToken signs claims with HS256.
func GenerateToken(claims *Claims, secretKey []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies signature and expiry at now() and maps jwt errors to
// common.ErrTokenExpired, common.ErrInvalidSignature or common.ErrMalformedToken.
// The signature is checked before any claim.
func ParseToken(tokenString string, secretKey []byte, now func() time.Time) (*Claims, error) {
	return parse(tokenString, secretKey,
		jwt.WithTimeFunc(now),
		jwt.WithExpirationRequired(),
	)
}

// ParseTokenIgnoringExpiry verifies only the signature and format.
func ParseTokenIgnoringExpiry(tokenString string, secretKey []byte) (*Claims, error) {
	return parse(tokenString, secretKey, jwt.WithoutClaimsValidation())
}

func parse(tokenString string, secretKey []byte, opts ...jwt.ParserOption) (*Claims, error) {
	claims := &Claims{}

	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, opts...)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, common.ErrInvalidSignature
	default:
		return nil, common.ErrMalformedToken
	}

	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrMalformedToken
	}

	return claims, nil
}
