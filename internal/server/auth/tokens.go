package auth

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/revokedtokens"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenPair is what clients receive after authenticating.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// UserLoader resolves the subject of a refresh token during rotation.
type UserLoader func(ctx context.Context, userID string) (*models.User, error)

// TokenService issues and verifies access/refresh pairs. Access tokens are
// verified without I/O; refresh tokens are also checked against the
// revocation list.
type TokenService struct {
	secretKey  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	revoked    revokedtokens.Repository
	now        func() time.Time
}

func NewTokenService(secretKey []byte, accessTTL, refreshTTL time.Duration, revoked revokedtokens.Repository) *TokenService {
	return &TokenService{
		secretKey:  secretKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		revoked:    revoked,
		now:        time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Issue creates a fresh pair for user.
func (s *TokenService) Issue(user *models.User) (TokenPair, error) {
	now := s.now()

	access, err := GenerateToken(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
		Role:      user.Role,
		TokenType: TokenTypeAccess,
	}, s.secretKey)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := GenerateToken(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
		TokenType: TokenTypeRefresh,
	}, s.secretKey)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *TokenService) VerifyAccess(token string) (*Claims, error) {
	claims, err := ParseToken(token, s.secretKey, s.now)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, common.ErrMalformedToken
	}
	return claims, nil
}

func (s *TokenService) VerifyRefresh(ctx context.Context, token string) (*Claims, error) {
	claims, err := ParseToken(token, s.secretKey, s.now)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh || claims.ID == "" {
		return nil, common.ErrMalformedToken
	}

	revoked, err := s.revoked.Contains(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, common.ErrTokenRevoked
	}
	return claims, nil
}

// Rotate exchanges a refresh token for a new pair and revokes the one used.
// Only one of several concurrent rotations of the same token succeeds; the
// others get common.ErrTokenRevoked. Inactive users are refused with
// common.ErrInactiveAccount, and tokens issued before the user's last
// password change count as revoked.
func (s *TokenService) Rotate(ctx context.Context, token string, load UserLoader) (TokenPair, *models.User, error) {
	claims, err := s.VerifyRefresh(ctx, token)
	if err != nil {
		return TokenPair{}, nil, err
	}

	user, err := load(ctx, claims.Subject)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if !user.IsActive {
		return TokenPair{}, nil, common.ErrInactiveAccount
	}
	// iat has second precision.
	if user.PasswordChangedAt != nil && claims.IssuedAt != nil &&
		claims.IssuedAt.Time.Before(user.PasswordChangedAt.Truncate(time.Second)) {
		return TokenPair{}, nil, common.ErrTokenRevoked
	}

	added, err := s.revoked.Add(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if !added {
		return TokenPair{}, nil, common.ErrTokenRevoked
	}

	pair, err := s.Issue(user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Revoke adds the refresh token's id to the revocation list. Only the
// signature and format are checked, so expired or already revoked tokens
// are accepted and revoking twice is not an error.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	claims, err := ParseTokenIgnoringExpiry(token, s.secretKey)
	if err != nil {
		return err
	}
	if claims.TokenType != TokenTypeRefresh || claims.ID == "" {
		return common.ErrMalformedToken
	}

	expiresAt := s.now().Add(s.refreshTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	_, err = s.revoked.Add(ctx, claims.ID, expiresAt)
	return err
}

// PruneRevoked drops revocation entries whose tokens have expired anyway.
func (s *TokenService) PruneRevoked(ctx context.Context) (int64, error) {
	return s.revoked.Prune(ctx, s.now())
}
