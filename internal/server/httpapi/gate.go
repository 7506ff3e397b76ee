package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/gin-gonic/gin"
)

// Identity is the authenticated caller resolved from the access token.
type Identity struct {
	UserID string
	Role   string
}

type identityKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity attached by the gate, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// TokenVerifier checks access tokens without I/O.
type TokenVerifier interface {
	VerifyAccess(token string) (*auth.Claims, error)
}

// Gate is the RBAC guard placed in front of handlers. Each requirement is a
// gin middleware; a failed check aborts the chain before the handler runs.
type Gate struct {
	tokens TokenVerifier
}

func NewGate(tokens TokenVerifier) *Gate {
	return &Gate{tokens: tokens}
}

// Anonymous performs no check.
func (g *Gate) Anonymous() gin.HandlerFunc {
	return func(c *gin.Context) { c.Next() }
}

// Authenticated requires a valid access token (401 otherwise).
func (g *Gate) Authenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := g.authenticate(c); ok {
			c.Next()
		}
	}
}

// Role requires a valid access token (401) whose role claim equals role (403).
func (g *Gate) Role(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := g.authenticate(c)
		if !ok {
			return
		}
		if id.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": msgForbidden})
			return
		}
		c.Next()
	}
}

// NotSelf rejects requests whose path parameter param names the caller
// (400). It must run after Authenticated or Role.
func (g *Gate) NotSelf(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgNoCredentials})
			return
		}
		if strings.EqualFold(id.UserID, c.Param(param)) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msgSelfTarget})
			return
		}
		c.Next()
	}
}

func (g *Gate) authenticate(c *gin.Context) (Identity, bool) {
	token, ok := bearerToken(c.GetHeader(common.AuthorizationHeaderName))
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgNoCredentials})
		return Identity{}, false
	}

	claims, err := g.tokens.VerifyAccess(token)
	if err != nil {
		msg := msgTokenInvalid
		if errors.Is(err, common.ErrTokenExpired) {
			msg = msgTokenExpired
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
		return Identity{}, false
	}

	id := Identity{UserID: claims.UserID(), Role: claims.Role}
	c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
	return id, true
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
