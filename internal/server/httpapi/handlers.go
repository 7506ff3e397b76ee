package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/gin-gonic/gin"
)

// UserService is the account API consumed by the handlers.
type UserService interface {
	Signup(ctx context.Context, in services.SignupInput) (*services.AuthResult, error)
	Login(ctx context.Context, in services.LoginInput) (*services.AuthResult, error)
	Refresh(ctx context.Context, refresh string) (auth.TokenPair, error)
	Logout(ctx context.Context, refresh string) error
	Me(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, in services.ProfileInput) (*models.User, error)
	ChangePassword(ctx context.Context, userID string, in services.ChangePasswordInput) error
}

// AdminService is the user management API consumed by the handlers.
type AdminService interface {
	ListUsers(ctx context.Context, page int) (*services.UserPage, error)
	SetActive(ctx context.Context, actorID, targetID string, active bool) error
}

type handlers struct {
	users  UserService
	admin  AdminService
	logger logging.Logger
}

type refreshBody struct {
	Refresh string `json:"refresh"`
}

// bindJSON decodes the body into dst. An empty body leaves dst zero so
// that field validation reports the missing fields.
func (h *handlers) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgBadJSON})
		return false
	}
	return true
}

func (h *handlers) signup(c *gin.Context) {
	var in services.SignupInput
	if !h.bindJSON(c, &in) {
		return
	}

	res, err := h.users.Signup(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Signup successful",
		"tokens":  res.Tokens,
		"user":    res.User,
	})
}

func (h *handlers) login(c *gin.Context) {
	var in services.LoginInput
	if !h.bindJSON(c, &in) {
		return
	}

	res, err := h.users.Login(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"tokens":  res.Tokens,
		"user":    res.User,
	})
}

// refresh reports every token failure as 401, including inactive accounts.
func (h *handlers) refresh(c *gin.Context) {
	var in refreshBody
	if !h.bindJSON(c, &in) {
		return
	}

	pair, err := h.users.Refresh(c.Request.Context(), in.Refresh)
	if errors.Is(err, common.ErrInactiveAccount) {
		err = common.ErrorUnauthorized
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Token refreshed", "tokens": pair})
}

func (h *handlers) logout(c *gin.Context) {
	var in refreshBody
	if !h.bindJSON(c, &in) {
		return
	}

	if err := h.users.Logout(c.Request.Context(), in.Refresh); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *handlers) me(c *gin.Context) {
	id, _ := IdentityFrom(c.Request.Context())

	user, err := h.users.Me(c.Request.Context(), id.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *handlers) updateProfile(c *gin.Context) {
	var in services.ProfileInput
	if !h.bindJSON(c, &in) {
		return
	}
	id, _ := IdentityFrom(c.Request.Context())

	user, err := h.users.UpdateProfile(c.Request.Context(), id.UserID, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Profile updated", "user": user})
}

func (h *handlers) changePassword(c *gin.Context) {
	var in services.ChangePasswordInput
	if !h.bindJSON(c, &in) {
		return
	}
	id, _ := IdentityFrom(c.Request.Context())

	if err := h.users.ChangePassword(c.Request.Context(), id.UserID, in); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}

func (h *handlers) listUsers(c *gin.Context) {
	page := 1
	if raw, ok := c.GetQuery("page"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, h.logger, common.ErrInvalidPage)
			return
		}
		page = n
	}

	res, err := h.admin.ListUsers(c.Request.Context(), page)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	results := res.Users
	if results == nil {
		results = []*models.User{}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    res.Count,
		"next":     pageLink(c, res.HasNext, res.Page+1),
		"previous": pageLink(c, res.HasPrevious, res.Page-1),
		"results":  results,
	})
}

// pageLink returns the absolute URL of the given page, or nil when absent.
// Page 1 is addressed without a page parameter.
func pageLink(c *gin.Context, exists bool, page int) *string {
	if !exists {
		return nil
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	switch fwd := strings.ToLower(strings.TrimSpace(c.GetHeader("X-Forwarded-Proto"))); fwd {
	case "http", "https":
		scheme = fwd
	}

	q := c.Request.URL.Query()
	if page <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     c.Request.Host,
		Path:     c.Request.URL.Path,
		RawQuery: q.Encode(),
	}
	s := u.String()
	return &s
}

func (h *handlers) setActive(active bool) gin.HandlerFunc {
	msg := "User deactivated"
	if active {
		msg = "User activated"
	}

	return func(c *gin.Context) {
		id, _ := IdentityFrom(c.Request.Context())

		if err := h.admin.SetActive(c.Request.Context(), id.UserID, c.Param("id"), active); err != nil {
			respondError(c, h.logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": msg})
	}
}
