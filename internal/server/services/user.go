// Package services contains server-side business logic. UserService covers
// the self-service account flows; AdminService covers user management.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	msgRequired      = "This field is required."
	msgInvalidEmail  = "Invalid email format"
	msgEmailTaken    = "Email already exists"
	msgPasswordShort = "Ensure this field has at least 8 characters."
	msgNoMatch       = "Passwords do not match"
)

// SignupInput is the signup request body.
type SignupInput struct {
	Email           string `json:"email"`
	FullName        string `json:"full_name"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (in *SignupInput) Validate() error {
	return validation.ValidateStruct(in,
		validation.Field(&in.Email, validation.Required.Error(msgRequired), is.Email.Error(msgInvalidEmail)),
		validation.Field(&in.FullName, validation.Required.Error(msgRequired)),
		validation.Field(&in.Password, validation.Required.Error(msgRequired), validation.Length(8, 0).Error(msgPasswordShort)),
		validation.Field(&in.ConfirmPassword, validation.Required.Error(msgRequired)),
	)
}

// LoginInput is the login request body.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in *LoginInput) Validate() error {
	return validation.ValidateStruct(in,
		validation.Field(&in.Email, validation.Required.Error(msgRequired), is.Email.Error("Enter a valid email address.")),
		validation.Field(&in.Password, validation.Required.Error(msgRequired)),
	)
}

// ProfileInput is a partial profile update; nil fields are left unchanged.
type ProfileInput struct {
	FullName *string `json:"full_name"`
	Email    *string `json:"email"`
}

// ChangePasswordInput is the change-password request body.
type ChangePasswordInput struct {
	OldPassword        string `json:"old_password"`
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
}

// AuthResult is returned by signup and login.
type AuthResult struct {
	Tokens auth.TokenPair
	User   *models.User
}

// UserService provides the account operations:
//   - Signup / Login: create or authenticate users and mint token pairs
//   - Refresh / Logout: rotate or revoke refresh tokens
//   - Me / UpdateProfile / ChangePassword: act on the caller's own record
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *auth.TokenService
	hasher      auth.PasswordHasher
	policy      auth.PasswordPolicy
	logger      logging.Logger
	now         func() time.Time

	// dummyHash is compared against when the email is unknown, so that
	// login takes as long as for an existing account.
	dummyHash string
}

// NewUserService wires the service. It hashes a random secret once to get
// a realistic dummy hash for the unknown-email login path.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, tokens *auth.TokenService,
	hasher auth.PasswordHasher, policy auth.PasswordPolicy, logger logging.Logger) (*UserService, error) {

	secret, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("error preparing dummy hash: %w", err)
	}

	return &UserService{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		hasher:      hasher,
		policy:      policy,
		logger:      logger,
		now:         time.Now,
		dummyHash:   dummy,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// fieldErrors converts ozzo-validation output into a ValidationError.
func fieldErrors(err error) *common.ValidationError {
	verr := common.NewValidationError()
	if err == nil {
		return verr
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		for field, e := range errs {
			verr.Add(field, e.Error())
		}
		return verr
	}
	return verr.Add(common.NonFieldErrorsKey, err.Error())
}

// Signup creates an active account with role "user" and returns a token
// pair. All field problems are reported together; the password
// confirmation is compared only once every field is valid.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)

	verr := fieldErrors(in.Validate())

	if !verr.Has("email") {
		taken, err := s.repomanager.Users(s.db).ExistsByEmail(ctx, in.Email, "")
		if err != nil {
			return nil, err
		}
		if taken {
			verr.Add("email", msgEmailTaken)
		}
	}
	if !verr.Has("password") {
		verr.Add("password", s.policy.Validate(in.Password, map[string]string{
			"email":     in.Email,
			"full_name": in.FullName,
		})...)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	if in.Password != in.ConfirmPassword {
		return nil, common.FieldError(common.NonFieldErrorsKey, msgNoMatch)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: hash,
		Role:         common.RoleUser,
		IsActive:     true,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		taken, err := repo.ExistsByEmail(ctx, user.Email, "")
		if err != nil {
			return err
		}
		if taken {
			return common.FieldError("email", msgEmailTaken)
		}

		if _, err := repo.Create(ctx, user); err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) {
				return common.FieldError("email", msgEmailTaken)
			}
			return fmt.Errorf("error creating user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tokens, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("error issuing tokens: %w", err)
	}

	s.logger.Info(ctx, "user signed up", "user_id", user.ID)
	return &AuthResult{Tokens: tokens, User: user}, nil
}

// Login authenticates by email and password. Unknown emails and wrong
// passwords both yield common.ErrInvalidCredentials; inactive accounts
// yield common.ErrInactiveAccount whatever the password.
func (s *UserService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	if verr := fieldErrors(in.Validate()); !verr.Empty() {
		return nil, verr
	}

	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_, _ = s.hasher.Verify(in.Password, s.dummyHash)
			return nil, common.ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", user.ID, err)
	}
	if !user.IsActive {
		return nil, common.ErrInactiveAccount
	}
	if !ok {
		return nil, common.ErrInvalidCredentials
	}

	now := s.now()
	if err := repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = &now

	tokens, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("error issuing tokens: %w", err)
	}

	s.logger.Debug(ctx, "user logged in", "user_id", user.ID)
	return &AuthResult{Tokens: tokens, User: user}, nil
}

// Refresh rotates a refresh token. Accounts that vanished map to
// common.ErrorUnauthorized.
func (s *UserService) Refresh(ctx context.Context, refresh string) (auth.TokenPair, error) {
	if refresh == "" {
		return auth.TokenPair{}, common.FieldError("refresh", msgRequired)
	}

	pair, _, err := s.tokens.Rotate(ctx, refresh, func(ctx context.Context, userID string) (*models.User, error) {
		u, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return u, err
	})
	if err != nil {
		return auth.TokenPair{}, err
	}
	return pair, nil
}

// Logout revokes refresh on a best-effort basis. Only a missing token is
// an error; revocation failures are logged.
func (s *UserService) Logout(ctx context.Context, refresh string) error {
	if refresh == "" {
		return common.NewRequestError("refresh token is required")
	}
	if err := s.tokens.Revoke(ctx, refresh); err != nil {
		s.logger.Warn(ctx, "refresh token not revoked", "error", err)
	}
	return nil
}

// activeUser loads the caller; deleted or deactivated accounts are
// unauthorized.
func (s *UserService) activeUser(ctx context.Context, repo users.Repository, userID string) (*models.User, error) {
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, common.ErrorUnauthorized
	}
	return user, nil
}

func (s *UserService) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.activeUser(ctx, s.repomanager.Users(s.db), userID)
}

// UpdateProfile applies a partial update. A new email goes through the same
// format and uniqueness checks as at signup.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*models.User, error) {
	repo := s.repomanager.Users(s.db)

	user, err := s.activeUser(ctx, repo, userID)
	if err != nil {
		return nil, err
	}

	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		err := validation.Validate(email, validation.Required.Error(msgRequired), is.Email.Error(msgInvalidEmail))
		if err != nil {
			return nil, common.FieldError("email", err.Error())
		}
		if email != user.Email {
			taken, err := repo.ExistsByEmail(ctx, email, user.ID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, common.FieldError("email", msgEmailTaken)
			}
		}
		user.Email = email
	}
	if in.FullName != nil {
		user.FullName = strings.TrimSpace(*in.FullName)
	}

	updated, err := repo.UpdateProfile(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.FieldError("email", msgEmailTaken)
		}
		return nil, err
	}
	return updated, nil
}

// ChangePassword replaces the caller's password. The change time is stored
// so refresh tokens issued before it can no longer be rotated.
func (s *UserService) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	if in.OldPassword == "" || in.NewPassword == "" || in.ConfirmNewPassword == "" {
		return common.NewRequestError("All password fields are required")
	}
	if in.NewPassword != in.ConfirmNewPassword {
		return common.NewRequestError("New passwords do not match")
	}

	repo := s.repomanager.Users(s.db)

	user, err := s.activeUser(ctx, repo, userID)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(in.OldPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("user %s: %w", user.ID, err)
	}
	if !ok {
		return common.NewRequestError("Old password is incorrect")
	}

	if msgs := s.policy.Validate(in.NewPassword, map[string]string{
		"email":     user.Email,
		"full_name": user.FullName,
	}); len(msgs) > 0 {
		return common.NewValidationError().Add("new_password", msgs...)
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}
	if err := repo.UpdatePassword(ctx, user.ID, hash, s.now()); err != nil {
		return err
	}

	s.logger.Info(ctx, "password changed", "user_id", user.ID)
	return nil
}
