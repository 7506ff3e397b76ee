package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// AdminInput describes the operator account created by the createadmin tool.
type AdminInput struct {
	Email    string
	FullName string
	Password string
}

// EnsureAdmin creates an active admin account, or promotes, activates and
// resets the password of the existing account with that email. The flag
// reports whether a new account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, in AdminInput) (*models.User, bool, error) {
	in.Email = normalizeEmail(in.Email)

	probe := SignupInput{Email: in.Email, FullName: in.FullName, Password: in.Password, ConfirmPassword: in.Password}
	verr := fieldErrors(probe.Validate())
	if !verr.Has("password") {
		verr.Add("password", s.policy.Validate(in.Password, map[string]string{
			"email":     in.Email,
			"full_name": in.FullName,
		})...)
	}
	if err := verr.OrNil(); err != nil {
		return nil, false, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, false, fmt.Errorf("error hashing password: %w", err)
	}

	var (
		user    *models.User
		created bool
	)

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		existing, err := repo.GetByEmail(ctx, in.Email)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			user, err = repo.Create(ctx, &models.User{
				Email:        in.Email,
				FullName:     in.FullName,
				PasswordHash: hash,
				Role:         common.RoleAdmin,
				IsActive:     true,
			})
			if err != nil {
				return fmt.Errorf("error creating admin: %w", err)
			}
			created = true
			return nil
		case err != nil:
			return err
		}

		if err := repo.SetRole(ctx, existing.ID, common.RoleAdmin); err != nil {
			return err
		}
		if err := repo.SetActive(ctx, existing.ID, true); err != nil {
			return err
		}
		if err := repo.UpdatePassword(ctx, existing.ID, hash, s.now()); err != nil {
			return err
		}
		user, err = repo.GetByID(ctx, existing.ID)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	s.logger.Info(ctx, "admin ensured", "user_id", user.ID, "created", created)
	return user, created, nil
}
