// Package users declares the credential store: persistence of user accounts.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository persists user accounts. Lookups that find nothing return
// common.ErrorNotFound; writes that collide on email return
// common.ErrorAlreadyExists.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// ExistsByEmail reports whether another account owns email. excludeID
	// may be empty.
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)

	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdateProfile(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id string, hash string, changedAt time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
	SetRole(ctx context.Context, id string, role string) error

	// List returns users newest first.
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
}
