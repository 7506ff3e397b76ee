package services

import (
	"context"
	"database/sql"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// UserPage is one page of the admin user listing.
type UserPage struct {
	Count       int64
	Page        int
	HasNext     bool
	HasPrevious bool
	Users       []*models.User
}

// AdminService implements user management for administrators. Callers are
// expected to have passed the admin role check already.
type AdminService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	pageSize    int
}

func NewAdminService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *AdminService {
	return &AdminService{db: db, repomanager: m, logger: logger, pageSize: common.DefaultPageSize}
}

// ListUsers returns the 1-based page of users, newest first. The first
// page always exists; any other page past the end is common.ErrInvalidPage.
func (s *AdminService) ListUsers(ctx context.Context, page int) (*UserPage, error) {
	if page < 1 {
		return nil, common.ErrInvalidPage
	}

	repo := s.repomanager.Users(s.db)

	count, err := repo.Count(ctx)
	if err != nil {
		return nil, err
	}

	pages := int((count + int64(s.pageSize) - 1) / int64(s.pageSize))
	if pages == 0 {
		pages = 1
	}
	if page > pages {
		return nil, common.ErrInvalidPage
	}

	list, err := repo.List(ctx, s.pageSize, (page-1)*s.pageSize)
	if err != nil {
		return nil, err
	}

	return &UserPage{
		Count:       count,
		Page:        page,
		HasNext:     page < pages,
		HasPrevious: page > 1,
		Users:       list,
	}, nil
}

// SetActive activates or deactivates targetID on behalf of actorID.
// Targeting oneself is refused before any lookup; ids that are not UUIDs
// cannot exist and are reported as not found.
func (s *AdminService) SetActive(ctx context.Context, actorID, targetID string, active bool) error {
	if strings.EqualFold(actorID, targetID) {
		return common.NewRequestError("You cannot activate/deactivate yourself")
	}

	id, err := uuid.Parse(targetID)
	if err != nil {
		return common.ErrorNotFound
	}
	if id.String() == strings.ToLower(actorID) {
		return common.NewRequestError("You cannot activate/deactivate yourself")
	}

	if err := s.repomanager.Users(s.db).SetActive(ctx, id.String(), active); err != nil {
		return err
	}

	s.logger.Info(ctx, "user activation changed", "actor_id", actorID, "user_id", id.String(), "active", active)
	return nil
}
