package services

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/revokedtokens"
	usersrepo "github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
	"golang.org/x/crypto/bcrypt"
)

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

// fakeUsersRepo is an in-memory users.Repository.
type fakeUsersRepo struct {
	mu     sync.Mutex
	byID   map[string]*models.User
	nextID int

	// forced errors
	createErr error
	getErr    error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byID: map[string]*models.User{}}
}

func (f *fakeUsersRepo) put(u *models.User) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.byID[u.ID] = &cp
	return u
}

func (f *fakeUsersRepo) get(id string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		cp := *u
		return &cp
	}
	return nil
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, v := range f.byID {
		if strings.EqualFold(v.Email, u.Email) {
			return nil, common.ErrorAlreadyExists
		}
	}
	f.nextID++
	u.ID = "00000000-0000-0000-0000-" + leftPad(strconv.Itoa(f.nextID))
	u.CreatedAt = time.Now().Add(time.Duration(f.nextID) * time.Second)
	u.UpdatedAt = u.CreatedAt
	cp := *u
	f.byID[u.ID] = &cp
	return u, nil
}

func leftPad(s string) string {
	return strings.Repeat("0", 12-len(s)) + s
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if u := f.get(id); u != nil {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) ExistsByEmail(_ context.Context, email string, excludeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.byID {
		if strings.EqualFold(u.Email, email) && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsersRepo) update(id string, fn func(u *models.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(u)
	return nil
}

func (f *fakeUsersRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	return f.update(id, func(u *models.User) { u.LastLogin = &at })
}

func (f *fakeUsersRepo) UpdateProfile(_ context.Context, user *models.User) (*models.User, error) {
	now := time.Now()
	err := f.update(user.ID, func(u *models.User) {
		u.FullName, u.Email, u.UpdatedAt = user.FullName, user.Email, now
	})
	if err != nil {
		return nil, err
	}
	user.UpdatedAt = now
	return user, nil
}

func (f *fakeUsersRepo) UpdatePassword(_ context.Context, id string, hash string, changedAt time.Time) error {
	return f.update(id, func(u *models.User) {
		u.PasswordHash, u.PasswordChangedAt, u.UpdatedAt = hash, &changedAt, changedAt
	})
}

func (f *fakeUsersRepo) SetActive(_ context.Context, id string, active bool) error {
	return f.update(id, func(u *models.User) { u.IsActive = active })
}

func (f *fakeUsersRepo) SetRole(_ context.Context, id string, role string) error {
	return f.update(id, func(u *models.User) { u.Role = role })
}

func (f *fakeUsersRepo) List(_ context.Context, limit, offset int) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]*models.User, 0, len(f.byID))
	for _, u := range f.byID {
		cp := *u
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return []*models.User{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeUsersRepo) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.byID)), nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r revokedtokens.Repository
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error       { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository             { return m.u }
func (m *fakeRepoManager) RevokedTokens(db dbx.DBTX) revokedtokens.Repository { return m.r }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

type fixture struct {
	db     *sql.DB
	mock   sqlmock.Sqlmock
	rm     *fakeRepoManager
	tokens *auth.TokenService
	hasher *auth.BcryptHasher
	users  *UserService
	admin  *AdminService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock := newSQLMockDB(t)
	rm := &fakeRepoManager{u: newFakeUsersRepo(), r: revokedtokens.NewMemoryRepository()}
	tokens := auth.NewTokenService([]byte("k"), 30*time.Minute, 24*time.Hour, rm.r)
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	us, err := NewUserService(db, rm, tokens, hasher, auth.NewDefaultPasswordPolicy(), nopLogger{})
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	return &fixture{
		db: db, mock: mock, rm: rm, tokens: tokens, hasher: hasher,
		users: us,
		admin: NewAdminService(db, rm, nopLogger{}),
	}
}

// seed stores a user with the given password directly in the fake repo.
func (f *fixture) seed(t *testing.T, email, password, role string, active bool) *models.User {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := f.rm.u.Create(context.Background(), &models.User{
		Email: email, FullName: "Seeded", PasswordHash: hash, Role: role, IsActive: active,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return u
}
