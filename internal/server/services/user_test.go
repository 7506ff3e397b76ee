package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSignup() SignupInput {
	return SignupInput{
		Email:           "new@example.com",
		FullName:        "New User",
		Password:        "Test@1234",
		ConfirmPassword: "Test@1234",
	}
}

func requireValidation(t *testing.T, err error) *common.ValidationError {
	t.Helper()
	var verr *common.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	return verr
}

func TestSignup_Success(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	in := validSignup()
	in.Email = "  New@Example.com "
	res, err := f.users.Signup(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "new@example.com", res.User.Email)
	assert.Equal(t, common.RoleUser, res.User.Role)
	assert.True(t, res.User.IsActive)
	assert.NotEqual(t, "Test@1234", res.User.PasswordHash)

	claims, err := f.tokens.VerifyAccess(res.Tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID())
	assert.Equal(t, common.RoleUser, claims.Role)

	_, err = f.tokens.VerifyRefresh(context.Background(), res.Tokens.Refresh)
	assert.NoError(t, err)

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSignup_DuplicateEmailCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "new@example.com", "Another#Pass1", common.RoleUser, true)

	in := validSignup()
	in.Email = "NEW@example.com"
	_, err := f.users.Signup(context.Background(), in)

	verr := requireValidation(t, err)
	assert.Equal(t, []string{"Email already exists"}, verr.Fields["email"])

	n, _ := f.rm.u.Count(context.Background())
	assert.Equal(t, int64(1), n)
	require.NoError(t, f.mock.ExpectationsWereMet(), "no transaction must be opened")
}

func TestSignup_InsertRaceMapsToValidationError(t *testing.T) {
	f := newFixture(t)
	f.rm.u.createErr = common.ErrorAlreadyExists
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.users.Signup(context.Background(), validSignup())

	verr := requireValidation(t, err)
	assert.Equal(t, []string{"Email already exists"}, verr.Fields["email"])
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSignup_CreateErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	f.rm.u.createErr = errors.New("db down")
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.users.Signup(context.Background(), validSignup())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSignup_RequiredFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.users.Signup(context.Background(), SignupInput{})

	verr := requireValidation(t, err)
	for _, field := range []string{"email", "full_name", "password", "confirm_password"} {
		assert.Equal(t, []string{"This field is required."}, verr.Fields[field], field)
	}
}

func TestSignup_InvalidEmailAndWeakPassword(t *testing.T) {
	f := newFixture(t)

	_, err := f.users.Signup(context.Background(), SignupInput{
		Email:           "not-an-email",
		FullName:        "X",
		Password:        "12345678",
		ConfirmPassword: "something else",
	})

	verr := requireValidation(t, err)
	assert.Equal(t, []string{"Invalid email format"}, verr.Fields["email"])
	assert.Equal(t, []string{"This password is too common.", "This password is entirely numeric."}, verr.Fields["password"])
	assert.False(t, verr.Has(common.NonFieldErrorsKey), "mismatch is only checked once fields are valid")
}

func TestSignup_PasswordsDoNotMatch(t *testing.T) {
	f := newFixture(t)

	in := validSignup()
	in.ConfirmPassword = "Test@12345"
	_, err := f.users.Signup(context.Background(), in)

	verr := requireValidation(t, err)
	assert.Equal(t, map[string][]string{common.NonFieldErrorsKey: {"Passwords do not match"}}, verr.Fields)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	active := f.seed(t, "alice@example.com", "Alice#2024", common.RoleUser, true)
	f.seed(t, "bob@example.com", "Bob#2024!", common.RoleUser, false)

	tests := []struct {
		name    string
		in      LoginInput
		wantErr error
	}{
		{name: "unknown email", in: LoginInput{Email: "nobody@example.com", Password: "Alice#2024"}, wantErr: common.ErrInvalidCredentials},
		{name: "wrong password", in: LoginInput{Email: "alice@example.com", Password: "nope-nope"}, wantErr: common.ErrInvalidCredentials},
		{name: "inactive with correct password", in: LoginInput{Email: "bob@example.com", Password: "Bob#2024!"}, wantErr: common.ErrInactiveAccount},
		{name: "inactive with wrong password", in: LoginInput{Email: "bob@example.com", Password: "wrong"}, wantErr: common.ErrInactiveAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.users.Login(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("success normalizes email and updates last_login", func(t *testing.T) {
		before := time.Now().Add(-time.Second)
		res, err := f.users.Login(context.Background(), LoginInput{Email: "  ALICE@Example.com ", Password: "Alice#2024"})
		require.NoError(t, err)

		assert.Equal(t, active.ID, res.User.ID)
		require.NotNil(t, res.User.LastLogin)
		assert.True(t, res.User.LastLogin.After(before))

		stored := f.rm.u.get(active.ID)
		require.NotNil(t, stored.LastLogin)

		claims, err := f.tokens.VerifyAccess(res.Tokens.Access)
		require.NoError(t, err)
		assert.Equal(t, active.ID, claims.UserID())
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := f.users.Login(context.Background(), LoginInput{})
		verr := requireValidation(t, err)
		assert.True(t, verr.Has("email"))
		assert.True(t, verr.Has("password"))
	})
}

func TestLogin_CorruptHash(t *testing.T) {
	f := newFixture(t)
	u := f.seed(t, "c@example.com", "Whatever#1", common.RoleUser, true)
	stored := f.rm.u.get(u.ID)
	stored.PasswordHash = "garbage"
	f.rm.u.put(stored)

	_, err := f.users.Login(context.Background(), LoginInput{Email: "c@example.com", Password: "Whatever#1"})
	assert.ErrorIs(t, err, common.ErrCorruptHash)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.seed(t, "alice@example.com", "Alice#2024", common.RoleUser, true)

	pair, err := f.tokens.Issue(u)
	require.NoError(t, err)

	next, err := f.users.Refresh(ctx, pair.Refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, next.Access)

	_, err = f.users.Refresh(ctx, pair.Refresh)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)

	_, err = f.users.Refresh(ctx, "")
	requireValidation(t, err)

	require.NoError(t, f.rm.u.SetActive(ctx, u.ID, false))
	_, err = f.users.Refresh(ctx, next.Refresh)
	assert.ErrorIs(t, err, common.ErrInactiveAccount)
}

func TestRefresh_UnknownUser(t *testing.T) {
	f := newFixture(t)
	ghost := f.seed(t, "ghost@example.com", "Ghost#2024", common.RoleUser, true)
	pair, err := f.tokens.Issue(ghost)
	require.NoError(t, err)

	f.rm.u.mu.Lock()
	delete(f.rm.u.byID, ghost.ID)
	f.rm.u.mu.Unlock()

	_, err = f.users.Refresh(context.Background(), pair.Refresh)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.seed(t, "alice@example.com", "Alice#2024", common.RoleUser, true)
	pair, err := f.tokens.Issue(u)
	require.NoError(t, err)

	var rerr *common.RequestError
	require.True(t, errors.As(f.users.Logout(ctx, ""), &rerr))
	assert.Equal(t, "refresh token is required", rerr.Message)

	assert.NoError(t, f.users.Logout(ctx, "not-a-token"), "revocation failures are not reported")

	require.NoError(t, f.users.Logout(ctx, pair.Refresh))
	require.NoError(t, f.users.Logout(ctx, pair.Refresh))
	_, err = f.tokens.VerifyRefresh(ctx, pair.Refresh)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)
}

func TestMe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.seed(t, "alice@example.com", "Alice#2024", common.RoleUser, true)

	got, err := f.users.Me(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)

	_, err = f.users.Me(ctx, "00000000-0000-0000-0000-999999999999")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	require.NoError(t, f.rm.u.SetActive(ctx, u.ID, false))
	_, err = f.users.Me(ctx, u.ID)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func strptr(s string) *string { return &s }

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.seed(t, "alice@example.com", "Alice#2024", common.RoleUser, true)
	f.seed(t, "taken@example.com", "Taken#2024", common.RoleUser, true)

	t.Run("partial name update", func(t *testing.T) {
		got, err := f.users.UpdateProfile(ctx, u.ID, ProfileInput{FullName: strptr("Alice Liddell")})
		require.NoError(t, err)
		assert.Equal(t, "Alice Liddell", got.FullName)
		assert.Equal(t, "alice@example.com", got.Email)
		assert.False(t, got.UpdatedAt.IsZero())
	})

	t.Run("invalid email", func(t *testing.T) {
		_, err := f.users.UpdateProfile(ctx, u.ID, ProfileInput{Email: strptr("nope")})
		verr := requireValidation(t, err)
		assert.Equal(t, []string{"Invalid email format"}, verr.Fields["email"])
	})

	t.Run("email owned by someone else", func(t *testing.T) {
		_, err := f.users.UpdateProfile(ctx, u.ID, ProfileInput{Email: strptr("TAKEN@example.com")})
		verr := requireValidation(t, err)
		assert.Equal(t, []string{"Email already exists"}, verr.Fields["email"])
	})

	t.Run("own email in another case", func(t *testing.T) {
		got, err := f.users.UpdateProfile(ctx, u.ID, ProfileInput{Email: strptr(" Alice@Example.com")})
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", got.Email)
	})

	t.Run("new email", func(t *testing.T) {
		got, err := f.users.UpdateProfile(ctx, u.ID, ProfileInput{Email: strptr("alice2@example.com")})
		require.NoError(t, err)
		assert.Equal(t, "alice2@example.com", f.rm.u.get(u.ID).Email)
		assert.Equal(t, "alice2@example.com", got.Email)
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.seed(t, "alice@example.com", "Alice#2024", common.RoleUser, true)

	requestErr := func(t *testing.T, err error) string {
		t.Helper()
		var rerr *common.RequestError
		require.True(t, errors.As(err, &rerr), "expected RequestError, got %v", err)
		return rerr.Message
	}

	err := f.users.ChangePassword(ctx, u.ID, ChangePasswordInput{OldPassword: "Alice#2024"})
	assert.Equal(t, "All password fields are required", requestErr(t, err))

	err = f.users.ChangePassword(ctx, u.ID, ChangePasswordInput{OldPassword: "Alice#2024", NewPassword: "N3w#Secret", ConfirmNewPassword: "other"})
	assert.Equal(t, "New passwords do not match", requestErr(t, err))

	err = f.users.ChangePassword(ctx, u.ID, ChangePasswordInput{OldPassword: "wrong", NewPassword: "N3w#Secret", ConfirmNewPassword: "N3w#Secret"})
	assert.Equal(t, "Old password is incorrect", requestErr(t, err))

	err = f.users.ChangePassword(ctx, u.ID, ChangePasswordInput{OldPassword: "Alice#2024", NewPassword: "123", ConfirmNewPassword: "123"})
	verr := requireValidation(t, err)
	assert.True(t, verr.Has("new_password"))

	pair, err := f.tokens.Issue(u)
	require.NoError(t, err)

	f.users.now = func() time.Time { return time.Now().Add(2 * time.Second) }
	require.NoError(t, f.users.ChangePassword(ctx, u.ID, ChangePasswordInput{
		OldPassword: "Alice#2024", NewPassword: "N3w#Secret", ConfirmNewPassword: "N3w#Secret",
	}))

	stored := f.rm.u.get(u.ID)
	ok, err := f.hasher.Verify("N3w#Secret", stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, stored.PasswordChangedAt)

	_, err = f.users.Refresh(ctx, pair.Refresh)
	assert.ErrorIs(t, err, common.ErrTokenRevoked, "refresh tokens issued before the change must not rotate")
}

func TestLoginInput_Validate(t *testing.T) {
	in := LoginInput{Email: "not-an-email", Password: "x"}
	verr := fieldErrors(in.Validate())
	assert.Equal(t, []string{"Enter a valid email address."}, verr.Fields["email"])

	in = LoginInput{Email: normalizeEmail("  New@Example.com "), Password: "x"}
	assert.NoError(t, in.Validate())
}
