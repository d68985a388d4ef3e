package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "accounts/internal/errors"
	"accounts/internal/metrics"
	"accounts/internal/repository/memory"
)

func newTestAccountService(t *testing.T) (AccountService, *memory.Store) {
	t.Helper()
	v, err := NewPasswordValidator(DefaultPasswordMinLength)
	require.NoError(t, err)
	store := memory.NewStore()
	return NewAccountService(store, v, metrics.New()), store
}

func boolPtr(b bool) *bool { return &b }

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "John.Doe@example.com", NormalizeEmail(" John.Doe@EXAMPLE.COM "))
	assert.Equal(t, "a@b@x.com", NormalizeEmail("a@b@X.com"))
	assert.Equal(t, "no-at-sign", NormalizeEmail("no-at-sign"))
}

func TestAccountService_CreateThenAuthenticate(t *testing.T) {
	svc, _ := newTestAccountService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "a@X.com", "Str0ng!Pass9", UserFields{Name: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email)
	assert.Equal(t, "Ann", user.Name)
	assert.False(t, user.IsStaff)
	assert.False(t, user.IsSuperuser)
	assert.NotEqual(t, "Str0ng!Pass9", user.PasswordHash)
	assert.False(t, user.DateJoined.IsZero())

	got, err := svc.Authenticate(ctx, "a@x.com", "Str0ng!Pass9")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.ID)

	got, err = svc.Authenticate(ctx, "a@X.COM", "Str0ng!Pass9")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.ID)
}

func TestAccountService_AuthenticateFailuresLookAlike(t *testing.T) {
	svc, _ := newTestAccountService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, "a@x.com", "Str0ng!Pass9", UserFields{})
	require.NoError(t, err)

	wrongPassword, err1 := svc.Authenticate(ctx, "a@x.com", "wrong-password")
	unknownEmail, err2 := svc.Authenticate(ctx, "nobody@x.com", "Str0ng!Pass9")
	empty, err3 := svc.Authenticate(ctx, "", "")

	assert.Nil(t, wrongPassword)
	assert.Nil(t, unknownEmail)
	assert.Nil(t, empty)
	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.NoError(t, err3)
}

func TestAccountService_CreateUserErrors(t *testing.T) {
	svc, _ := newTestAccountService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "  ", "Str0ng!Pass9", UserFields{})
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "email")

	_, err = svc.CreateUser(ctx, "a@x.com", "Str0ng!Pass9", UserFields{})
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, "a@X.com", "Other!Pass9", UserFields{})
	assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
}

func TestAccountService_EmptyPasswordIsUnusable(t *testing.T) {
	svc, _ := newTestAccountService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "a@x.com", "", UserFields{})
	require.NoError(t, err)
	assert.True(t, len(user.PasswordHash) > 1 && user.PasswordHash[0] == '!')

	got, err := svc.Authenticate(ctx, "a@x.com", user.PasswordHash)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestAccountService_CreateSuperuser(t *testing.T) {
	svc, _ := newTestAccountService(t)
	ctx := context.Background()

	admin, err := svc.CreateSuperuser(ctx, "root@x.com", "Str0ng!Pass9", UserFields{})
	require.NoError(t, err)
	assert.True(t, admin.IsStaff)
	assert.True(t, admin.IsSuperuser)

	_, err = svc.CreateSuperuser(ctx, "b@x.com", "Str0ng!Pass9", UserFields{IsStaff: boolPtr(false)})
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"Superuser must have is_staff=True."}, verr.Messages())

	_, err = svc.CreateSuperuser(ctx, "c@x.com", "Str0ng!Pass9", UserFields{IsSuperuser: boolPtr(false)})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"Superuser must have is_superuser=True."}, verr.Messages())
}

func TestAccountService_SetPassword(t *testing.T) {
	svc, store := newTestAccountService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "a@x.com", "Str0ng!Pass9", UserFields{})
	require.NoError(t, err)
	user.HasRequestedPasswordReset = true
	require.NoError(t, store.Users().Update(ctx, user))

	err = svc.SetPassword(ctx, user, "123")
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields["password"], 2)

	stored, err := store.Users().FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasRequestedPasswordReset)

	require.NoError(t, svc.SetPassword(ctx, user, "N3w!Secret#42"))
	stored, err = store.Users().FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasRequestedPasswordReset)

	old, err := svc.Authenticate(ctx, "a@x.com", "Str0ng!Pass9")
	require.NoError(t, err)
	assert.Nil(t, old)
	fresh, err := svc.Authenticate(ctx, "a@x.com", "N3w!Secret#42")
	require.NoError(t, err)
	assert.NotNil(t, fresh)
}
