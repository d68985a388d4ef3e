package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "accounts/internal/errors"
	"accounts/internal/metrics"
	"accounts/internal/model"
	"accounts/internal/repository/memory"
)

func newReconcileFixture(t *testing.T, emails ...string) (AddressService, *memory.Store, []*model.User) {
	t.Helper()
	store := memory.NewStore()
	var users []*model.User
	for _, email := range emails {
		u := &model.User{Email: email}
		require.NoError(t, store.Users().Create(context.Background(), u))
		users = append(users, u)
	}
	return NewAddressService(store, metrics.New()), store, users
}

func TestAddressService_ElmAndOak(t *testing.T) {
	svc, store, users := newReconcileFixture(t, "a@x.com")
	ctx := context.Background()
	user := users[0]

	_, err := svc.Reconcile(ctx, user, []string{"12 Elm St", "9 Oak Ave"})
	require.NoError(t, err)
	assert.Equal(t, []string{"12 Elm St", "9 Oak Ave"}, store.LinkedTexts(user.ID))

	_, err = svc.Reconcile(ctx, user, []string{"9 Oak Ave"})
	require.NoError(t, err)
	assert.Equal(t, []string{"9 Oak Ave"}, store.LinkedTexts(user.ID))
	assert.False(t, store.HasAddress("12 Elm St"))
	assert.True(t, store.HasAddress("9 Oak Ave"))
}

func TestAddressService_SharedAddressSurvives(t *testing.T) {
	svc, store, users := newReconcileFixture(t, "u@x.com", "v@x.com")
	ctx := context.Background()
	u, v := users[0], users[1]

	_, err := svc.Reconcile(ctx, u, []string{"1 Shared Rd"})
	require.NoError(t, err)
	_, err = svc.Reconcile(ctx, v, []string{"1 Shared Rd"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.AddressCount())

	_, err = svc.Reconcile(ctx, u, nil)
	require.NoError(t, err)
	assert.Empty(t, store.LinkedTexts(u.ID))
	assert.Equal(t, []string{"1 Shared Rd"}, store.LinkedTexts(v.ID))
	assert.True(t, store.HasAddress("1 Shared Rd"))

	_, err = svc.Reconcile(ctx, v, []string{})
	require.NoError(t, err)
	assert.False(t, store.HasAddress("1 Shared Rd"))
	assert.Equal(t, 0, store.AddressCount())
}

func TestAddressService_Idempotent(t *testing.T) {
	svc, store, users := newReconcileFixture(t, "a@x.com")
	ctx := context.Background()
	desired := []string{"12 Elm St", "9 Oak Ave", "12 Elm St"}

	_, err := svc.Reconcile(ctx, users[0], desired)
	require.NoError(t, err)
	count := store.AddressCount()
	linked := store.LinkedTexts(users[0].ID)

	_, err = svc.Reconcile(ctx, users[0], desired)
	require.NoError(t, err)
	assert.Equal(t, count, store.AddressCount())
	assert.Equal(t, linked, store.LinkedTexts(users[0].ID))
	assert.Equal(t, []string{"12 Elm St", "9 Oak Ave"}, linked)
}

func TestAddressService_ReusesLowestIDDuplicate(t *testing.T) {
	svc, store, users := newReconcileFixture(t, "a@x.com")
	ctx := context.Background()
	store.InsertAddress(model.Address{ID: 1, UserAddress: "Dup Ln"})
	store.InsertAddress(model.Address{ID: 2, UserAddress: "Dup Ln"})

	user, err := svc.Reconcile(ctx, users[0], []string{"Dup Ln"})
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, user.AddressIDs())
}

func TestAddressService_RollsBackOnFailure(t *testing.T) {
	svc, store, users := newReconcileFixture(t, "a@x.com")
	ctx := context.Background()

	_, err := svc.Reconcile(ctx, users[0], []string{"12 Elm St"})
	require.NoError(t, err)

	store.SetUpdateError(errors.New("db down"))
	_, err = svc.Reconcile(ctx, users[0], []string{"9 Oak Ave"})
	assert.Error(t, err)
	assert.Equal(t, []string{"12 Elm St"}, store.LinkedTexts(users[0].ID))
	assert.False(t, store.HasAddress("9 Oak Ave"))
}

func TestAddressService_Validation(t *testing.T) {
	svc, _, users := newReconcileFixture(t, "a@x.com")

	_, err := svc.Reconcile(context.Background(), users[0], []string{strings.Repeat("x", MaxAddressLength+1)})
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "address")

	_, err = svc.Reconcile(context.Background(), nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	texts, err := ValidateAddresses([]string{"  1 Main St ", "", "   "})
	require.NoError(t, err)
	assert.Equal(t, []string{"1 Main St"}, texts)
}
