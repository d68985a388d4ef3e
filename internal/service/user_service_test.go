package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounts/internal/access"
	apperrors "accounts/internal/errors"
	"accounts/internal/metrics"
	"accounts/internal/model"
	"accounts/internal/repository/memory"
)

type memObjects struct {
	mu      sync.Mutex
	objects map[string]string
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string]string{}
	}
	m.objects[key] = string(data)
	return nil
}

func (m *memObjects) URL(_ context.Context, key string) (string, error) {
	return "/media/" + key, nil
}

type userFixture struct {
	svc     UserService
	store   *memory.Store
	objects *memObjects
	alice   *model.User
	bob     *model.User
	admin   *model.User
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()
	store := memory.NewStore()
	objects := &memObjects{}
	ctx := context.Background()

	f := &userFixture{
		svc:     NewUserService(store, NewAddressService(store, metrics.New()), objects, nil),
		store:   store,
		objects: objects,
		alice:   &model.User{Email: "alice@x.com"},
		bob:     &model.User{Email: "bob@x.com"},
		admin:   &model.User{Email: "admin@x.com", IsStaff: true},
	}
	for _, u := range []*model.User{f.alice, f.bob, f.admin} {
		require.NoError(t, store.Users().Create(ctx, u))
	}
	return f
}

func strPtr(s string) *string { return &s }

func TestUserService_GetUser(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	got, err := f.svc.GetUser(ctx, access.ForUser(f.alice), f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", got.Email)

	_, err = f.svc.GetUser(ctx, access.ForUser(f.alice), f.bob.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.svc.GetUser(ctx, access.Anonymous(), f.alice.ID)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	got, err = f.svc.GetUser(ctx, access.ForUser(f.admin), f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob@x.com", got.Email)

	_, err = f.svc.GetUser(ctx, access.ForUser(f.admin), 999)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserService_Me(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	users, err := f.svc.Me(ctx, access.ForUser(f.bob))
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, f.bob.ID, users[0].ID)

	users, err = f.svc.Me(ctx, access.ForUser(f.admin))
	require.NoError(t, err)
	assert.Len(t, users, 3)

	_, err = f.svc.Me(ctx, access.Anonymous())
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestUserService_UpdateUser(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	updated, err := f.svc.UpdateUser(ctx, access.ForUser(f.alice), f.alice.ID, UpdateInput{
		Name:      strPtr("Alice"),
		Addresses: []string{"12 Elm St", "9 Oak Ave"},
		Image: &ImageUpload{
			Filename:    "Me.PNG",
			ContentType: "image/png",
			Size:        3,
			Body:        strings.NewReader("png"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.Name)
	assert.Equal(t, "1/Me.PNG", updated.ProfileImage)
	assert.Equal(t, "png", f.objects.objects["1/Me.PNG"])
	assert.Equal(t, []string{"12 Elm St", "9 Oak Ave"}, f.store.LinkedTexts(f.alice.ID))

	url, err := f.svc.ProfileImageURL(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, "/media/1/Me.PNG", url)

	stored, err := f.store.Users().FindByID(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.Name)
	assert.Equal(t, "1/Me.PNG", stored.ProfileImage)

	// Leaving Addresses nil keeps the current links.
	_, err = f.svc.UpdateUser(ctx, access.ForUser(f.alice), f.alice.ID, UpdateInput{Name: strPtr("Al")})
	require.NoError(t, err)
	assert.Len(t, f.store.LinkedTexts(f.alice.ID), 2)
}

func TestUserService_UpdateUserRules(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateUser(ctx, access.ForUser(f.alice), f.bob.ID, UpdateInput{Name: strPtr("x")})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.svc.UpdateUser(ctx, access.Anonymous(), f.bob.ID, UpdateInput{})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = f.svc.UpdateUser(ctx, access.ForUser(f.admin), f.bob.ID, UpdateInput{Name: strPtr("Bobby")})
	assert.NoError(t, err)

	_, err = f.svc.UpdateUser(ctx, access.ForUser(f.alice), f.alice.ID, UpdateInput{
		Name:  strPtr(strings.Repeat("n", MaxNameLength+1)),
		Image: &ImageUpload{Filename: "me.gif", Body: strings.NewReader("gif")},
	})
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "profile_image")
	assert.Empty(t, f.objects.objects)
}

func TestUserService_ProfileImageURLEmpty(t *testing.T) {
	f := newUserFixture(t)
	url, err := f.svc.ProfileImageURL(context.Background(), f.alice)
	require.NoError(t, err)
	assert.Empty(t, url)
}
