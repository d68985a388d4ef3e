package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"accounts/internal/auth"
	apperrors "accounts/internal/errors"
	"accounts/internal/metrics"
	"accounts/internal/repository/memory"
)

// MockTokenStore is a mock implementation of TokenStoreInterface.
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) StoreRefreshToken(ctx context.Context, tokenID string, userID uint, ttl time.Duration) error {
	args := m.Called(ctx, tokenID, userID, ttl)
	return args.Error(0)
}

func (m *MockTokenStore) GetRefreshToken(ctx context.Context, tokenID string) (uint, error) {
	args := m.Called(ctx, tokenID)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockTokenStore) DeleteRefreshToken(ctx context.Context, tokenID string) error {
	args := m.Called(ctx, tokenID)
	return args.Error(0)
}

func (m *MockTokenStore) BlacklistAccessToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	args := m.Called(ctx, tokenID, ttl)
	return args.Error(0)
}

func (m *MockTokenStore) IsAccessTokenBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

type authFixture struct {
	svc      AuthService
	accounts AccountService
	store    *memory.Store
	jwt      *auth.JWTService
	tokens   *MockTokenStore
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	accounts, store := newTestAccountService(t)
	jwtService := auth.NewJWTService("test-secret", time.Minute, time.Hour)
	tokens := new(MockTokenStore)
	return &authFixture{
		svc:      NewAuthService(accounts, store.Users(), jwtService, tokens, metrics.New()),
		accounts: accounts,
		store:    store,
		jwt:      jwtService,
		tokens:   tokens,
	}
}

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name       string
		input      RegisterInput
		wantFields []string
		wantErr    error
	}{
		{
			name:  "successful registration",
			input: RegisterInput{Email: "a@X.com", Name: "Ann", Password: "Str0ng!Pass9", RePassword: "Str0ng!Pass9"},
		},
		{
			name:       "passwords differ",
			input:      RegisterInput{Email: "a@x.com", Password: "Str0ng!Pass9", RePassword: "Str0ng!Pass8"},
			wantFields: []string{apperrors.NonFieldKey},
		},
		{
			name:       "policy violation",
			input:      RegisterInput{Email: "a@x.com", Password: "password", RePassword: "password"},
			wantFields: []string{"password"},
		},
		{
			name:       "missing email",
			input:      RegisterInput{Password: "Str0ng!Pass9", RePassword: "Str0ng!Pass9"},
			wantFields: []string{"email"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			user, err := f.svc.Register(context.Background(), tt.input)

			if tt.wantFields != nil {
				var verr *apperrors.ValidationError
				require.True(t, errors.As(err, &verr), "got %v", err)
				for _, field := range tt.wantFields {
					assert.Contains(t, verr.Fields, field)
				}
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a@x.com", user.Email)
			assert.Equal(t, "Ann", user.Name)
		})
	}
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	f := newAuthFixture(t)
	in := RegisterInput{Email: "a@x.com", Password: "Str0ng!Pass9", RePassword: "Str0ng!Pass9"}

	_, err := f.svc.Register(context.Background(), in)
	require.NoError(t, err)
	_, err = f.svc.Register(context.Background(), in)
	assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
}

func TestAuthService_Login(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	created, err := f.accounts.CreateUser(ctx, "a@x.com", "Str0ng!Pass9", UserFields{})
	require.NoError(t, err)

	f.tokens.On("StoreRefreshToken", mock.Anything, mock.AnythingOfType("string"), created.ID, time.Hour).Return(nil).Once()

	pair, user, err := f.svc.Login(ctx, "a@x.com", "Str0ng!Pass9")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
	require.NotNil(t, user.LastLogin)

	claims, err := f.jwt.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	refresh, err := f.jwt.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, refresh.ID, claims.SessionID)

	stored, err := f.store.Users().FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLogin)

	f.tokens.AssertExpectations(t)
}

func TestAuthService_LoginRejectsBadCredentials(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.accounts.CreateUser(ctx, "a@x.com", "Str0ng!Pass9", UserFields{})
	require.NoError(t, err)

	_, _, err = f.svc.Login(ctx, "a@x.com", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, _, err = f.svc.Login(ctx, "ghost@x.com", "Str0ng!Pass9")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	f.tokens.AssertNotCalled(t, "StoreRefreshToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthService_Refresh(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user, err := f.accounts.CreateUser(ctx, "a@x.com", "Str0ng!Pass9", UserFields{})
	require.NoError(t, err)

	sessionID, refreshToken, err := f.jwt.GenerateRefreshToken(user)
	require.NoError(t, err)
	f.tokens.On("GetRefreshToken", mock.Anything, sessionID).Return(user.ID, nil).Once()

	access, err := f.svc.Refresh(ctx, refreshToken)
	require.NoError(t, err)
	claims, err := f.jwt.ValidateAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, sessionID, claims.SessionID)

	f.tokens.On("GetRefreshToken", mock.Anything, sessionID).Return(uint(0), auth.ErrRefreshTokenNotFound).Once()
	_, err = f.svc.Refresh(ctx, refreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, accessToken, err := f.jwt.GenerateAccessToken(user, sessionID)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, accessToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	f.tokens.AssertExpectations(t)
}

func TestAuthService_Logout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user, err := f.accounts.CreateUser(ctx, "a@x.com", "Str0ng!Pass9", UserFields{})
	require.NoError(t, err)

	_, token, err := f.jwt.GenerateAccessToken(user, "session-1")
	require.NoError(t, err)
	claims, err := f.jwt.ValidateAccessToken(token)
	require.NoError(t, err)

	f.tokens.On("BlacklistAccessToken", mock.Anything, claims.ID, mock.AnythingOfType("time.Duration")).Return(nil).Once()
	f.tokens.On("DeleteRefreshToken", mock.Anything, "session-1").Return(nil).Once()

	require.NoError(t, f.svc.Logout(ctx, claims))
	assert.ErrorIs(t, f.svc.Logout(ctx, nil), apperrors.ErrUnauthorized)

	f.tokens.AssertExpectations(t)
}
