package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"accounts/internal/auth"
	apperrors "accounts/internal/errors"
	"accounts/internal/metrics"
	"accounts/internal/model"
)

var (
	// ErrInvalidCredentials is returned when email or password is incorrect.
	ErrInvalidCredentials = fmt.Errorf("invalid email or password: %w", apperrors.ErrUnauthorized)
	// ErrInvalidRefreshToken is returned when refresh token is invalid or expired.
	ErrInvalidRefreshToken = fmt.Errorf("invalid or expired refresh token: %w", apperrors.ErrUnauthorized)
)

// RegisterInput is the data accepted by Register.
type RegisterInput struct {
	Email      string
	Name       string
	Password   string
	RePassword string
}

// TokenPair is returned by a successful login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthService handles authentication operations.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*model.User, error)
	Login(ctx context.Context, email, password string) (*TokenPair, *model.User, error)
	Refresh(ctx context.Context, refreshToken string) (accessToken string, err error)
	Logout(ctx context.Context, claims *auth.Claims) error
}

type authService struct {
	accounts   AccountService
	users      UserStore
	jwtService *auth.JWTService
	tokenStore auth.TokenStoreInterface
	metrics    *metrics.Metrics
	now        func() time.Time
}

// UserStore is the part of the user repository the auth service needs.
type UserStore interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
}

// NewAuthService creates a new authentication service.
func NewAuthService(accounts AccountService, users UserStore, jwtService *auth.JWTService, tokenStore auth.TokenStoreInterface, m *metrics.Metrics) AuthService {
	return &authService{
		accounts:   accounts,
		users:      users,
		jwtService: jwtService,
		tokenStore: tokenStore,
		metrics:    m,
		now:        time.Now,
	}
}

// Register checks the confirmation and the password policy, then creates
// a regular user.
func (s *authService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if in.Password != in.RePassword {
		return nil, apperrors.NewValidationError(apperrors.NonFieldKey, "Password not same")
	}

	candidate := &model.User{Email: NormalizeEmail(in.Email), Name: in.Name}
	if err := s.accounts.ValidatePassword(in.Password, candidate); err != nil {
		return nil, err
	}

	return s.accounts.CreateUser(ctx, in.Email, in.Password, UserFields{Name: in.Name})
}

// Login authenticates the credentials and issues an access/refresh pair.
func (s *authService) Login(ctx context.Context, email, password string) (*TokenPair, *model.User, error) {
	user, err := s.accounts.Authenticate(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		s.metrics.LoginAttempt(false)
		return nil, nil, ErrInvalidCredentials
	}

	sessionID, refreshToken, err := s.jwtService.GenerateRefreshToken(user)
	if err != nil {
		return nil, nil, fmt.Errorf("generate refresh token: %w", err)
	}
	_, accessToken, err := s.jwtService.GenerateAccessToken(user, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("generate access token: %w", err)
	}

	if err := s.tokenStore.StoreRefreshToken(ctx, sessionID, user.ID, s.jwtService.RefreshTTL()); err != nil {
		return nil, nil, fmt.Errorf("store refresh token: %w", err)
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		log.Warn().Err(err).Uint("user_id", user.ID).Msg("update last login failed")
	} else {
		user.LastLogin = &now
	}

	s.metrics.LoginAttempt(true)
	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, user, nil
}

// Refresh validates a refresh token and returns a new access token.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", ErrInvalidRefreshToken
	}

	storedUserID, err := s.tokenStore.GetRefreshToken(ctx, claims.ID)
	if err != nil || storedUserID != claims.UserID {
		return "", ErrInvalidRefreshToken
	}

	// Reload so a changed staff flag reaches the new access token.
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return "", ErrInvalidRefreshToken
	}

	_, accessToken, err := s.jwtService.GenerateAccessToken(user, claims.ID)
	if err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return accessToken, nil
}

// Logout revokes the access token in claims and the refresh token it was
// issued with.
func (s *authService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return apperrors.ErrUnauthorized
	}
	if err := s.tokenStore.BlacklistAccessToken(ctx, claims.ID, s.jwtService.Remaining(claims)); err != nil {
		return fmt.Errorf("blacklist access token: %w", err)
	}
	if claims.SessionID != "" {
		if err := s.tokenStore.DeleteRefreshToken(ctx, claims.SessionID); err != nil && !errors.Is(err, auth.ErrRefreshTokenNotFound) {
			return fmt.Errorf("delete refresh token: %w", err)
		}
	}
	log.Info().Uint("user_id", claims.UserID).Msg("user logged out")
	return nil
}
