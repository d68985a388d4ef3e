package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	apperrors "accounts/internal/errors"
	"accounts/internal/mailer"
	"accounts/internal/metrics"
	"accounts/internal/model"
	"accounts/internal/repository"
)

// ResetPathPrefix is the route prefix reset links point at.
const ResetPathPrefix = "/api/users/reset-password/"

// ResetTokens issues and checks password reset tokens.
type ResetTokens interface {
	Issue(user *model.User) string
	Verify(user *model.User, token string) bool
}

// PasswordResetService runs the forgot-password flow.
type PasswordResetService interface {
	RequestReset(ctx context.Context, email string) error
	CheckToken(ctx context.Context, uid, token string) (*model.User, error)
	ResetPassword(ctx context.Context, uid, token, password, confirm string) error
}

type passwordResetService struct {
	store    repository.Store
	accounts AccountService
	users    UserService
	tokens   ResetTokens
	sender   mailer.Sender
	metrics  *metrics.Metrics
	baseURL  string
}

// NewPasswordResetService creates the reset flow. Links in mails are built
// from baseURL.
func NewPasswordResetService(
	store repository.Store,
	accounts AccountService,
	users UserService,
	tokens ResetTokens,
	sender mailer.Sender,
	m *metrics.Metrics,
	baseURL string,
) PasswordResetService {
	return &passwordResetService{
		store:    store,
		accounts: accounts,
		users:    users,
		tokens:   tokens,
		sender:   sender,
		metrics:  m,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}
}

// EncodeUID encodes a user id for use in a reset link.
func EncodeUID(id uint) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatUint(uint64(id), 10)))
}

// DecodeUID reverses EncodeUID. Padded input is accepted.
func DecodeUID(uid string) (uint, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(uid, "="))
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// ResetLink builds the absolute link mailed to the user.
func (s *passwordResetService) ResetLink(user *model.User, token string) string {
	return s.baseURL + ResetPathPrefix + EncodeUID(user.ID) + "/" + token
}

// RequestReset marks the account as awaiting a reset and mails the link.
// The flag is saved before sending; when delivery fails ErrMailDelivery is
// returned and the flag stays set.
func (s *passwordResetService) RequestReset(ctx context.Context, email string) error {
	user, err := s.store.Users().FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}

	user.HasRequestedPasswordReset = true
	if err := s.store.Users().Update(ctx, user); err != nil {
		return fmt.Errorf("save reset flag: %w", err)
	}
	s.users.Invalidate(ctx, user.ID)

	body, err := mailer.RenderPasswordReset(mailer.PasswordResetData{
		Name:  user.Name,
		Email: user.Email,
		Link:  s.ResetLink(user, s.tokens.Issue(user)),
	})
	if err != nil {
		return err
	}

	if err := s.sender.Send(ctx, mailer.PasswordResetSubject, user.Email, body); err != nil {
		s.metrics.ResetMail(false)
		log.Error().Err(err).Uint("user_id", user.ID).Msg("reset mail delivery failed")
		return fmt.Errorf("%w: %v", apperrors.ErrMailDelivery, err)
	}
	s.metrics.ResetMail(true)
	log.Info().Uint("user_id", user.ID).Msg("reset mail sent")
	return nil
}

// CheckToken returns the user a link belongs to when the token is valid.
// Every failure is reported as ErrInvalidToken.
func (s *passwordResetService) CheckToken(ctx context.Context, uid, token string) (*model.User, error) {
	id, err := DecodeUID(uid)
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}
	user, err := s.store.Users().FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error().Err(err).Uint("user_id", id).Msg("load user for reset failed")
		}
		return nil, apperrors.ErrInvalidToken
	}
	if !s.tokens.Verify(user, token) {
		return nil, apperrors.ErrInvalidToken
	}
	return user, nil
}

// ResetPassword checks the link, the confirmation and the password policy,
// then stores the new password.
func (s *passwordResetService) ResetPassword(ctx context.Context, uid, token, password, confirm string) error {
	user, err := s.CheckToken(ctx, uid, token)
	if err != nil {
		return err
	}
	if password != confirm {
		return apperrors.NewValidationError(apperrors.NonFieldKey, "Password not same")
	}
	if err := s.accounts.SetPassword(ctx, user, password); err != nil {
		return err
	}

	s.users.Invalidate(ctx, user.ID)
	s.metrics.PasswordReset()
	return nil
}
