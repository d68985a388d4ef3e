package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	apperrors "accounts/internal/errors"
	"accounts/internal/metrics"
	"accounts/internal/model"
	"accounts/internal/repository"
)

const (
	bcryptCost = 10

	// unusablePasswordPrefix marks a hash that no password can match.
	unusablePasswordPrefix = "!"
)

// dummyHash is compared against when the email is unknown so both failure
// paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("accounts-dummy-password"), bcryptCost)

// UserFields carries the optional attributes of a new user. Nil flags take
// the default of the constructor being called.
type UserFields struct {
	Name        string
	IsStaff     *bool
	IsSuperuser *bool
}

// AccountService creates users and manages their credentials.
type AccountService interface {
	CreateUser(ctx context.Context, email, password string, extra UserFields) (*model.User, error)
	CreateSuperuser(ctx context.Context, email, password string, extra UserFields) (*model.User, error)
	Authenticate(ctx context.Context, email, password string) (*model.User, error)
	SetPassword(ctx context.Context, user *model.User, password string) error
	ValidatePassword(password string, user *model.User) error
}

type accountService struct {
	store     repository.Store
	validator *PasswordValidator
	metrics   *metrics.Metrics
}

// NewAccountService creates a new account service.
func NewAccountService(store repository.Store, validator *PasswordValidator, m *metrics.Metrics) AccountService {
	return &accountService{
		store:     store,
		validator: validator,
		metrics:   m,
	}
}

// NormalizeEmail lower-cases the domain part of email. The local part is
// kept as given.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

func (s *accountService) CreateUser(ctx context.Context, email, password string, extra UserFields) (*model.User, error) {
	return s.createUser(ctx, email, password, extra, false)
}

func (s *accountService) CreateSuperuser(ctx context.Context, email, password string, extra UserFields) (*model.User, error) {
	if extra.IsStaff != nil && !*extra.IsStaff {
		return nil, apperrors.NewValidationError("is_staff", "Superuser must have is_staff=True.")
	}
	if extra.IsSuperuser != nil && !*extra.IsSuperuser {
		return nil, apperrors.NewValidationError("is_superuser", "Superuser must have is_superuser=True.")
	}
	return s.createUser(ctx, email, password, extra, true)
}

func (s *accountService) createUser(ctx context.Context, email, password string, extra UserFields, elevated bool) (*model.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperrors.NewValidationError("email", "The Email must be set")
	}
	email = NormalizeEmail(email)

	if _, err := s.store.Users().FindByEmail(ctx, email); err == nil {
		return nil, apperrors.ErrUserAlreadyExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check user existence: %w", err)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:        email,
		Name:         extra.Name,
		PasswordHash: hash,
		IsStaff:      flagOr(extra.IsStaff, elevated),
		IsSuperuser:  flagOr(extra.IsSuperuser, elevated),
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.metrics.UserRegistered()
	log.Info().Uint("user_id", user.ID).Bool("staff", user.IsStaff).Msg("user created")
	return user, nil
}

// Authenticate returns the user matching the credentials, or nil when the
// email is unknown or the password does not match. The two cases are not
// distinguished.
func (s *accountService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	if email == "" || password == "" {
		return nil, nil
	}

	user, err := s.store.Users().FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !checkPassword(user.PasswordHash, password) {
		return nil, nil
	}
	return user, nil
}

// SetPassword applies the password policy, stores the new hash and clears
// the pending reset flag.
func (s *accountService) SetPassword(ctx context.Context, user *model.User, password string) error {
	if user == nil {
		return apperrors.ErrNotFound
	}
	if err := s.ValidatePassword(password, user); err != nil {
		return err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.HasRequestedPasswordReset = false

	if err := s.store.Users().Update(ctx, user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	log.Info().Uint("user_id", user.ID).Msg("password changed")
	return nil
}

// ValidatePassword runs the password policy without changing anything.
func (s *accountService) ValidatePassword(password string, user *model.User) error {
	if verr := s.validator.Validate(password, user); verr != nil {
		return verr
	}
	return nil
}

func hashPassword(password string) (string, error) {
	if password == "" {
		buf := make([]byte, 20)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("random: %w", err)
		}
		return unusablePasswordPrefix + hex.EncodeToString(buf), nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	if hash == "" || strings.HasPrefix(hash, unusablePasswordPrefix) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func flagOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
