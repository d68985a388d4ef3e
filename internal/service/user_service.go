package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"accounts/internal/access"
	"accounts/internal/cache"
	apperrors "accounts/internal/errors"
	"accounts/internal/model"
	"accounts/internal/repository"
	"accounts/internal/storage"
)

const (
	userCacheTTL = 5 * time.Minute

	// MaxNameLength bounds User.Name.
	MaxNameLength = 50
)

// ImageUpload is a profile image received from a client.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UpdateInput lists the fields a profile update may change. Nil leaves the
// field as it is; a non-nil empty Addresses clears every address.
type UpdateInput struct {
	Name      *string
	Addresses []string
	Image     *ImageUpload
}

// UserService exposes profile operations on behalf of a principal.
type UserService interface {
	GetUser(ctx context.Context, p access.Principal, id uint) (*model.User, error)
	Me(ctx context.Context, p access.Principal) ([]model.User, error)
	UpdateUser(ctx context.Context, p access.Principal, id uint, in UpdateInput) (*model.User, error)
	ProfileImageURL(ctx context.Context, user *model.User) (string, error)
	Invalidate(ctx context.Context, id uint)
}

type userService struct {
	store     repository.Store
	addresses AddressService
	objects   storage.ObjectStore
	cache     *cache.Client
}

// NewUserService builds a UserService with repository, storage and cache.
func NewUserService(store repository.Store, addresses AddressService, objects storage.ObjectStore, cache *cache.Client) UserService {
	return &userService{
		store:     store,
		addresses: addresses,
		objects:   objects,
		cache:     cache,
	}
}

func (s *userService) cacheKey(id uint) string {
	return fmt.Sprintf("user:%d", id)
}

func (s *userService) GetUser(ctx context.Context, p access.Principal, id uint) (*model.User, error) {
	if err := p.CanModify(id); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *userService) load(ctx context.Context, id uint) (*model.User, error) {
	if data, _ := s.cache.Get(ctx, s.cacheKey(id)); data != nil {
		var cached model.User
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	user, err := s.store.Users().FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}

	if payload, err := json.Marshal(user); err == nil {
		_ = s.cache.Set(ctx, s.cacheKey(id), payload, userCacheTTL)
	}
	return user, nil
}

// Me returns the caller, or every user when the caller is staff.
func (s *userService) Me(ctx context.Context, p access.Principal) ([]model.User, error) {
	if err := p.RequireAuthenticated(); err != nil {
		return nil, err
	}
	if p.Kind == access.KindStaff {
		users, err := s.store.Users().List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		return users, nil
	}

	user, err := s.load(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	return p.Visible([]model.User{*user}), nil
}

func (s *userService) UpdateUser(ctx context.Context, p access.Principal, id uint, in UpdateInput) (*model.User, error) {
	if err := p.CanModify(id); err != nil {
		return nil, err
	}

	verr := &apperrors.ValidationError{}
	if in.Name != nil && utf8.RuneCountInString(*in.Name) > MaxNameLength {
		verr.Add("name", fmt.Sprintf("Ensure this field has no more than %d characters.", MaxNameLength))
	}
	if in.Image != nil && !model.IsAllowedImage(in.Image.Filename) {
		verr.Add("profile_image", "File extension is not allowed. Allowed extensions are: jpg, jpeg, png.")
	}
	if in.Addresses != nil {
		if _, err := ValidateAddresses(in.Addresses); err != nil {
			var aerr *apperrors.ValidationError
			if errors.As(err, &aerr) {
				verr.Merge(aerr)
			}
		}
	}
	if !verr.Empty() {
		return nil, verr
	}

	user, err := s.store.Users().FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}

	if in.Name != nil {
		user.Name = *in.Name
	}
	if in.Image != nil {
		key := storage.ObjectKey(user.ID, in.Image.Filename)
		if err := s.objects.Put(ctx, key, in.Image.Body, in.Image.Size, in.Image.ContentType); err != nil {
			return nil, fmt.Errorf("store profile image: %w", err)
		}
		user.ProfileImage = key
	}

	if in.Addresses != nil {
		user, err = s.addresses.Reconcile(ctx, user, in.Addresses)
		if err != nil {
			return nil, err
		}
	} else if err := s.store.Users().Update(ctx, user); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}

	s.Invalidate(ctx, user.ID)
	log.Info().Uint("user_id", user.ID).Uint("by", p.UserID).Msg("user updated")
	return user, nil
}

// ProfileImageURL resolves the public URL of the user's image, or "" when none is set.
func (s *userService) ProfileImageURL(ctx context.Context, user *model.User) (string, error) {
	if user == nil || user.ProfileImage == "" || s.objects == nil {
		return "", nil
	}
	return s.objects.URL(ctx, user.ProfileImage)
}

// Invalidate drops the cached copy of a user.
func (s *userService) Invalidate(ctx context.Context, id uint) {
	_ = s.cache.Delete(ctx, s.cacheKey(id))
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.ErrNotFound
	}
	return err
}
