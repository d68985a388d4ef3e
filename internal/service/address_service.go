package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	apperrors "accounts/internal/errors"
	"accounts/internal/metrics"
	"accounts/internal/model"
	"accounts/internal/repository"
)

// MaxAddressLength bounds the text of a single address.
const MaxAddressLength = 200

// AddressService keeps a user's address links in step with a desired list.
type AddressService interface {
	Reconcile(ctx context.Context, user *model.User, desired []string) (*model.User, error)
}

type addressService struct {
	store   repository.Store
	metrics *metrics.Metrics
}

// NewAddressService creates a new address service.
func NewAddressService(store repository.Store, m *metrics.Metrics) AddressService {
	return &addressService{store: store, metrics: m}
}

// ValidateAddresses trims every entry and checks its length. Blank entries
// are dropped; the rest are returned in input order.
func ValidateAddresses(desired []string) ([]string, error) {
	verr := &apperrors.ValidationError{}
	out := make([]string, 0, len(desired))
	for _, text := range desired {
		text = strings.TrimSpace(text)
		switch {
		case text == "":
		case utf8.RuneCountInString(text) > MaxAddressLength:
			verr.Add("address", fmt.Sprintf("Ensure this field has no more than %d characters.", MaxAddressLength))
		default:
			out = append(out, text)
		}
	}
	if !verr.Empty() {
		return nil, verr
	}
	return out, nil
}

// Reconcile makes desired the complete address set of user. Addresses that
// drop out are unlinked; those no other user references are deleted. The
// whole change commits or rolls back as one unit.
func (s *addressService) Reconcile(ctx context.Context, user *model.User, desired []string) (*model.User, error) {
	if user == nil {
		return nil, apperrors.ErrNotFound
	}
	texts, err := ValidateAddresses(desired)
	if err != nil {
		return nil, err
	}

	var deleted int64
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx repository.Store) error {
		keep := make([]model.Address, 0, len(texts))
		keepIDs := make(map[uint]struct{}, len(texts))
		for _, text := range texts {
			address, err := tx.Addresses().GetOrCreate(ctx, text)
			if err != nil {
				return fmt.Errorf("get or create address: %w", err)
			}
			if _, dup := keepIDs[address.ID]; dup {
				continue
			}
			keepIDs[address.ID] = struct{}{}
			keep = append(keep, *address)
		}

		current, err := tx.Addresses().ListByUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("list addresses: %w", err)
		}
		var remove []uint
		for _, a := range current {
			if _, ok := keepIDs[a.ID]; !ok {
				remove = append(remove, a.ID)
			}
		}

		counts, err := tx.Addresses().CountReferences(ctx, remove)
		if err != nil {
			return fmt.Errorf("count address references: %w", err)
		}
		var orphans []uint
		for _, id := range remove {
			if counts[id] <= 1 {
				orphans = append(orphans, id)
			}
		}

		if err := tx.Users().ReplaceAddresses(ctx, user, keep); err != nil {
			return fmt.Errorf("replace addresses: %w", err)
		}
		if err := tx.Users().Update(ctx, user); err != nil {
			return fmt.Errorf("save user: %w", err)
		}

		deleted, err = tx.Addresses().DeleteUnreferenced(ctx, orphans)
		if err != nil {
			return fmt.Errorf("delete orphaned addresses: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddressesDeleted(deleted)
	log.Debug().
		Uint("user_id", user.ID).
		Int("linked", len(user.Addresses)).
		Int64("deleted", deleted).
		Msg("addresses reconciled")
	return user, nil
}
