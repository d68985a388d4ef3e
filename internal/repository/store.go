package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories that must change together inside one transaction.
type Store interface {
	Users() UserRepository
	Addresses() AddressRepository
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a Store backed by db.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Users() UserRepository {
	return NewUserRepository(s.db)
}

func (s *gormStore) Addresses() AddressRepository {
	return NewAddressRepository(s.db)
}

// WithTransaction executes fn within a database transaction.
func (s *gormStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &gormStore{db: tx})
	})
}
