package repository

import (
	"context"

	"gorm.io/gorm"

	"accounts/internal/model"
)

// AddressRepository defines address persistence operations.
type AddressRepository interface {
	GetOrCreate(ctx context.Context, text string) (*model.Address, error)
	CountReferences(ctx context.Context, ids []uint) (map[uint]int64, error)
	DeleteUnreferenced(ctx context.Context, ids []uint) (int64, error)
	ListByUser(ctx context.Context, userID uint) ([]model.Address, error)
}

type addressRepository struct {
	db *gorm.DB
}

// NewAddressRepository creates a new address repository.
func NewAddressRepository(db *gorm.DB) AddressRepository {
	return &addressRepository{db: db}
}

// GetOrCreate returns the lowest-id address whose text matches exactly, creating one if none exists.
func (r *addressRepository) GetOrCreate(ctx context.Context, text string) (*model.Address, error) {
	var address model.Address
	err := r.db.WithContext(ctx).
		Where("user_address = ?", text).
		Order("id").
		FirstOrCreate(&address, model.Address{UserAddress: text}).Error
	if err != nil {
		return nil, err
	}
	return &address, nil
}

// CountReferences returns the number of users linking to each id. Ids with no
// links are reported as zero.
func (r *addressRepository) CountReferences(ctx context.Context, ids []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}
	for _, id := range ids {
		counts[id] = 0
	}

	var rows []struct {
		AddressID uint
		Refs      int64
	}
	err := r.db.WithContext(ctx).
		Table("user_addresses").
		Select("address_id, COUNT(*) AS refs").
		Where("address_id IN ?", ids).
		Group("address_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.AddressID] = row.Refs
	}
	return counts, nil
}

// DeleteUnreferenced hard-deletes the given ids that no user links to.
// Ids that are already gone, or that gained a referrer, are skipped.
func (r *addressRepository) DeleteUnreferenced(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Where("NOT EXISTS (SELECT 1 FROM user_addresses ua WHERE ua.address_id = addresses.id)").
		Delete(&model.Address{})
	return res.RowsAffected, res.Error
}

func (r *addressRepository) ListByUser(ctx context.Context, userID uint) ([]model.Address, error) {
	var addresses []model.Address
	err := r.db.WithContext(ctx).
		Joins("JOIN user_addresses ua ON ua.address_id = addresses.id").
		Where("ua.user_id = ?", userID).
		Order("addresses.id").
		Find(&addresses).Error
	if err != nil {
		return nil, err
	}
	return addresses, nil
}
