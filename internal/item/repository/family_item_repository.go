package repository

import (
	"context"

	itemdomain "famhub-backend/internal/item/domain"

	"gorm.io/gorm"
)

// FamilyItemRepository defines the interface for family item persistence
type FamilyItemRepository interface {
	// Create inserts a new item
	Create(ctx context.Context, item *itemdomain.FamilyItem) error
	// FindByID returns the item, or nil if it does not exist
	FindByID(ctx context.Context, familyID, itemID string) (*itemdomain.FamilyItem, error)
	// Update persists the item's mutable enrichment fields
	Update(ctx context.Context, item *itemdomain.FamilyItem) error
}

type familyItemRepository struct {
	db *gorm.DB
}

func NewFamilyItemRepository(db *gorm.DB) FamilyItemRepository {
	return &familyItemRepository{db: db}
}

func (r *familyItemRepository) Create(ctx context.Context, item *itemdomain.FamilyItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *familyItemRepository) FindByID(ctx context.Context, familyID, itemID string) (*itemdomain.FamilyItem, error) {
	var item itemdomain.FamilyItem
	err := r.db.WithContext(ctx).
		Where("family_id = ? AND id = ?", familyID, itemID).
		First(&item).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *familyItemRepository) Update(ctx context.Context, item *itemdomain.FamilyItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}
