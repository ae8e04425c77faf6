package repository

import (
	"context"

	familydomain "famhub-backend/internal/family/domain"

	"gorm.io/gorm"
)

// FamilyRepository defines the interface for family lookups
type FamilyRepository interface {
	// FindByID returns the family, or nil if it does not exist
	FindByID(ctx context.Context, id string) (*familydomain.Family, error)
}

type familyRepository struct {
	db *gorm.DB
}

func NewFamilyRepository(db *gorm.DB) FamilyRepository {
	return &familyRepository{db: db}
}

func (r *familyRepository) FindByID(ctx context.Context, id string) (*familydomain.Family, error) {
	var family familydomain.Family
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&family).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &family, nil
}
