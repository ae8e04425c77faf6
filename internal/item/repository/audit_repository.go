package repository

import (
	"context"
	"time"

	itemdomain "famhub-backend/internal/item/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditRepository defines the interface for AI exchange audit records
type AuditRepository interface {
	// Save writes one audit record with its TTL
	Save(ctx context.Context, familyID, itemID, prompt, response string, ttl time.Duration) error
	// PurgeExpired deletes records past their expiry, returning the count
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Save(ctx context.Context, familyID, itemID, prompt, response string, ttl time.Duration) error {
	now := time.Now().UTC()
	record := &itemdomain.AuditRecord{
		ID:           uuid.New().String(),
		FamilyID:     familyID,
		FamilyItemID: itemID,
		Prompt:       prompt,
		Response:     response,
		TTLSeconds:   int(ttl.Seconds()),
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// PurgeExpired stands in for the document store's native TTL expiry.
func (r *auditRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&itemdomain.AuditRecord{})
	return res.RowsAffected, res.Error
}
