package repository

import (
	"context"
	"errors"
	"time"

	accountdomain "famhub-backend/internal/account/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no matching active account exists.
var ErrNotFound = errors.New("linked account not found")

// LinkedAccountRepository defines the interface for linked account persistence
type LinkedAccountRepository interface {
	// Upsert creates or replaces the account identified by (provider, linked_email)
	Upsert(ctx context.Context, account *accountdomain.LinkedAccount) error
	// ListActive returns all active accounts for a provider
	ListActive(ctx context.Context, provider string) ([]*accountdomain.LinkedAccount, error)
	// FindActive returns the active account for (provider, linked_email), ErrNotFound otherwise
	FindActive(ctx context.Context, provider, linkedEmail string) (*accountdomain.LinkedAccount, error)
	// AdvanceCheckpoint moves last_fetched_at forward; earlier timestamps are a no-op
	AdvanceCheckpoint(ctx context.Context, provider, linkedEmail string, ts time.Time) error
	// UpdateTokens replaces the stored (encrypted) tokens
	UpdateTokens(ctx context.Context, provider, linkedEmail, accessToken, refreshToken string, expiry time.Time) error
	// Deactivate clears is_active
	Deactivate(ctx context.Context, provider, linkedEmail string) error
}

// linkedAccountRepository implements LinkedAccountRepository on GORM
type linkedAccountRepository struct {
	db *gorm.DB
}

func NewLinkedAccountRepository(db *gorm.DB) LinkedAccountRepository {
	return &linkedAccountRepository{db: db}
}

func (r *linkedAccountRepository) Upsert(ctx context.Context, account *accountdomain.LinkedAccount) error {
	var existing accountdomain.LinkedAccount
	err := r.db.WithContext(ctx).
		Where("provider = ? AND linked_email = ?", account.Provider, account.LinkedEmail).
		First(&existing).Error

	now := time.Now().UTC()
	if err == gorm.ErrRecordNotFound {
		if account.ID == "" {
			account.ID = uuid.New().String()
		}
		account.CreatedAt = now
		account.UpdatedAt = now
		return r.db.WithContext(ctx).Create(account).Error
	} else if err != nil {
		return err
	}

	existing.UserID = account.UserID
	existing.FamilyID = account.FamilyID
	existing.AccessToken = account.AccessToken
	existing.RefreshToken = account.RefreshToken
	existing.TokenExpiry = account.TokenExpiry
	existing.IsActive = true
	existing.UpdatedAt = now
	if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
		return err
	}
	*account = existing
	return nil
}

func (r *linkedAccountRepository) ListActive(ctx context.Context, provider string) ([]*accountdomain.LinkedAccount, error) {
	var accounts []*accountdomain.LinkedAccount
	err := r.db.WithContext(ctx).
		Where("provider = ? AND is_active = ?", provider, true).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *linkedAccountRepository) FindActive(ctx context.Context, provider, linkedEmail string) (*accountdomain.LinkedAccount, error) {
	var account accountdomain.LinkedAccount
	err := r.db.WithContext(ctx).
		Where("provider = ? AND linked_email = ? AND is_active = ?", provider, linkedEmail, true).
		First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// AdvanceCheckpoint relies on the conditional update to keep the checkpoint
// monotonic even if another worker advanced it concurrently.
func (r *linkedAccountRepository) AdvanceCheckpoint(ctx context.Context, provider, linkedEmail string, ts time.Time) error {
	if _, err := r.FindActive(ctx, provider, linkedEmail); err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Model(&accountdomain.LinkedAccount{}).
		Where("provider = ? AND linked_email = ? AND is_active = ? AND last_fetched_at <= ?",
			provider, linkedEmail, true, ts).
		Updates(map[string]interface{}{
			"last_fetched_at": ts,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *linkedAccountRepository) UpdateTokens(ctx context.Context, provider, linkedEmail, accessToken, refreshToken string, expiry time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&accountdomain.LinkedAccount{}).
		Where("provider = ? AND linked_email = ? AND is_active = ?", provider, linkedEmail, true).
		Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"token_expiry":  expiry,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *linkedAccountRepository) Deactivate(ctx context.Context, provider, linkedEmail string) error {
	res := r.db.WithContext(ctx).
		Model(&accountdomain.LinkedAccount{}).
		Where("provider = ? AND linked_email = ? AND is_active = ?", provider, linkedEmail, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
