package domain

import "time"

// LinkedAccount binds a user's external mailbox to a family. Token columns
// hold vault ciphertext; plaintext tokens exist only in memory during a fetch.
// At most one active record exists per (provider, linked_email).
type LinkedAccount struct {
	ID          string `json:"id" gorm:"primaryKey"`
	UserID      string `json:"user_id" gorm:"index;not null"`
	FamilyID    string `json:"family_id" gorm:"index;not null"`
	Provider    string `json:"provider" gorm:"uniqueIndex:idx_provider_email;not null"`
	LinkedEmail string `json:"linked_email" gorm:"uniqueIndex:idx_provider_email;not null"`

	AccessToken  string    `json:"-" gorm:"type:text"`
	RefreshToken string    `json:"-" gorm:"type:text"`
	TokenExpiry  time.Time `json:"token_expiry"`

	// LastFetchedAt is the fetch checkpoint; it only moves forward.
	LastFetchedAt time.Time `json:"last_fetched_at"`
	IsActive      bool      `json:"is_active" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (LinkedAccount) TableName() string {
	return "linked_accounts"
}
