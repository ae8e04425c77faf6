package domain

import "time"

// AuditRecord captures one AI prompt/response exchange for diagnosability. It
// is write-once and expires after its TTL; nothing in the pipeline reads it.
type AuditRecord struct {
	ID           string `json:"id" gorm:"primaryKey"`
	FamilyID     string `json:"family_id" gorm:"index;not null"`
	FamilyItemID string `json:"family_item_id" gorm:"index;not null"`

	Prompt   string `json:"prompt" gorm:"type:text"`
	Response string `json:"response" gorm:"type:text"`

	TTLSeconds int       `json:"ttl_seconds"`
	ExpiresAt  time.Time `json:"expires_at" gorm:"index"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (AuditRecord) TableName() string {
	return "family_items_audit"
}
