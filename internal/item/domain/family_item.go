package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Item status constants
const (
	StatusNew       = "new"
	StatusProcessed = "processed"
	StatusError     = "error"
)

// AI failure reasons. FailedPermanent is terminal: the item is excluded from
// all further reprocessing.
const (
	ReasonAttachmentParseFail = "attachment_parse_fail"
	ReasonPromptTimeout       = "prompt_timeout"
	ReasonAIInvalidJSON       = "ai_invalid_json"
	ReasonOversizeBlob        = "oversize_blob"
	ReasonUnknown             = "unknown"
	ReasonFailedPermanent     = "failed_permanent"
)

// Payload source discriminators
const (
	SourceEmail    = "email"
	SourceCalendar = "calendar"
)

// AttachmentRef records one stored attachment of an email payload.
type AttachmentRef struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	BlobPath string `json:"blob_path"`
}

// EmailPayload is the email variant of the item payload.
type EmailPayload struct {
	Subject           string          `json:"subject"`
	Sender            string          `json:"sender"`
	Recipients        []string        `json:"recipients"`
	BlobPath          string          `json:"blob_path"`
	Attachments       []AttachmentRef `json:"attachments"`
	ProviderMessageID string          `json:"provider_message_id"`
	ProviderThreadID  string          `json:"provider_thread_id"`
}

// CalendarPayload is the calendar variant. Nothing in the ingestion pipeline
// produces it yet; the discriminator machinery supports it so a second source
// can be added without a schema change.
type CalendarPayload struct {
	Title    string    `json:"title"`
	Location string    `json:"location"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	BlobPath string    `json:"blob_path"`
}

// payloadEnvelope wraps a variant with its discriminator. The discriminator is
// always read before a variant schema is selected.
type payloadEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeEmailPayload wraps an email payload in its discriminated envelope.
func EncodeEmailPayload(p EmailPayload) (datatypes.JSON, error) {
	return encodePayload(SourceEmail, p)
}

// EncodeCalendarPayload wraps a calendar payload in its discriminated envelope.
func EncodeCalendarPayload(p CalendarPayload) (datatypes.JSON, error) {
	return encodePayload(SourceCalendar, p)
}

func encodePayload(sourceType string, v interface{}) (datatypes.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payloadEnvelope{Type: sourceType, Data: data})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// SummaryResult is the structured outcome of one enrichment. It is immutable
// once attached to an item; reprocessing replaces it wholesale.
type SummaryResult struct {
	Summary         string   `json:"summary"`
	ActionItems     []string `json:"action_items"`
	Keywords        []string `json:"keywords"`
	Priority        string   `json:"priority"`
	Label           string   `json:"label"`
	MatchedMembers  []string `json:"matched_members"`
	DetectionStatus string   `json:"detection_status"`
}

// Priority values
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
)

// Detection status values
const (
	DetectionMatched    = "matched"
	DetectionUndetected = "undetected"
	DetectionBroadcast  = "broadcast"
)

// Validate checks the closed enumerations. An out-of-range value is a data
// error, not a transient one.
func (s *SummaryResult) Validate() error {
	switch s.Priority {
	case PriorityHigh, PriorityNormal:
	default:
		return fmt.Errorf("invalid priority %q", s.Priority)
	}
	switch s.DetectionStatus {
	case DetectionMatched, DetectionUndetected, DetectionBroadcast:
	default:
		return fmt.Errorf("invalid detection status %q", s.DetectionStatus)
	}
	return nil
}

// FamilyItem is a normalized inbound item owned by a family. It is created by
// message persistence with StatusNew and mutated only by the enrichment
// processor afterwards; the pipeline never deletes it.
type FamilyItem struct {
	ID       string `json:"id" gorm:"primaryKey"`
	FamilyID string `json:"family_id" gorm:"index;not null"`
	Source   string `json:"source" gorm:"not null"`

	Payload datatypes.JSON `json:"payload" gorm:"type:jsonb"`

	Status        string         `json:"status" gorm:"index;not null;default:'new'"`
	AIRetryCount  int            `json:"ai_retry_count"`
	AIErrorReason *string        `json:"ai_error_reason"`
	Summary       datatypes.JSON `json:"summary" gorm:"type:jsonb"`

	ReceivedAt time.Time `json:"received_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (FamilyItem) TableName() string {
	return "family_items"
}

// EmailPayload decodes the payload, rejecting non-email variants.
func (i *FamilyItem) EmailPayload() (*EmailPayload, error) {
	var envelope payloadEnvelope
	if err := json.Unmarshal(i.Payload, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode payload envelope of item %s: %w", i.ID, err)
	}
	if envelope.Type != SourceEmail {
		return nil, fmt.Errorf("item %s holds a %q payload, not email", i.ID, envelope.Type)
	}
	var payload EmailPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode email payload of item %s: %w", i.ID, err)
	}
	return &payload, nil
}

// SummaryResult decodes the attached summary, or nil when none is attached.
func (i *FamilyItem) SummaryResult() (*SummaryResult, error) {
	if len(i.Summary) == 0 {
		return nil, nil
	}
	var result SummaryResult
	if err := json.Unmarshal(i.Summary, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IsTerminal reports whether the item is excluded from reprocessing.
func (i *FamilyItem) IsTerminal() bool {
	if i.Status == StatusProcessed {
		return true
	}
	return i.AIErrorReason != nil && *i.AIErrorReason == ReasonFailedPermanent
}
