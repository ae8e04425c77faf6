package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	itemdomain "famhub-backend/internal/item/domain"
	"famhub-backend/internal/item/repository"
	"famhub-backend/pkg/blob"
	"famhub-backend/pkg/changefeed"
	"famhub-backend/pkg/mail"

	gomail "github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Persister normalizes one raw message into a FamilyItem: raw bytes and
// attachments go to blob storage, header metadata goes into the payload, and
// a change event announces the new item. Every step must succeed or the whole
// persist fails; partially uploaded blobs are left behind (bounded by the
// bucket's lifecycle policy) rather than compensated.
//
// Ids are fresh per call. A window re-fetched after a failed checkpoint
// advance therefore produces duplicate items; the pipeline trades duplicate
// work for never losing a window.
type Persister struct {
	items repository.FamilyItemRepository
	blobs blob.Store
	feed  changefeed.Publisher
	log   *logrus.Entry
}

func NewPersister(items repository.FamilyItemRepository, blobs blob.Store, feed changefeed.Publisher, log *logrus.Entry) *Persister {
	return &Persister{items: items, blobs: blobs, feed: feed, log: log}
}

// Persist stores one fetched message and returns the new item id.
func (p *Persister) Persist(ctx context.Context, raw *mail.RawMessage, familyID string) (string, error) {
	itemID := uuid.New().String()
	blobPath := fmt.Sprintf("%s/%s/%s", familyID, itemdomain.SourceEmail, itemID)

	if err := p.blobs.Upload(ctx, blobPath, raw.Raw); err != nil {
		return "", fmt.Errorf("persist for family %s: raw upload failed: %w", familyID, err)
	}

	meta, err := parseMessageMetadata(raw.Raw)
	if err != nil {
		return "", fmt.Errorf("persist for family %s: header parse failed: %w", familyID, err)
	}

	refs := make([]itemdomain.AttachmentRef, 0, len(meta.attachments))
	for _, att := range meta.attachments {
		attPath := fmt.Sprintf("%s/attachments/%s", blobPath, att.name)
		if err := p.blobs.Upload(ctx, attPath, att.data); err != nil {
			return "", fmt.Errorf("persist for family %s: attachment %s upload failed: %w", familyID, att.name, err)
		}
		refs = append(refs, itemdomain.AttachmentRef{
			Name:     att.name,
			MimeType: att.mimeType,
			Size:     int64(len(att.data)),
			BlobPath: attPath,
		})
	}

	payload, err := itemdomain.EncodeEmailPayload(itemdomain.EmailPayload{
		Subject:           meta.subject,
		Sender:            meta.sender,
		Recipients:        meta.recipients,
		BlobPath:          blobPath,
		Attachments:       refs,
		ProviderMessageID: raw.ProviderMessageID,
		ProviderThreadID:  raw.ProviderThreadID,
	})
	if err != nil {
		return "", fmt.Errorf("persist for family %s: payload encode failed: %w", familyID, err)
	}

	now := time.Now().UTC()
	item := &itemdomain.FamilyItem{
		ID:         itemID,
		FamilyID:   familyID,
		Source:     itemdomain.SourceEmail,
		Payload:    payload,
		Status:     itemdomain.StatusNew,
		ReceivedAt: raw.ReceivedAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := p.items.Create(ctx, item); err != nil {
		return "", fmt.Errorf("persist for family %s: item write failed: %w", familyID, err)
	}

	if err := p.feed.Publish(ctx, changefeed.Event{
		FamilyID:  familyID,
		ItemID:    itemID,
		ChangedAt: now,
	}); err != nil {
		// Without the event the item would sit unprocessed, so the persist
		// fails as a whole; the re-fetched window recreates it.
		return "", fmt.Errorf("persist for family %s: change event publish failed: %w", familyID, err)
	}

	p.log.WithFields(logrus.Fields{
		"family_id": familyID,
		"item_id":   itemID,
	}).Debug("persisted message")
	return itemID, nil
}

type attachmentData struct {
	name     string
	mimeType string
	data     []byte
}

type messageMetadata struct {
	subject     string
	sender      string
	recipients  []string
	attachments []attachmentData
}

// parseMessageMetadata extracts header fields and attachment bytes. Body text
// extraction happens later, at enrichment time, from the stored raw blob.
func parseMessageMetadata(raw []byte) (*messageMetadata, error) {
	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	meta := &messageMetadata{}
	if subject, err := mr.Header.Subject(); err == nil {
		meta.subject = subject
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		meta.sender = from[0].Address
	}
	for _, field := range []string{"To", "Cc"} {
		if addrs, err := mr.Header.AddressList(field); err == nil {
			for _, a := range addrs {
				meta.recipients = append(meta.recipients, a.Address)
			}
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		h, ok := part.Header.(*gomail.AttachmentHeader)
		if !ok {
			continue
		}
		filename, err := h.Filename()
		if err != nil || filename == "" {
			continue
		}
		mimeType, _, _ := h.ContentType()
		data, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", filename, err)
		}
		meta.attachments = append(meta.attachments, attachmentData{
			name:     filename,
			mimeType: mimeType,
			data:     data,
		})
	}

	return meta, nil
}
