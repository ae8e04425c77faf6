package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	familyrepo "famhub-backend/internal/family/repository"
	itemdomain "famhub-backend/internal/item/domain"
	itemrepo "famhub-backend/internal/item/repository"
	"famhub-backend/pkg/ai"
	"famhub-backend/pkg/blob"
	"famhub-backend/pkg/changefeed"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const defaultRetryCeiling = 3

// Processor consumes the ordered change feed and enriches new family items
// with an AI summary. Delivery is at-least-once, so every handler run starts
// with an idempotency guard; a non-terminal failure is persisted and then
// redelivered by the feed, and past the retry ceiling the item is frozen as
// failed_permanent and never touched again.
type Processor struct {
	items    itemrepo.FamilyItemRepository
	families familyrepo.FamilyRepository
	audits   itemrepo.AuditRepository
	blobs    blob.Store
	client   ai.Client
	feed     changefeed.Subscriber

	retryCeiling int
	auditTTL     time.Duration
	log          *logrus.Entry
}

func NewProcessor(
	items itemrepo.FamilyItemRepository,
	families familyrepo.FamilyRepository,
	audits itemrepo.AuditRepository,
	blobs blob.Store,
	client ai.Client,
	feed changefeed.Subscriber,
	auditTTL time.Duration,
	log *logrus.Entry,
) *Processor {
	return &Processor{
		items:        items,
		families:     families,
		audits:       audits,
		blobs:        blobs,
		client:       client,
		feed:         feed,
		retryCeiling: defaultRetryCeiling,
		auditTTL:     auditTTL,
		log:          log,
	}
}

// Run blocks on the change feed until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	p.log.Info("enrichment processor starting")
	return p.feed.Receive(ctx, p.HandleEvent)
}

// HandleEvent processes one delivered change event. Returning an error
// requests redelivery.
func (p *Processor) HandleEvent(ctx context.Context, event changefeed.Event) error {
	item, err := p.items.FindByID(ctx, event.FamilyID, event.ItemID)
	if err != nil {
		return fmt.Errorf("failed to load item %s: %w", event.ItemID, err)
	}
	if item == nil {
		p.log.WithField("item_id", event.ItemID).Warn("change event for unknown item, dropping")
		return nil
	}

	// Idempotency guard: redeliveries of finished items cause zero writes.
	if item.IsTerminal() {
		return nil
	}

	prompt, response, summary, err := p.enrich(ctx, item)
	if err != nil {
		return p.recordFailure(ctx, item, err)
	}

	encoded, err := json.Marshal(summary)
	if err != nil {
		return p.recordFailure(ctx, item, fmt.Errorf("%w: %v", ErrInvalidSummary, err))
	}
	item.Status = itemdomain.StatusProcessed
	item.Summary = datatypes.JSON(encoded)
	item.AIErrorReason = nil
	item.UpdatedAt = time.Now().UTC()
	if err := p.items.Update(ctx, item); err != nil {
		return fmt.Errorf("failed to persist processed item %s: %w", item.ID, err)
	}

	// The audit trail is diagnostics only; losing one record must not fail
	// the item.
	if err := p.audits.Save(ctx, item.FamilyID, item.ID, prompt, response, p.auditTTL); err != nil {
		p.log.WithError(err).WithField("item_id", item.ID).Warn("audit write failed")
	}

	p.log.WithFields(logrus.Fields{
		"family_id": item.FamilyID,
		"item_id":   item.ID,
	}).Info("item enriched")
	return nil
}

// enrich runs the full pipeline for one item and returns the raw AI exchange
// alongside the parsed summary.
func (p *Processor) enrich(ctx context.Context, item *itemdomain.FamilyItem) (prompt, response string, summary *itemdomain.SummaryResult, err error) {
	payload, err := item.EmailPayload()
	if err != nil {
		return "", "", nil, err
	}

	raw, err := p.blobs.Download(ctx, payload.BlobPath)
	if err != nil {
		return "", "", nil, fmt.Errorf("blob download failed for item %s: %w", item.ID, err)
	}

	text, err := extractPlainText(raw)
	if err != nil {
		return "", "", nil, err
	}

	language := ""
	var memberTags map[string][]string
	family, err := p.families.FindByID(ctx, item.FamilyID)
	if err != nil {
		return "", "", nil, fmt.Errorf("family load failed for item %s: %w", item.ID, err)
	}
	if family != nil {
		language = family.Language
		if memberTags, err = family.MemberTagsByName(); err != nil {
			return "", "", nil, fmt.Errorf("roster decode failed for family %s: %w", item.FamilyID, err)
		}
	}

	messages, err := buildPrompt(item, payload, language, memberTags, text)
	if err != nil {
		return "", "", nil, err
	}

	// The audit exchange is derived from this call's own inputs and output,
	// so concurrent items on other partitions never wait on each other.
	prompt = ai.Flatten(messages)
	rawResponse, err := p.client.GenerateSummary(ctx, messages)
	response = rawResponse
	if err != nil {
		return prompt, response, nil, err
	}

	summary, err = parseSummary(rawResponse)
	if err != nil {
		return prompt, response, nil, err
	}
	return prompt, response, summary, nil
}

// recordFailure persists the classified failure and decides whether the feed
// should retry. Every failed attempt ends with status error and either the
// classified transient reason or, past the ceiling, failed_permanent.
func (p *Processor) recordFailure(ctx context.Context, item *itemdomain.FamilyItem, cause error) error {
	reason := classifyError(cause)
	item.AIRetryCount++
	if item.AIRetryCount > p.retryCeiling {
		reason = itemdomain.ReasonFailedPermanent
	}
	item.Status = itemdomain.StatusError
	item.AIErrorReason = &reason
	item.UpdatedAt = time.Now().UTC()

	if err := p.items.Update(ctx, item); err != nil {
		return fmt.Errorf("failed to persist error state of item %s: %w", item.ID, err)
	}

	entry := p.log.WithFields(logrus.Fields{
		"family_id":   item.FamilyID,
		"item_id":     item.ID,
		"reason":      reason,
		"retry_count": item.AIRetryCount,
	}).WithError(cause)

	if reason == itemdomain.ReasonFailedPermanent {
		entry.Error("item failed permanently, excluded from reprocessing")
		return nil
	}
	entry.Warn("item enrichment failed, awaiting redelivery")
	return cause
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, ErrOversizeBlob):
		return itemdomain.ReasonOversizeBlob
	case errors.Is(err, ErrAttachmentParse):
		return itemdomain.ReasonAttachmentParseFail
	case errors.Is(err, ai.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return itemdomain.ReasonPromptTimeout
	case errors.Is(err, ErrInvalidSummary), errors.Is(err, ai.ErrInvalidResponse):
		return itemdomain.ReasonAIInvalidJSON
	default:
		return itemdomain.ReasonUnknown
	}
}
