package usecase

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	itemdomain "famhub-backend/internal/item/domain"
	"famhub-backend/pkg/ai"
)

const systemPrompt = `You are an assistant that summarizes a family's inbound messages.
You receive one message as a JSON document and must answer with a single JSON object,
no prose and no markdown fences, matching exactly this schema:
{
  "summary": "one or two sentences in the family's language",
  "action_items": ["things someone must do, empty if none"],
  "keywords": ["up to five keywords"],
  "priority": "high" or "normal",
  "label": "a short category label",
  "matched_members": ["names from member_tags_by_name the message concerns"],
  "detection_status": "matched" if specific members were identified, "undetected" if none could be, "broadcast" if the message concerns the whole family
}`

// promptDocument is the structured user turn sent to the AI.
type promptDocument struct {
	ItemID           string              `json:"item_id"`
	SourceType       string              `json:"source_type"`
	ReceivedAt       time.Time           `json:"received_at"`
	Language         string              `json:"language"`
	ContentText      string              `json:"content_text"`
	MemberTagsByName map[string][]string `json:"member_tags_by_name"`
	Metadata         map[string]string   `json:"metadata"`
}

func buildPrompt(item *itemdomain.FamilyItem, payload *itemdomain.EmailPayload, language string, memberTags map[string][]string, contentText string) ([]ai.Message, error) {
	if language == "" {
		language = "en"
	}
	if memberTags == nil {
		memberTags = map[string][]string{}
	}

	doc := promptDocument{
		ItemID:           item.ID,
		SourceType:       item.Source,
		ReceivedAt:       item.ReceivedAt,
		Language:         language,
		ContentText:      contentText,
		MemberTagsByName: memberTags,
		Metadata: map[string]string{
			"subject": payload.Subject,
			"sender":  payload.Sender,
		},
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt for item %s: %w", item.ID, err)
	}

	return []ai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: string(body)},
	}, nil
}

// parseSummary decodes and validates the AI's answer. Anything that does not
// decode into the closed schema is a data error, not a transient one.
func parseSummary(raw string) (*itemdomain.SummaryResult, error) {
	cleaned := strings.TrimSpace(raw)
	// Models occasionally wrap the document in markdown fences anyway.
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var result itemdomain.SummaryResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSummary, err)
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSummary, err)
	}
	return &result, nil
}
