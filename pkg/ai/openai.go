package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient generates summaries through the OpenAI chat completion API.
type OpenAIClient struct {
	exchange
	client *openai.Client
	model  string
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (o *OpenAIClient) GenerateSummary(ctx context.Context, messages []Message) (string, error) {
	chat := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == "system" {
			role = openai.ChatMessageRoleSystem
		}
		chat = append(chat, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: chat,
	})
	if err != nil {
		if isTimeout(err) {
			err = fmt.Errorf("openai: %w", ErrTimeout)
		}
		o.record(Flatten(messages), "")
		return "", err
	}

	if len(resp.Choices) == 0 {
		o.record(Flatten(messages), "")
		return "", fmt.Errorf("openai returned no choices: %w", ErrInvalidResponse)
	}

	content := resp.Choices[0].Message.Content
	o.record(Flatten(messages), content)
	return content, nil
}
