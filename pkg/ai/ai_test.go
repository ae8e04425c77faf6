package ai

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIClient_DefaultModel(t *testing.T) {
	client := NewOpenAIClient("key", "")
	assert.Equal(t, openai.GPT4oMini, client.model)

	pinned := NewOpenAIClient("key", "gpt-4.1")
	assert.Equal(t, "gpt-4.1", pinned.model)
}

func TestNewClient_ProviderSelection(t *testing.T) {
	client, err := NewClient(Config{Provider: ProviderGemini, GeminiAPIKey: "g"})
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, client)

	client, err = NewClient(Config{Provider: ProviderOpenAI, OpenAIAPIKey: "o"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, client)

	// Auto prefers Gemini when both keys are present.
	client, err = NewClient(Config{Provider: ProviderAuto, GeminiAPIKey: "g", OpenAIAPIKey: "o"})
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, client)

	_, err = NewClient(Config{Provider: ProviderAuto})
	assert.Error(t, err)

	_, err = NewClient(Config{Provider: ProviderGemini})
	assert.Error(t, err)
}

func TestGeminiClient_ReplacesExchangeOnRequestError(t *testing.T) {
	g := NewGeminiClient("key")
	g.record("stale prompt", "stale response")

	messages := []Message{{Role: "user", Content: "fresh content"}}
	var ctx context.Context // nil context makes request construction fail
	_, err := g.GenerateSummary(ctx, messages)
	require.Error(t, err)

	assert.Equal(t, Flatten(messages), g.LastPrompt())
	assert.Empty(t, g.LastResponse())
}

func TestFlatten(t *testing.T) {
	out := Flatten([]Message{
		{Role: "system", Content: "rules"},
		{Role: "user", Content: "doc"},
	})
	assert.Equal(t, "system: rules\n\nuser: doc", out)
}
