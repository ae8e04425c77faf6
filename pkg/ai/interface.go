package ai

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrTimeout is returned when the AI service does not answer in time.
	ErrTimeout = errors.New("ai request timed out")
	// ErrInvalidResponse is returned when the AI service answers with a body
	// that does not match its own response format.
	ErrInvalidResponse = errors.New("ai response has invalid format")
)

// Message is one turn of an ordered chat history.
type Message struct {
	Role    string // "system" or "user"
	Content string
}

// Client is the contract for AI providers (Gemini, OpenAI, ...). After each
// GenerateSummary call, LastPrompt and LastResponse expose the raw exchange
// for audit capture; both are replaced on the next call.
type Client interface {
	GenerateSummary(ctx context.Context, messages []Message) (string, error)
	LastPrompt() string
	LastResponse() string
}

// exchange records the most recent prompt/response pair. Embedded by provider
// implementations so audit capture works the same way for all of them.
type exchange struct {
	mu           sync.Mutex
	lastPrompt   string
	lastResponse string
}

func (e *exchange) record(prompt, response string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastPrompt = prompt
	e.lastResponse = response
}

func (e *exchange) LastPrompt() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPrompt
}

func (e *exchange) LastResponse() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastResponse
}

// Flatten renders an ordered chat history as one audit-friendly string. It is
// the canonical textual form of a prompt, shared by the adapters' exchange
// capture and by callers that log the prompt they sent.
func Flatten(messages []Message) string {
	var b []byte
	for i, m := range messages {
		if i > 0 {
			b = append(b, '\n', '\n')
		}
		b = append(b, []byte(m.Role+": "+m.Content)...)
	}
	return string(b)
}
