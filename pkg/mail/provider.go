package mail

import (
	"context"
	"errors"
	"time"
)

// ErrUnauthorized is the distinguishable "provider rejected the credential"
// signal. The orchestrator reacts to it with one refresh-and-retry cycle.
var ErrUnauthorized = errors.New("provider rejected credentials")

// Credentials carries decrypted tokens for the duration of one provider call.
// They are never persisted in this form.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// RawMessage is one message as fetched, before normalization.
type RawMessage struct {
	ProviderMessageID string
	ProviderThreadID  string
	ReceivedAt        time.Time
	// Raw holds the full RFC 822 message bytes.
	Raw []byte
}

// Provider fetches new mail for a linked mailbox. Implementations must return
// ErrUnauthorized (possibly wrapped) when the credential is rejected.
type Provider interface {
	Name() string
	ListNewMessages(ctx context.Context, linkedEmail string, creds Credentials, since time.Time) ([]*RawMessage, error)
	RefreshToken(ctx context.Context, creds Credentials) (Credentials, error)
}
