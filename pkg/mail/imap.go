package mail

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// IMAPProvider fetches messages over IMAP with app-password credentials
// (AccessToken carries the password, RefreshToken is unused).
type IMAPProvider struct {
	serverAddr string
}

func NewIMAPProvider(serverAddr string) *IMAPProvider {
	return &IMAPProvider{serverAddr: serverAddr}
}

func (p *IMAPProvider) Name() string {
	return "imap"
}

func (p *IMAPProvider) ListNewMessages(ctx context.Context, linkedEmail string, creds Credentials, since time.Time) ([]*RawMessage, error) {
	c, err := client.DialTLS(p.serverAddr, nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s failed: %w", p.serverAddr, err)
	}
	defer c.Logout()

	if err := c.Login(linkedEmail, creds.AccessToken); err != nil {
		return nil, fmt.Errorf("imap login for %s failed: %w", linkedEmail, ErrUnauthorized)
	}

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("imap select INBOX failed: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	// IMAP SINCE has date granularity; overlap is fine, fetch is at-least-once.
	criteria.Since = since.Truncate(24 * time.Hour)
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchEnvelope, imap.FetchInternalDate}

	ch := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, ch)
	}()

	var messages []*RawMessage
	for msg := range ch {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			continue
		}

		rm := &RawMessage{
			ReceivedAt: msg.InternalDate.UTC(),
			Raw:        raw,
		}
		if msg.Envelope != nil {
			rm.ProviderMessageID = strings.Trim(msg.Envelope.MessageId, "<>")
		}

		// The SINCE search is day-granular; drop anything at or before the
		// checkpoint itself.
		if !rm.ReceivedAt.After(since) {
			continue
		}
		messages = append(messages, rm)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch failed: %w", err)
	}
	return messages, nil
}

// RefreshToken is a no-op for password-authenticated IMAP accounts.
func (p *IMAPProvider) RefreshToken(_ context.Context, creds Credentials) (Credentials, error) {
	return creds, nil
}
