package mail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const gmailPageSize = 100

// GmailProvider fetches messages through the Gmail REST API.
type GmailProvider struct {
	clientID     string
	clientSecret string
}

func NewGmailProvider(clientID, clientSecret string) *GmailProvider {
	return &GmailProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

func (p *GmailProvider) Name() string {
	return "gmail"
}

// service creates a Gmail client bound to the given access token. Token refresh
// is not wired in here; the orchestrator owns the refresh-on-unauthorized cycle.
func (p *GmailProvider) service(ctx context.Context, creds Credentials) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken: creds.AccessToken,
		TokenType:   "Bearer",
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

// ListNewMessages returns raw messages received after the checkpoint.
func (p *GmailProvider) ListNewMessages(ctx context.Context, linkedEmail string, creds Credentials, since time.Time) ([]*RawMessage, error) {
	srv, err := p.service(ctx, creds)
	if err != nil {
		return nil, err
	}

	user := "me"
	query := fmt.Sprintf("after:%d", since.Unix())

	var messages []*RawMessage
	pageToken := ""
	for {
		call := srv.Users.Messages.List(user).Q(query).MaxResults(gmailPageSize)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, p.wrapError(linkedEmail, err)
		}

		for _, ref := range resp.Messages {
			full, err := srv.Users.Messages.Get(user, ref.Id).Format("raw").Context(ctx).Do()
			if err != nil {
				return nil, p.wrapError(linkedEmail, err)
			}

			raw, err := base64.URLEncoding.DecodeString(full.Raw)
			if err != nil {
				return nil, fmt.Errorf("unable to decode raw message %s: %w", ref.Id, err)
			}

			messages = append(messages, &RawMessage{
				ProviderMessageID: full.Id,
				ProviderThreadID:  full.ThreadId,
				ReceivedAt:        time.Unix(full.InternalDate/1000, 0).UTC(),
				Raw:               raw,
			})
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return messages, nil
}

// RefreshToken exchanges the refresh token for a new access token.
func (p *GmailProvider) RefreshToken(ctx context.Context, creds Credentials) (Credentials, error) {
	if creds.RefreshToken == "" {
		return Credentials{}, ErrUnauthorized
	}

	config := &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		Endpoint:     google.Endpoint,
	}

	src := config.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})
	token, err := src.Token()
	if err != nil {
		return Credentials{}, fmt.Errorf("token refresh failed: %w", ErrUnauthorized)
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = creds.RefreshToken
	}

	return Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		Expiry:       token.Expiry,
	}, nil
}

func (p *GmailProvider) wrapError(linkedEmail string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == 401 || apiErr.Code == 403) {
		return fmt.Errorf("gmail rejected %s: %w", linkedEmail, ErrUnauthorized)
	}
	return fmt.Errorf("gmail fetch for %s failed: %w", linkedEmail, err)
}
