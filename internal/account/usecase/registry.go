package usecase

import (
	"context"
	"fmt"
	"time"

	accountdomain "famhub-backend/internal/account/domain"
	"famhub-backend/internal/account/repository"
	"famhub-backend/pkg/crypto"
)

// LinkInput carries the plaintext result of a consent callback. Tokens are
// encrypted before they reach storage.
type LinkInput struct {
	UserID       string
	FamilyID     string
	Provider     string
	LinkedEmail  string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
}

// AccountView is a read model over an active linked account. Tokens stay
// encrypted; Credentials decrypts them on demand so plaintext lives only as
// long as the caller needs it.
type AccountView struct {
	UserID        string
	FamilyID      string
	Provider      string
	LinkedEmail   string
	LastFetchedAt time.Time
	TokenExpiry   time.Time

	encAccessToken  string
	encRefreshToken string
	vault           *crypto.Vault
}

// Credentials returns the decrypted token pair.
func (v *AccountView) Credentials() (accessToken, refreshToken string, err error) {
	accessToken, err = v.vault.Decrypt(v.encAccessToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to decrypt access token for %s: %w", v.LinkedEmail, err)
	}
	if v.encRefreshToken != "" {
		refreshToken, err = v.vault.Decrypt(v.encRefreshToken)
		if err != nil {
			return "", "", fmt.Errorf("failed to decrypt refresh token for %s: %w", v.LinkedEmail, err)
		}
	}
	return accessToken, refreshToken, nil
}

// Registry manages the linked-account lifecycle: linking, checkpointing,
// token rotation and revocation.
type Registry struct {
	repo  repository.LinkedAccountRepository
	vault *crypto.Vault
}

func NewRegistry(repo repository.LinkedAccountRepository, vault *crypto.Vault) *Registry {
	return &Registry{repo: repo, vault: vault}
}

// Link upserts the account keyed by (provider, linkedEmail), encrypting both
// tokens before write.
func (r *Registry) Link(ctx context.Context, input LinkInput) error {
	encAccess, err := r.vault.Encrypt(input.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	var encRefresh string
	if input.RefreshToken != "" {
		encRefresh, err = r.vault.Encrypt(input.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}

	account := &accountdomain.LinkedAccount{
		UserID:       input.UserID,
		FamilyID:     input.FamilyID,
		Provider:     input.Provider,
		LinkedEmail:  input.LinkedEmail,
		AccessToken:  encAccess,
		RefreshToken: encRefresh,
		TokenExpiry:  input.TokenExpiry,
		IsActive:     true,
	}
	return r.repo.Upsert(ctx, account)
}

// ListActive returns views over all active accounts for a provider.
func (r *Registry) ListActive(ctx context.Context, provider string) ([]*AccountView, error) {
	accounts, err := r.repo.ListActive(ctx, provider)
	if err != nil {
		return nil, err
	}

	views := make([]*AccountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, &AccountView{
			UserID:          acc.UserID,
			FamilyID:        acc.FamilyID,
			Provider:        acc.Provider,
			LinkedEmail:     acc.LinkedEmail,
			LastFetchedAt:   acc.LastFetchedAt,
			TokenExpiry:     acc.TokenExpiry,
			encAccessToken:  acc.AccessToken,
			encRefreshToken: acc.RefreshToken,
			vault:           r.vault,
		})
	}
	return views, nil
}

// AdvanceCheckpoint moves the fetch checkpoint forward. A timestamp earlier
// than the stored checkpoint is a no-op; a missing active account surfaces
// repository.ErrNotFound.
func (r *Registry) AdvanceCheckpoint(ctx context.Context, provider, linkedEmail string, ts time.Time) error {
	return r.repo.AdvanceCheckpoint(ctx, provider, linkedEmail, ts.UTC())
}

// RotateAccessToken stores a refreshed token pair, encrypted.
func (r *Registry) RotateAccessToken(ctx context.Context, provider, linkedEmail, accessToken, refreshToken string, expiry time.Time) error {
	encAccess, err := r.vault.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	var encRefresh string
	if refreshToken != "" {
		encRefresh, err = r.vault.Encrypt(refreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}
	return r.repo.UpdateTokens(ctx, provider, linkedEmail, encAccess, encRefresh, expiry)
}

// Deactivate revokes the link. The record is kept for audit history.
func (r *Registry) Deactivate(ctx context.Context, provider, linkedEmail string) error {
	return r.repo.Deactivate(ctx, provider, linkedEmail)
}
