package usecase

import (
	"context"
	"testing"
	"time"

	accountdomain "famhub-backend/internal/account/domain"
	"famhub-backend/internal/account/repository"
	"famhub-backend/pkg/crypto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAccountRepo is an in-memory LinkedAccountRepository.
type fakeAccountRepo struct {
	accounts map[string]*accountdomain.LinkedAccount
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*accountdomain.LinkedAccount)}
}

func key(provider, email string) string { return provider + "|" + email }

func (f *fakeAccountRepo) Upsert(_ context.Context, account *accountdomain.LinkedAccount) error {
	if existing, ok := f.accounts[key(account.Provider, account.LinkedEmail)]; ok {
		account.ID = existing.ID
		account.LastFetchedAt = existing.LastFetchedAt
	} else if account.ID == "" {
		account.ID = "acc-" + account.LinkedEmail
	}
	account.IsActive = true
	stored := *account
	f.accounts[key(account.Provider, account.LinkedEmail)] = &stored
	return nil
}

func (f *fakeAccountRepo) ListActive(_ context.Context, provider string) ([]*accountdomain.LinkedAccount, error) {
	var out []*accountdomain.LinkedAccount
	for _, acc := range f.accounts {
		if acc.Provider == provider && acc.IsActive {
			copied := *acc
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) FindActive(_ context.Context, provider, linkedEmail string) (*accountdomain.LinkedAccount, error) {
	acc, ok := f.accounts[key(provider, linkedEmail)]
	if !ok || !acc.IsActive {
		return nil, repository.ErrNotFound
	}
	copied := *acc
	return &copied, nil
}

func (f *fakeAccountRepo) AdvanceCheckpoint(ctx context.Context, provider, linkedEmail string, ts time.Time) error {
	acc, ok := f.accounts[key(provider, linkedEmail)]
	if !ok || !acc.IsActive {
		return repository.ErrNotFound
	}
	if ts.After(acc.LastFetchedAt) {
		acc.LastFetchedAt = ts
	}
	return nil
}

func (f *fakeAccountRepo) UpdateTokens(_ context.Context, provider, linkedEmail, accessToken, refreshToken string, expiry time.Time) error {
	acc, ok := f.accounts[key(provider, linkedEmail)]
	if !ok || !acc.IsActive {
		return repository.ErrNotFound
	}
	acc.AccessToken = accessToken
	acc.RefreshToken = refreshToken
	acc.TokenExpiry = expiry
	return nil
}

func (f *fakeAccountRepo) Deactivate(_ context.Context, provider, linkedEmail string) error {
	acc, ok := f.accounts[key(provider, linkedEmail)]
	if !ok || !acc.IsActive {
		return repository.ErrNotFound
	}
	acc.IsActive = false
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *fakeAccountRepo) {
	t.Helper()
	vaultKey := make([]byte, 32)
	vault, err := crypto.NewVault(vaultKey)
	require.NoError(t, err)
	repo := newFakeAccountRepo()
	return NewRegistry(repo, vault), repo
}

func TestRegistry_LinkEncryptsTokens(t *testing.T) {
	registry, repo := newTestRegistry(t)

	err := registry.Link(context.Background(), LinkInput{
		UserID:       "user-1",
		FamilyID:     "fam-1",
		Provider:     "gmail",
		LinkedEmail:  "dad@example.com",
		AccessToken:  "plain-access",
		RefreshToken: "plain-refresh",
	})
	require.NoError(t, err)

	stored, err := repo.FindActive(context.Background(), "gmail", "dad@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "plain-access", stored.AccessToken)
	assert.NotEqual(t, "plain-refresh", stored.RefreshToken)
	assert.NotContains(t, stored.AccessToken, "plain-access")

	views, err := registry.ListActive(context.Background(), "gmail")
	require.NoError(t, err)
	require.Len(t, views, 1)

	access, refresh, err := views[0].Credentials()
	require.NoError(t, err)
	assert.Equal(t, "plain-access", access)
	assert.Equal(t, "plain-refresh", refresh)
}

func TestRegistry_CheckpointMonotonicity(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Link(ctx, LinkInput{
		Provider: "gmail", LinkedEmail: "mom@example.com", FamilyID: "fam-1", AccessToken: "tok",
	}))

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, registry.AdvanceCheckpoint(ctx, "gmail", "mom@example.com", t0))

	// Advancing to an earlier timestamp is a no-op.
	require.NoError(t, registry.AdvanceCheckpoint(ctx, "gmail", "mom@example.com", t0.Add(-time.Hour)))
	stored, err := repo.FindActive(ctx, "gmail", "mom@example.com")
	require.NoError(t, err)
	assert.Equal(t, t0, stored.LastFetchedAt)

	// A later timestamp moves it forward.
	t1 := t0.Add(time.Hour)
	require.NoError(t, registry.AdvanceCheckpoint(ctx, "gmail", "mom@example.com", t1))
	stored, err = repo.FindActive(ctx, "gmail", "mom@example.com")
	require.NoError(t, err)
	assert.Equal(t, t1, stored.LastFetchedAt)
}

func TestRegistry_AdvanceCheckpointNotFound(t *testing.T) {
	registry, _ := newTestRegistry(t)

	err := registry.AdvanceCheckpoint(context.Background(), "gmail", "nobody@example.com", time.Now())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRegistry_Deactivate(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Link(ctx, LinkInput{
		Provider: "gmail", LinkedEmail: "kid@example.com", FamilyID: "fam-1", AccessToken: "tok",
	}))
	require.NoError(t, registry.Deactivate(ctx, "gmail", "kid@example.com"))

	views, err := registry.ListActive(ctx, "gmail")
	require.NoError(t, err)
	assert.Empty(t, views)

	// Checkpoint advancement on a deactivated account is NotFound.
	err = registry.AdvanceCheckpoint(ctx, "gmail", "kid@example.com", time.Now())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRegistry_LinkUpsertsByProviderAndEmail(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, registry.Link(ctx, LinkInput{
		Provider: "gmail", LinkedEmail: "dad@example.com", FamilyID: "fam-1", AccessToken: "tok-1",
	}))
	require.NoError(t, registry.Link(ctx, LinkInput{
		Provider: "gmail", LinkedEmail: "dad@example.com", FamilyID: "fam-1", AccessToken: "tok-2",
	}))

	views, err := registry.ListActive(ctx, "gmail")
	require.NoError(t, err)
	require.Len(t, views, 1, "re-linking must not create a second active record")

	stored, err := repo.FindActive(ctx, "gmail", "dad@example.com")
	require.NoError(t, err)
	access, _, err := registry.viewFor(stored).Credentials()
	require.NoError(t, err)
	assert.Equal(t, "tok-2", access)
}

// viewFor builds an AccountView for test assertions.
func (r *Registry) viewFor(acc *accountdomain.LinkedAccount) *AccountView {
	return &AccountView{
		LinkedEmail:     acc.LinkedEmail,
		encAccessToken:  acc.AccessToken,
		encRefreshToken: acc.RefreshToken,
		vault:           r.vault,
	}
}
