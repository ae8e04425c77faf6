package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	accountusecase "famhub-backend/internal/account/usecase"
	"famhub-backend/pkg/mail"

	"github.com/sirupsen/logrus"
)

const (
	defaultMaxFetchAttempts = 3
)

// MessagePersister stores one fetched message as a family item.
type MessagePersister interface {
	Persist(ctx context.Context, raw *mail.RawMessage, familyID string) (string, error)
}

// Orchestrator runs the checkpointed fetch loop: for every provider and every
// active linked account it fetches new mail since the checkpoint, persists
// each message independently, and advances the checkpoint only on verified
// progress. One account's failure never blocks another account or provider.
type Orchestrator struct {
	registry  *accountusecase.Registry
	providers []mail.Provider
	persister MessagePersister

	interval        time.Duration
	forceCheckpoint bool
	maxAttempts     int
	backoff         func(attempt int) time.Duration
	log             *logrus.Entry
}

func NewOrchestrator(registry *accountusecase.Registry, providers []mail.Provider, persister MessagePersister, interval time.Duration, forceCheckpoint bool, log *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		registry:        registry,
		providers:       providers,
		persister:       persister,
		interval:        interval,
		forceCheckpoint: forceCheckpoint,
		maxAttempts:     defaultMaxFetchAttempts,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
		log: log,
	}
}

// Run executes one pass immediately and then on every interval tick until the
// context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	o.RunOnce(ctx)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info("ingestion loop stopped")
			return
		case <-ticker.C:
			o.RunOnce(ctx)
		}
	}
}

// RunOnce processes all providers and accounts sequentially to bound the
// concurrent load on any single provider.
func (o *Orchestrator) RunOnce(ctx context.Context) {
	for _, provider := range o.providers {
		if ctx.Err() != nil {
			return
		}

		accounts, err := o.registry.ListActive(ctx, provider.Name())
		if err != nil {
			o.log.WithError(err).Errorf("failed to list accounts for provider %s", provider.Name())
			continue
		}

		for _, acc := range accounts {
			if ctx.Err() != nil {
				return
			}

			persisted, failed, err := o.syncAccount(ctx, provider, acc)
			entry := o.log.WithFields(logrus.Fields{
				"provider":  provider.Name(),
				"account":   acc.LinkedEmail,
				"persisted": persisted,
				"failed":    failed,
			})
			if err != nil {
				entry.WithError(err).Error("account sync failed")
				continue
			}
			entry.Info("account sync complete")
		}
	}
}

// syncAccount fetches and persists one account's window. It returns how many
// messages persisted and how many individually failed.
func (o *Orchestrator) syncAccount(ctx context.Context, provider mail.Provider, acc *accountusecase.AccountView) (persisted, failed int, err error) {
	fetchStart := time.Now().UTC()

	messages, err := o.fetchWithRetry(ctx, provider, acc)
	if err != nil {
		return 0, 0, err
	}

	// Each message persists independently; one failure must not abort its
	// siblings.
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		if _, perr := o.persister.Persist(ctx, msg, acc.FamilyID); perr != nil {
			failed++
			o.log.WithError(perr).WithFields(logrus.Fields{
				"account":    acc.LinkedEmail,
				"message_id": msg.ProviderMessageID,
			}).Warn("message persist failed")
			continue
		}
		persisted++
	}

	// Advancing only on verified progress means a fully failed window is
	// re-fetched later: duplicates are tolerated, silent loss is not.
	if persisted > 0 || o.forceCheckpoint {
		if cerr := o.registry.AdvanceCheckpoint(ctx, provider.Name(), acc.LinkedEmail, fetchStart); cerr != nil {
			return persisted, failed, fmt.Errorf("checkpoint advance failed: %w", cerr)
		}
	}

	return persisted, failed, nil
}

// fetchWithRetry calls the provider under the bounded backoff policy, with a
// single refresh-and-retry cycle on an unauthorized signal.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, provider mail.Provider, acc *accountusecase.AccountView) ([]*mail.RawMessage, error) {
	access, refresh, err := acc.Credentials()
	if err != nil {
		return nil, err
	}
	creds := mail.Credentials{AccessToken: access, RefreshToken: refresh, Expiry: acc.TokenExpiry}

	refreshed := false
	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		messages, err := provider.ListNewMessages(ctx, acc.LinkedEmail, creds, acc.LastFetchedAt)
		if err == nil {
			return messages, nil
		}
		lastErr = err

		if errors.Is(err, mail.ErrUnauthorized) {
			if refreshed {
				return nil, fmt.Errorf("still unauthorized after token refresh: %w", err)
			}
			refreshed = true

			newCreds, rerr := provider.RefreshToken(ctx, creds)
			if rerr != nil {
				return nil, fmt.Errorf("token refresh failed: %w", rerr)
			}
			creds = newCreds
			if rerr := o.registry.RotateAccessToken(ctx, provider.Name(), acc.LinkedEmail, newCreds.AccessToken, newCreds.RefreshToken, newCreds.Expiry); rerr != nil {
				o.log.WithError(rerr).Warnf("failed to store rotated token for %s", acc.LinkedEmail)
			}
			// The refresh cycle retries immediately and does not consume a
			// backoff attempt.
			attempt--
			continue
		}

		if attempt == o.maxAttempts {
			break
		}
		o.log.WithError(err).Warnf("fetch attempt %d/%d for %s failed, backing off", attempt, o.maxAttempts, acc.LinkedEmail)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.backoff(attempt)):
		}
	}

	return nil, fmt.Errorf("fetch exhausted %d attempts: %w", o.maxAttempts, lastErr)
}
