package main

import (
	"context"
	stdlog "log"
	"os/signal"
	"syscall"
	"time"

	accountdomain "famhub-backend/internal/account/domain"
	accountRepo "famhub-backend/internal/account/repository"
	accountUsecase "famhub-backend/internal/account/usecase"
	enrichUsecase "famhub-backend/internal/enrich/usecase"
	familydomain "famhub-backend/internal/family/domain"
	familyRepo "famhub-backend/internal/family/repository"
	ingestUsecase "famhub-backend/internal/ingest/usecase"
	itemdomain "famhub-backend/internal/item/domain"
	itemRepo "famhub-backend/internal/item/repository"
	"famhub-backend/pkg/ai"
	"famhub-backend/pkg/blob"
	"famhub-backend/pkg/changefeed"
	"famhub-backend/pkg/config"
	"famhub-backend/pkg/crypto"
	"famhub-backend/pkg/database"
	"famhub-backend/pkg/logger"
	"famhub-backend/pkg/mail"

	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatal("Failed to load configuration: ", err)
	}

	log := logger.New(cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&accountdomain.LinkedAccount{},
		&familydomain.Family{},
		&itemdomain.FamilyItem{},
		&itemdomain.AuditRecord{},
	); err != nil {
		log.WithError(err).Fatal("Failed to migrate database")
	}

	// Token vault for credentials at rest
	vault, err := crypto.NewVault(cfg.VaultKey)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize vault")
	}

	// Raw message storage
	blobStore, err := blob.NewGCSStore(ctx, cfg.BlobBucket, cfg.GoogleCredentials)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize blob store")
	}

	// Change feed (Pub/Sub) connecting persistence to enrichment
	feed, err := changefeed.NewPubSubFeed(ctx, cfg.GoogleProjectID, cfg.ChangeFeedTopic, cfg.GoogleCredentials, logger.WithComponent(log, "changefeed"))
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize change feed")
	}
	defer feed.Close()

	// AI client, switchable by provider config
	aiClient, err := ai.NewClient(ai.Config{
		Provider:     ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey: cfg.GeminiAPIKey,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize AI client")
	}

	// Mail providers; config.Load guarantees at least one is configured
	var providers []mail.Provider
	if cfg.GoogleClientID != "" {
		providers = append(providers, mail.NewGmailProvider(cfg.GoogleClientID, cfg.GoogleClientSecret))
	}
	if cfg.IMAPServerAddr != "" {
		providers = append(providers, mail.NewIMAPProvider(cfg.IMAPServerAddr))
	}

	// Initialize repositories (dependency injection)
	linkedAccountRepo := accountRepo.NewLinkedAccountRepository(db)
	familyRepository := familyRepo.NewFamilyRepository(db)
	familyItemRepo := itemRepo.NewFamilyItemRepository(db)
	auditRepository := itemRepo.NewAuditRepository(db)

	// Initialize use cases (dependency injection)
	registry := accountUsecase.NewRegistry(linkedAccountRepo, vault)
	persister := ingestUsecase.NewPersister(familyItemRepo, blobStore, feed, logger.WithComponent(log, "persister"))
	orchestrator := ingestUsecase.NewOrchestrator(registry, providers, persister, cfg.FetchInterval, cfg.ForceCheckpoint, logger.WithComponent(log, "orchestrator"))
	processor := enrichUsecase.NewProcessor(familyItemRepo, familyRepository, auditRepository, blobStore, aiClient, feed, cfg.AuditTTL, logger.WithComponent(log, "processor"))

	// Fetch loop
	go orchestrator.Run(ctx)

	// Enrichment loop, driven by change feed deliveries
	go func() {
		if err := processor.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Change feed receive stopped")
		}
	}()

	// Periodic purge of expired audit records
	go runAuditSweeper(ctx, auditRepository, cfg.AuditSweepEvery, logger.WithComponent(log, "audit"))

	log.WithFields(logrus.Fields{
		"fetch_interval": cfg.FetchInterval.String(),
		"providers":      len(providers),
	}).Info("Worker started")

	<-ctx.Done()
	log.Info("Shutting down")
}

// runAuditSweeper deletes expired audit records on a fixed cadence, standing
// in for a store-side TTL.
func runAuditSweeper(ctx context.Context, audits itemRepo.AuditRepository, every time.Duration, log *logrus.Entry) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := audits.PurgeExpired(ctx, time.Now().UTC())
			if err != nil {
				log.WithError(err).Warn("Audit purge failed")
				continue
			}
			if purged > 0 {
				log.WithField("purged", purged).Info("Expired audit records removed")
			}
		}
	}
}
