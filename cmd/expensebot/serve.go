package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dvloznov/expense-bot/internal/api"
	"github.com/dvloznov/expense-bot/internal/assistant"
	"github.com/dvloznov/expense-bot/internal/config"
	"github.com/dvloznov/expense-bot/internal/dedup"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/dvloznov/expense-bot/internal/extraction"
	"github.com/dvloznov/expense-bot/internal/gcsarchive"
	"github.com/dvloznov/expense-bot/internal/identity"
	"github.com/dvloznov/expense-bot/internal/jobs"
	"github.com/dvloznov/expense-bot/internal/jobs/inmemory"
	"github.com/dvloznov/expense-bot/internal/ledger"
	"github.com/dvloznov/expense-bot/internal/linkcode"
	"github.com/dvloznov/expense-bot/internal/metrics"
	"github.com/dvloznov/expense-bot/internal/pipeline"
	"github.com/dvloznov/expense-bot/internal/store"
	"github.com/dvloznov/expense-bot/internal/store/bigquery"
	"github.com/dvloznov/expense-bot/internal/store/memstore"
	"github.com/dvloznov/expense-bot/internal/store/sqlite"
	"github.com/dvloznov/expense-bot/internal/transcribe"
	"github.com/dvloznov/expense-bot/internal/transport"
	"github.com/dvloznov/expense-bot/internal/transport/email"
	"github.com/dvloznov/expense-bot/internal/transport/telegram"
	"github.com/dvloznov/expense-bot/internal/transport/whatsapp"
	"github.com/dvloznov/expense-bot/internal/ttlcache"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	cacheSweepInterval = time.Minute
	shutdownTimeout    = 30 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the webhooks and the analytics API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg, log)
		},
	}
}

// openStore opens the repository selected by store.driver and brings its
// schema up to date.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Repository, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		log.Warn().Msg("Using in-memory store, data is lost on restart")
		return memstore.New(), nil

	case config.DriverBigQuery:
		s, err := bigquery.New(ctx, cfg.Store.BigQuery.Project, cfg.Store.BigQuery.Dataset, log)
		if err != nil {
			return nil, fmt.Errorf("openStore: %w", err)
		}
		if err := s.Migrate(ctx, "expensebot serve"); err != nil {
			s.Close()
			return nil, fmt.Errorf("openStore: %w", err)
		}
		return s, nil

	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.Store.SQLitePath, sqlite.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("openStore: %w", err)
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("openStore: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("openStore: unknown driver %q", cfg.Store.Driver)
}

// openArchiver returns nil when no bucket is configured.
func openArchiver(ctx context.Context, bucket string) (pipeline.Archiver, func(), error) {
	if bucket == "" {
		return nil, func() {}, nil
	}
	gcs, err := gcsarchive.NewGCS(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("openArchiver: %w", err)
	}
	return gcsarchive.New(gcs, bucket), func() { gcs.Close() }, nil
}

func runServe(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	repo, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer repo.Close()

	genaiClient, err := extraction.NewClient(ctx, cfg.Gemini.APIKey)
	if err != nil {
		return err
	}
	extractor := extraction.NewGemini(genaiClient.Models, cfg.Gemini.Model, cfg.Extraction.Timeout, log)
	transcriber := transcribe.NewGemini(genaiClient.Models, cfg.Gemini.AudioModel, cfg.Extraction.Timeout, log)

	archiver, closeArchiver, err := openArchiver(ctx, cfg.GCS.Bucket)
	if err != nil {
		return err
	}
	defer closeArchiver()
	if archiver == nil {
		log.Warn().Msg("No GCS bucket configured - receipt images will not be archived")
	}

	// Short-lived state
	inboundCache := ttlcache.NewMemory[string, struct{}]()
	inboundCache.StartCleanup(ctx, cacheSweepInterval)
	pendingCache := ttlcache.NewMemory[string, domain.PendingDuplicate]()
	pendingCache.StartCleanup(ctx, cacheSweepInterval)

	inbound := dedup.NewInbound(inboundCache, cfg.Dedup.TTL)
	pending := dedup.NewPending(pendingCache, repo, cfg.Pending.TTL, log)

	// Reply outbox
	jobStore := inmemory.NewStore(cfg.Outbox.History)
	jobQueue := inmemory.NewQueue(cfg.Outbox.Workers, cfg.Outbox.Buffer, jobStore, inmemory.WithLogger(log))
	outbox := jobs.NewOutbox(jobQueue, cfg.Outbox.MaxRetries, log, transport.ReplyDropped)

	registry := transport.NewRegistry()
	resolver := identity.New(repo, cfg.Email.Alias, cfg.Email.Domain, log)
	links := linkcode.New(repo, cfg.LinkCode.TTL)

	svc := assistant.New(assistant.Deps{
		Inbound:     inbound,
		Identity:    resolver,
		Ledger:      ledger.New(repo),
		Pending:     pending,
		Links:       links,
		Extractor:   extractor,
		Transcriber: transcriber,
		Fetcher:     registry,
		Archiver:    archiver,
		Notifier:    outbox,
		Now:         time.Now,
		Log:         log,
	}, assistant.Config{
		DashboardURL:    cfg.Dashboard.URL,
		BankName:        cfg.Email.BankName,
		SenderKeywords:  cfg.Email.SenderKeywords,
		ProgressReplies: cfg.Assistant.ProgressReplies,
	})

	// The outbox outlives ctx so queued replies can flush during shutdown.
	queueCtx, cancelQueue := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelQueue()
	channelCtx, stopChannels := context.WithCancel(ctx)
	defer stopChannels()

	if err := jobQueue.Start(queueCtx, registry.Deliver); err != nil {
		return fmt.Errorf("runServe: start outbox: %w", err)
	}

	deps := api.Deps{
		Expenses:     repo,
		Links:        links,
		Registrar:    resolver,
		Jobs:         jobStore,
		Metrics:      metrics.Handler(),
		EmailWebhook: email.NewWebhook(svc, cfg.Email.SigningKey, log),
		APIToken:     cfg.Server.APIToken,
		Now:          time.Now,
		Log:          log,
	}

	// Channels
	if cfg.Telegram.Token != "" {
		tg, err := telegram.New(telegram.Config{
			Token:         cfg.Telegram.Token,
			WebhookSecret: cfg.Telegram.WebhookSecret,
		}, svc, log)
		if err != nil {
			return err
		}
		registry.Register(domain.ChannelTelegram, tg, tg)

		if cfg.Telegram.Mode == telegram.ModeWebhook {
			deps.TelegramWebhook = tg.WebhookHandler()
			go tg.StartWebhook(channelCtx)
		} else {
			go func() {
				if err := tg.Start(channelCtx); err != nil {
					log.Error().Err(err).Msg("Telegram polling stopped with error")
				}
			}()
		}
	} else {
		log.Warn().Msg("No Telegram token configured - Telegram channel disabled")
	}

	if cfg.WhatsApp.Enabled() {
		wa := whatsapp.NewClient(cfg.WhatsApp.Token, cfg.WhatsApp.PhoneNumberID)
		registry.Register(domain.ChannelWhatsApp, wa, wa)

		hook := whatsapp.NewWebhook(cfg.WhatsApp.VerifyToken, cfg.WhatsApp.AppSecret, svc, log)
		hook.Async = true
		deps.WhatsAppWebhook = hook
	}

	log.Info().Interface("channels", registry.Channels()).Msg("Channels registered")

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("runServe: http server: %w", err)
		}
	}

	log.Info().Msg("Shutting down server...")

	stopChannels()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
	return nil
}
