package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/concierge-bot/internal/assistant"
	"github.com/xaenox/concierge-bot/internal/bot"
	"github.com/xaenox/concierge-bot/internal/catalog"
	"github.com/xaenox/concierge-bot/internal/metrics"
	"github.com/xaenox/concierge-bot/internal/outbound"
	"github.com/xaenox/concierge-bot/internal/queue"
	"github.com/xaenox/concierge-bot/internal/session"
	"github.com/xaenox/concierge-bot/internal/storage"
	"github.com/xaenox/concierge-bot/pkg/config"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// app holds the pieces shared by every transport.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    storage.Storage
	catalog  *catalog.Catalog
	sessions bot.SessionProvider
	janitor  *session.Janitor
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.store = store

	a.catalog, err = loadCatalog(cfg)
	if err != nil {
		a.store.Close()
		return nil, err
	}
	logger.Info("Activity catalog loaded", zap.Int("activities", len(a.catalog.Activities())))

	if !cfg.ModelConfigured() {
		logger.Warn("OpenAI API key missing, conversational replies are disabled")
		return a, nil
	}

	persona, err := assistant.LoadPersona(cfg.OpenAI.PersonaPath)
	if err != nil {
		a.store.Close()
		return nil, err
	}

	model := assistant.NewOpenAIModel(assistant.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
		MaxHistory:  cfg.OpenAI.MaxHistory,
	}, logger)

	registry := session.NewRegistry(model, persona, session.Options{
		TTL:         cfg.Session.TTL,
		MaxSessions: cfg.Session.MaxSessions,
	}, logger)
	a.sessions = registry
	a.janitor = session.NewJanitor(registry, cfg.Session.CleanupInterval, logger)
	a.janitor.Start(ctx)

	return a, nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	}

	logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Database.Host))
	store, err := storage.NewPostgresStorage(ctx, storage.DatabaseConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	var (
		cat *catalog.Catalog
		err error
	)
	if cfg.Catalog.Path != "" {
		cat, err = catalog.Load(cfg.Catalog.Path)
	} else {
		cat, err = catalog.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return cat, nil
}

// relay is the bot plus its delivery and intake queues for one transport.
type relay struct {
	outbox *outbound.Outbox
	inbox  *bot.Inbox
}

func (a *app) newRelay(sender outbound.Sender, transportConfigured bool) (*relay, error) {
	outbox, err := outbound.NewOutbox(sender, outbound.Options{
		Pacing:      a.cfg.Outbound.Pacing,
		SendTimeout: a.cfg.Outbound.SendTimeout,
		MaxPending:  a.cfg.Outbound.MaxPending,
	}, a.logger)
	if err != nil {
		return nil, err
	}

	b, err := bot.New(a.sessions, a.catalog, outbox, a.store, bot.Config{
		ModelConfigured:     a.cfg.ModelConfigured(),
		TransportConfigured: transportConfigured,
		PublicBaseURL:       a.cfg.Server.PublicBaseURL,
		ModelTimeout:        a.cfg.OpenAI.Timeout,
		BookingLinks:        a.cfg.Outbound.BookingLinks,
	}, a.logger)
	if err != nil {
		return nil, err
	}

	lanes := queue.NewLanes(a.cfg.Inbound.MaxPending, a.logger)
	metrics.RegisterLaneGauge("inbound", lanes.Active)
	metrics.RegisterLaneGauge("outbound", outbox.Active)

	return &relay{outbox: outbox, inbox: bot.NewInbox(b, lanes)}, nil
}

// close drains intake first so its replies still reach the outbox.
func (r *relay) close(ctx context.Context) error {
	return errors.Join(r.inbox.Close(ctx), r.outbox.Close(ctx))
}

func (a *app) close() {
	if a.janitor != nil {
		a.janitor.Stop()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("Failed to close storage", zap.Error(err))
	}
}

func shutdown(r *relay, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.close(ctx); err != nil {
		logger.Warn("Pending messages dropped on shutdown", zap.Error(err))
	}
}
