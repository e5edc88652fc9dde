package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-relay-bridge/internal/config"
	"github.com/tbourn/go-relay-bridge/internal/observability"
	"github.com/tbourn/go-relay-bridge/internal/platform"
	"github.com/tbourn/go-relay-bridge/internal/queue"
	"github.com/tbourn/go-relay-bridge/internal/repo"
	"github.com/tbourn/go-relay-bridge/internal/services"
	"github.com/tbourn/go-relay-bridge/internal/sysutil"
)

// Intake guards for new messages.
const (
	maxContentRunes = 10000
	maxAttachments  = 10
)

// app is the wired process: configuration, storage, and services.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	db       *gorm.DB
	messages *services.MessageService
	links    *services.LinkService
	relay    *services.RelayService
	consumer *queue.Consumer

	shutdownOTel func(context.Context) error
}

// newApp loads .env and the environment, then wires every component.
func newApp(ctx context.Context) (*app, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	lg := sysutil.ConfigureLogger(os.Stderr, cfg.OTEL.ServiceName, cfg.LogLevel, cfg.LogPretty)

	shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version(), observability.PlatformAttr(cfg.Platform.Name))
	if err != nil {
		return nil, fmt.Errorf("setup otel: %w", err)
	}

	db, err := repo.Open(cfg.DBDriver, cfg.DBPath, cfg.DBDSN, cfg.OTEL.Enabled)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := repo.Store{}
	relay := &services.RelayService{
		DB:       db,
		Links:    store,
		Users:    store,
		Receipts: store,
		Client:   platform.NewHTTPClient(cfg.Platform),
		Notifier: &services.NotificationService{
			DB:            db,
			Repo:          store,
			SiteName:      cfg.SiteName,
			DefaultLocale: language.Make(cfg.DefaultLocale),
			Log:           lg.With().Str("component", "notify").Logger(),
		},
		Classifier: services.Classifier{RateLimitPolicy: cfg.RateLimitPolicy},
		Platform:   cfg.Platform.Name,
		Log:        lg.With().Str("component", "relay").Logger(),
	}

	a := &app{
		cfg: cfg,
		log: lg,
		db:  db,
		messages: &services.MessageService{
			DB:              db,
			Messages:        store,
			Jobs:            store,
			Platform:        cfg.Platform.Name,
			MaxContentRunes: maxContentRunes,
			MaxAttachments:  maxAttachments,
		},
		links:        services.NewLinkService(db, store, cfg.Platform.Name),
		relay:        relay,
		consumer:     queue.NewConsumer(db, store, store, relay, cfg.Queue, lg),
		shutdownOTel: shutdown,
	}
	return a, nil
}

// migrate creates or updates the schema.
func (a *app) migrate() error {
	if err := repo.AutoMigrate(a.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close flushes traces and releases the database pool.
func (a *app) Close(ctx context.Context) {
	if err := a.shutdownOTel(ctx); err != nil {
		a.log.Warn().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
