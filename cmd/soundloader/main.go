// Command soundloader runs the Telegram bot: it connects storage, applies
// migrations and starts the event dispatch loop.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/soundloader/core/config"
	"github.com/m3rciful/soundloader/core/database"
	"github.com/m3rciful/soundloader/core/logger"
	"github.com/m3rciful/soundloader/core/telegram"
	"github.com/m3rciful/soundloader/internal/engine"
	"github.com/m3rciful/soundloader/internal/media"
	"github.com/m3rciful/soundloader/internal/storage"
)

const defaultConfigPath = "config.yml"

// storeAdapter narrows *storage.Store to the engine's session contract.
type storeAdapter struct {
	store *storage.Store
}

func (a storeAdapter) Session(ctx context.Context) (engine.StoreSession, error) {
	return a.store.Session(ctx)
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("soundloader: %v", err)
	}
}

func run() error {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}
	log.Printf("loading config: %s", cfgPath)
	cfg, err := coreconfig.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	dbCfg := database.Config{
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		User:           cfg.Database.User,
		Password:       cfg.Database.Password,
		Name:           cfg.Database.Name,
		SSLMode:        cfg.Database.SSLMode,
		MaxConnections: cfg.Database.MaxConnections,
	}
	if err := database.RunMigrations(dbCfg); err != nil {
		return err
	}
	db, err := database.Connect(dbCfg)
	if err != nil {
		return err
	}
	defer db.Close()

	client, err := telegram.NewClient(cfg.Telegram.Token)
	if err != nil {
		return err
	}

	outbox := telegram.NewOutbox(telegram.OutboxOptions{MaxRetries: 2})
	defer outbox.Close()

	resolver := media.NewYTDLPResolver(cfg.Media.ResolverPath)
	pipeline := media.NewPipeline(resolver, time.Duration(cfg.Media.ResolveIntervalMS)*time.Millisecond)
	downloadClient := telegram.BuildDownloadClient()

	deps := &engine.Deps{
		Bot:      client,
		Outbox:   outbox,
		Store:    storeAdapter{store: storage.New(db)},
		Pipeline: pipeline,
		Download: media.NewDownloader(downloadClient, int64(cfg.Media.MaxDownloadMB)*1024*1024),
		Thumbs:   media.NewThumbnailValidator(downloadClient),
		Payments: engine.Payments{
			ProviderToken: cfg.Payments.ProviderToken,
			Currency:      cfg.Payments.Currency,
			Amounts:       cfg.Payments.Amounts,
		},
		DefaultLanguage:     cfg.Language.Default,
		FallbackLanguage:    cfg.Language.Fallback,
		ConversationTimeout: time.Duration(cfg.Telegram.ConversationTimeoutSeconds) * time.Second,
	}

	dispatcher, err := engine.NewDispatcher(deps, time.Duration(cfg.Telegram.LongPollTimeoutSeconds)*time.Second)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.APP.Info("app ready",
		slog.String("event", "ready"),
		slog.String("bot", client.Username()),
	)
	err = dispatcher.Run(ctx)
	logger.APP.Info("shutting down",
		slog.String("event", "shutdown"),
	)
	return err
}
