package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/digkill/cvtailor/internal/api"
	"github.com/digkill/cvtailor/internal/config"
	"github.com/digkill/cvtailor/internal/database"
	"github.com/digkill/cvtailor/internal/repository"
	"github.com/digkill/cvtailor/internal/service"
	"github.com/digkill/cvtailor/internal/session"
	"github.com/digkill/cvtailor/internal/storage"
	"github.com/digkill/cvtailor/internal/web"
	"github.com/digkill/cvtailor/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cache service.AccountCache = repository.NewMemoryAccountCache()
	if cfg.RedisURL != "" {
		redisCache, err := repository.NewRedisAccountCache(ctx, cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer redisCache.Close()
		cache = redisCache
	}

	var journal service.AttemptJournal = service.NopJournal{}
	if cfg.MySQLDSN != "" {
		db, err := database.Connect(cfg)
		if err != nil {
			log.Fatalf("database connect: %v", err)
		}
		defer db.Close()

		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("database migrate: %v", err)
		}
		journal = repository.NewAttemptRepository(db)
	}

	var exporter web.Exporter
	if cfg.ExportsEnabled() {
		uploader, err := storage.NewUploader(storage.ConfigFrom(cfg))
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		exporter = uploader
	}

	client := api.NewClient(cfg, logr)
	state := session.NewStateManager()
	accounts := service.NewAccountService(client, cache, logr)
	billing := service.NewBillingService(client, state, journal, cfg.RequestTimeout, logr)
	listener := service.NewPaymentListener(state, accounts, logr)

	server, err := web.NewServer(cfg, logr, web.Deps{
		API:      client,
		Accounts: accounts,
		Billing:  billing,
		Listener: listener,
		State:    state,
		Exporter: exporter,
	})
	if err != nil {
		log.Fatalf("web server: %v", err)
	}

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("web server stopped", "err", err)
	}
}
