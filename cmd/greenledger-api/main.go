package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"greenledger/internal/api"
	"greenledger/internal/config"
	"greenledger/internal/db"
	"greenledger/internal/game"
	"greenledger/internal/live"
	"greenledger/internal/store/memory"
	"greenledger/internal/store/postgres"

	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()
	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})).
		With("service", "greenledger-api")

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store init failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	hub := live.NewHub(logger)
	var notifier game.Notifier = hub
	var relay *live.RedisRelay
	if cfg.RedisURL != "" {
		relay, err = live.NewRedisRelay(ctx, cfg.RedisURL, hub, logger)
		if err != nil {
			logger.Error("redis relay init failed", "err", err)
			os.Exit(1)
		}
		defer relay.Close()
		notifier = relay
	}

	gameSvc := game.NewService(store, logger, game.Options{
		StartingCash:    cfg.StartingCash,
		BaseRevenue:     cfg.BaseRevenue,
		BulkConcurrency: cfg.BulkConcurrency,
		Notifier:        notifier,
	})
	if cfg.StartupSeedCatalog {
		if err := gameSvc.SeedCatalog(ctx); err != nil {
			logger.Error("seed catalog failed", "err", err)
			os.Exit(1)
		}
	}

	server := api.New(cfg, logger, gameSvc, hub)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if relay != nil {
		g.Go(func() error {
			relay.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Info("greenledger api listening", "addr", cfg.Addr, "driver", cfg.StoreDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	logger.Info("greenledger api stopped")
}

func openStore(ctx context.Context, cfg config.APIConfig, logger *slog.Logger) (game.Store, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory store, state is lost on restart")
		return memory.New(), func() {}, nil
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns})
	if err != nil {
		return nil, nil, err
	}
	if cfg.MigrateOnStart {
		migrator, err := db.NewMigrator(pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := migrator.Up(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return postgres.New(pool, logger), pool.Close, nil
}
