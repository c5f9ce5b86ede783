package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"greenledger/internal/config"
	"greenledger/internal/db"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down (optional)")
	flag.Parse()

	config.LoadDotEnv()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "greenledger-migrate")

	databaseURL, err := config.LoadMigrateFromEnv()
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.Connect(ctx, databaseURL, db.PoolOptions{MaxConns: 2, MinConns: 1})
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	migrator, err := db.NewMigrator(pool, log)
	if err != nil {
		log.Error("configure migrator", "err", err)
		os.Exit(1)
	}

	switch *command {
	case "up":
		err = migrator.Up(ctx)
	case "status":
		err = migrator.Status(ctx)
	case "down":
		err = migrator.Down(ctx, *target)
	default:
		log.Error("unsupported command", "command", *command)
		os.Exit(1)
	}
	if err != nil {
		log.Error("migration command failed", "command", *command, "err", err)
		os.Exit(1)
	}
	log.Info("migration command completed", "command", *command)
}
