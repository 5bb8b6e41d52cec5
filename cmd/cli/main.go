package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mlukins/cellar/internal/client/cli"
	"github.com/mlukins/cellar/internal/client/config"
	"github.com/mlukins/cellar/internal/client/database"
	"github.com/mlukins/cellar/internal/client/monitor"
	"github.com/mlukins/cellar/internal/client/remote"
	"github.com/mlukins/cellar/internal/client/repositories/outbox"
	"github.com/mlukins/cellar/internal/client/repositories/photos"
	"github.com/mlukins/cellar/internal/client/repositories/store"
	"github.com/mlukins/cellar/internal/client/services"
	syncengine "github.com/mlukins/cellar/internal/client/sync"
	"github.com/mlukins/cellar/internal/logging"

	_ "modernc.org/sqlite"
)

func main() {
	cfg := config.LoadConfig()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.Init(ctx, cfg.DatabasePath)
	if err != nil {
		logger.Error(ctx, "failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	st := store.NewSQLiteRepository(db, logger)
	ob := outbox.NewSQLiteRepository(db)
	ph := photos.NewSQLiteRepository(db)

	client := remote.NewHTTPClient(cfg.ServerEndpointAddr, cfg.APIToken, cfg.RequestTimeout)
	defer client.Close()

	binaries, err := remote.NewS3Store(ctx, remote.S3Options{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		logger.Error(ctx, "failed to initialize photo storage", "error", err)
		os.Exit(1)
	}

	engine := syncengine.NewEngine(st, ob, ph, client, binaries, logger)
	service := services.NewCellarService(st, ob, ph, client, binaries, engine, cfg.PhotoBucket, logger)

	app := cli.NewApp(service)

	mon := monitor.New(client, engine, ob, ph, cfg.OnlineCheckInterval, app.SetStatus, logger)
	go mon.Run(ctx)

	app.Run(ctx)
}
