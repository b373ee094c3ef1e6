package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wolfman30/caremarket-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/caremarket-platform/internal/config"
	"github.com/wolfman30/caremarket-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if len(os.Args) > 1 && os.Args[1] == "once" {
		res, err := app.Sweeper.RunOnce(ctx)
		if err != nil {
			logger.Error("sweep failed", "error", err)
			os.Exit(1)
		}
		logger.Info("sweep complete", "completed", res.Completed, "expired", res.Expired)
		return
	}

	app.Sweeper.Run(ctx)
}
