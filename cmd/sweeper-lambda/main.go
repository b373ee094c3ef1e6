package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/caremarket-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/caremarket-platform/internal/config"
	"github.com/wolfman30/caremarket-platform/internal/sweeper"
	"github.com/wolfman30/caremarket-platform/pkg/logging"
)

type sweepRunner interface {
	RunOnce(ctx context.Context) (sweeper.Result, error)
}

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	app, err := bootstrap.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	lambda.Start(newHandler(app.Sweeper, logger))
}

// newHandler runs one sweep per scheduled invocation.
func newHandler(runner sweepRunner, logger *logging.Logger) func(context.Context, events.CloudWatchEvent) (sweeper.Result, error) {
	return func(ctx context.Context, evt events.CloudWatchEvent) (sweeper.Result, error) {
		res, err := runner.RunOnce(ctx)
		if err != nil {
			logger.Error("scheduled sweep failed", "event_id", evt.ID, "error", err)
			return res, err
		}
		logger.Info("scheduled sweep complete", "event_id", evt.ID, "completed", res.Completed, "expired", res.Expired)
		return res, nil
	}
}
