// Lambda entrypoint for S3 ObjectCreated notifications on the uploads prefix.
package main

import (
	"context"
	"os"

	"academianet/app"
	"academianet/config"
	"academianet/logging"

	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	cfg, err := config.Load()
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	clients, err := app.NewClients(ctx, cfg)
	if err != nil {
		logger.Error("aws clients", "error", err)
		os.Exit(1)
	}
	a, err := app.New(ctx, cfg, clients, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	lambda.Start(a.Upload.HandleS3Event)
}
