// Lambda entrypoint for the HTTP API behind API Gateway.
package main

import (
	"context"
	"os"

	"academianet/app"
	"academianet/config"
	"academianet/logging"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
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

	adapter := ginadapter.New(a.Router)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
