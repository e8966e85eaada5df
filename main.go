package main

import (
	"context"
	"os"

	"academianet/app"
	"academianet/config"
	"academianet/logging"
	"academianet/services"
)

// Local development server. Against DynamoDB Local (DYNAMODB_ENDPOINT set) the
// tables are created on start.
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

	if cfg.DynamoDBEndpoint != "" {
		tables := []struct {
			name, key string
			indexes   []string
		}{
			{cfg.InstitutionsTable, "id", []string{services.InstitutionIndexKey}},
			{cfg.InstitutionsSniesTable, "codigo", nil},
			{cfg.ProgramsTable, "id", nil},
			{cfg.ApplicationsTable, "id", nil},
			{cfg.ConversationsTable, "id", nil},
		}
		for _, table := range tables {
			if err := services.EnsureTable(ctx, clients.DynamoDB, table.name, table.key, logger, table.indexes...); err != nil {
				logger.Error("ensure table", "table", table.name, "error", err)
				os.Exit(1)
			}
		}
	}

	a, err := app.New(ctx, cfg, clients, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	addr := ":" + cfg.Port
	logger.Info("server starting", "addr", addr, "store", cfg.ConversationStore, "provider", cfg.LLMProvider)
	if err := a.Router.Run(addr); err != nil {
		logger.Error("server stopped", "error", err)
	}
}
