// Package app wires configuration, AWS clients, services and controllers into
// the HTTP router and the upload handler shared by every entrypoint.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"academianet/config"
	"academianet/controllers"
	"academianet/logging"
	"academianet/routes"
	"academianet/services"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/gin-gonic/gin"
	"github.com/sashabaranov/go-openai"
)

// DynamoDB is the table client the app needs, including local table creation.
type DynamoDB interface {
	services.DynamoDBAPI
	services.TableCreator
}

// Clients are the external service clients. Tests substitute in-memory fakes.
type Clients struct {
	DynamoDB DynamoDB
	S3       services.S3API
	Cognito  services.CognitoAPI
	Converse services.ConverseAPI
	SES      services.SESAPI
	// OpenAI is only used when the openai provider is selected.
	OpenAI services.ChatCompletionAPI
}

// NewClients builds the AWS SDK clients described by cfg.
func NewClients(ctx context.Context, cfg config.Config) (Clients, error) {
	awsCfg, err := services.LoadAWSConfig(ctx, cfg.AWSRegion)
	if err != nil {
		return Clients{}, fmt.Errorf("load aws config: %w", err)
	}
	clients := Clients{
		DynamoDB: services.NewDynamoDBClient(awsCfg, cfg.DynamoDBEndpoint),
		S3:       services.NewS3Client(awsCfg, cfg.S3Endpoint),
		Cognito:  cip.NewFromConfig(awsCfg),
		Converse: bedrockruntime.NewFromConfig(awsCfg),
		SES:      sesv2.NewFromConfig(awsCfg),
	}
	if cfg.LLMProvider == config.ProviderOpenAI {
		clients.OpenAI = openai.NewClient(cfg.OpenAIKey)
	}
	return clients, nil
}

type App struct {
	Config config.Config
	Logger *slog.Logger
	Router *gin.Engine
	Upload *controllers.UploadController
	Chat   *services.ChatService
	Images *services.ImageLoader

	closers []func() error
}

// New builds every service and controller from cfg and clients.
func New(ctx context.Context, cfg config.Config, clients Clients, logger *slog.Logger) (*App, error) {
	logger = logging.OrNop(logger)

	backend, closer, err := conversationBackend(ctx, cfg, clients)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	logger.Info("conversation store selected", "backend", backend.Name())

	llm, err := completer(cfg, clients, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	store := services.NewConversationStore(backend, logger)
	a.Chat = services.NewChatService(store, llm, cfg.DefaultSystemPrompt, nil, logger)
	a.Images = services.NewImageLoader(clients.S3, cfg.UploadsBucket)

	institutions := services.NewInstitutionService(clients.DynamoDB, clients.Cognito, services.InstitutionServiceConfig{
		Table:            cfg.InstitutionsTable,
		UserPoolID:       cfg.UserPoolID,
		UserPoolClientID: cfg.UserPoolClientID,
		AutoConfirm:      cfg.AutoConfirmUsers,
	}, logger)
	applications := services.NewApplicationService(clients.DynamoDB, cfg.ApplicationsTable, notifier(cfg, clients, logger), nil, logger)
	ingestor := services.NewIngestor(clients.S3, clients.DynamoDB, services.IngestorConfig{
		Table:          cfg.InstitutionsSniesTable,
		LargeFileBytes: cfg.IngestLargeFileBytes,
	}, logger)

	gin.SetMode(cfg.GinMode)
	a.Router = routes.SetupRouter(routes.Controllers{
		Chat:         controllers.NewChatController(a.Chat, a.Images),
		WhatsApp:     controllers.NewWhatsAppController(a.Chat, cfg.WhatsAppSystemPrompt, logger),
		Institutions: controllers.NewInstitutionController(institutions),
		SniesCatalog: controllers.NewCatalogController(services.NewCatalogService(clients.DynamoDB, services.SniesCatalog(cfg.InstitutionsSniesTable), logger)),
		Programs:     controllers.NewCatalogController(services.NewCatalogService(clients.DynamoDB, services.ProgramsCatalog(cfg.ProgramsTable), logger)),
		Applications: controllers.NewApplicationController(applications),
	}, logger)
	a.Upload = controllers.NewUploadController(ingestor, cfg.UploadsPrefix, logger)
	return a, nil
}

// Close releases backend connections.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.Logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

func conversationBackend(ctx context.Context, cfg config.Config, clients Clients) (services.ConversationBackend, func() error, error) {
	switch cfg.ConversationStore {
	case config.StoreS3:
		return services.NewS3Backend(clients.S3, cfg.ConversationsBucket, nil), nil, nil
	case config.StoreDynamoDB:
		return services.NewDynamoDBBackend(clients.DynamoDB, cfg.ConversationsTable, nil), nil, nil
	case config.StorePostgres:
		pg, err := services.OpenPostgresBackend(ctx, cfg.PostgresURI, "", nil)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres conversation store: %w", err)
		}
		return pg, pg.Close, nil
	case config.StoreMemory, "":
		return services.NewMemoryBackend(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown conversation store %q", cfg.ConversationStore)
	}
}

func completer(cfg config.Config, clients Clients, logger *slog.Logger) (services.Completer, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		if clients.OpenAI == nil {
			return nil, fmt.Errorf("openai provider selected without a client")
		}
		return services.NewOpenAIGateway(clients.OpenAI, services.CompletionDefaults{
			ModelID:     cfg.OpenAIModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
		}, logger), nil
	case config.ProviderBedrock, "":
		return services.NewBedrockGateway(clients.Converse, services.CompletionDefaults{
			ModelID:     cfg.LLMModelID,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

// notifier returns nil when neither SMS nor email is configured.
func notifier(cfg config.Config, clients Clients, logger *slog.Logger) services.Notifier {
	var sms services.SMSSender
	var email services.EmailSender
	if cfg.TwilioEnabled() {
		sms = services.NewTwilioSMS(cfg.TwilioBaseURL, cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber)
	}
	if cfg.SESFromAddress != "" && clients.SES != nil {
		email = services.NewSESEmail(clients.SES, cfg.SESFromAddress)
	}
	if sms == nil && email == nil {
		return nil
	}
	return services.NewApplicationNotifier(sms, email, logger)
}
