package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StoreS3       = "s3"
	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"

	ProviderBedrock = "bedrock"
	ProviderOpenAI  = "openai"
)

const defaultSystemPrompt = `Eres un asistente virtual especializado en orientación académica para estudiantes en Colombia.
Tu objetivo es proporcionar información precisa sobre instituciones educativas, programas académicos, y opciones de carrera.
Responde de manera concisa, amable y en español. Si no conoces la respuesta, indícalo honestamente.
No inventes información que no conoces. Limita tus respuestas a temas educativos y académicos.`

// Config holds every setting the handlers and jobs read at process start.
type Config struct {
	Port    string
	GinMode string

	AWSRegion        string
	DynamoDBEndpoint string
	S3Endpoint       string

	InstitutionsTable      string
	InstitutionsSniesTable string
	ProgramsTable          string
	ApplicationsTable      string
	ConversationsTable     string

	ConversationStore   string
	ConversationsBucket string
	UploadsBucket       string
	UploadsPrefix       string
	PostgresURI         string

	UserPoolID       string
	UserPoolClientID string
	AutoConfirmUsers bool

	LLMProvider    string
	LLMModelID     string
	LLMTemperature float64
	LLMMaxTokens   int
	OpenAIKey      string
	OpenAIModel    string

	DefaultSystemPrompt  string
	WhatsAppSystemPrompt string

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string
	TwilioBaseURL     string
	SESFromAddress    string

	IngestLargeFileBytes int64

	LogLevel  string
	LogFormat string
}

// Load reads the configuration from CONFIG_FILE (when set) and the environment.
// Environment variables win over file values.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	_ = v.BindEnv("user_pool_client_id", "USER_POOL_CLIENT_ID", "CLIENT_ID")

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("gin_mode", "release")
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("dynamodb_endpoint", "")
	v.SetDefault("s3_endpoint", "")

	v.SetDefault("institutions_table", "Institutions")
	v.SetDefault("institutions_snies_table", "instituciones_snies")
	v.SetDefault("programs_table", "ProgramasAcademicos")
	v.SetDefault("applications_table", "Applications")
	v.SetDefault("conversations_table", "Conversations")

	v.SetDefault("conversation_store", StoreMemory)
	v.SetDefault("conversations_bucket", "")
	v.SetDefault("uploads_bucket", "")
	v.SetDefault("uploads_prefix", "uploads/")
	v.SetDefault("postgres_uri", "")

	v.SetDefault("user_pool_id", "")
	v.SetDefault("user_pool_client_id", "")
	v.SetDefault("auto_confirm_users", true)

	v.SetDefault("llm_provider", ProviderBedrock)
	v.SetDefault("llm_model_id", "amazon.nova-lite-v1:0")
	v.SetDefault("llm_temperature", 0.7)
	v.SetDefault("llm_max_tokens", 2048)
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", "gpt-4o-mini")

	v.SetDefault("default_system_prompt", defaultSystemPrompt)
	v.SetDefault("whatsapp_system_prompt", defaultSystemPrompt)

	v.SetDefault("twilio_account_sid", "")
	v.SetDefault("twilio_auth_token", "")
	v.SetDefault("twilio_phone_number", "")
	v.SetDefault("twilio_base_url", "https://api.twilio.com")
	v.SetDefault("ses_from_address", "")

	v.SetDefault("ingest_large_file_bytes", 30*1024*1024)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("config_file", "")
}

func fromViper(v *viper.Viper) Config {
	return Config{
		Port:    v.GetString("port"),
		GinMode: v.GetString("gin_mode"),

		AWSRegion:        v.GetString("aws_region"),
		DynamoDBEndpoint: v.GetString("dynamodb_endpoint"),
		S3Endpoint:       v.GetString("s3_endpoint"),

		InstitutionsTable:      v.GetString("institutions_table"),
		InstitutionsSniesTable: v.GetString("institutions_snies_table"),
		ProgramsTable:          v.GetString("programs_table"),
		ApplicationsTable:      v.GetString("applications_table"),
		ConversationsTable:     v.GetString("conversations_table"),

		ConversationStore:   strings.ToLower(strings.TrimSpace(v.GetString("conversation_store"))),
		ConversationsBucket: v.GetString("conversations_bucket"),
		UploadsBucket:       v.GetString("uploads_bucket"),
		UploadsPrefix:       v.GetString("uploads_prefix"),
		PostgresURI:         v.GetString("postgres_uri"),

		UserPoolID:       v.GetString("user_pool_id"),
		UserPoolClientID: v.GetString("user_pool_client_id"),
		AutoConfirmUsers: v.GetBool("auto_confirm_users"),

		LLMProvider:    strings.ToLower(strings.TrimSpace(v.GetString("llm_provider"))),
		LLMModelID:     v.GetString("llm_model_id"),
		LLMTemperature: v.GetFloat64("llm_temperature"),
		LLMMaxTokens:   v.GetInt("llm_max_tokens"),
		OpenAIKey:      v.GetString("openai_api_key"),
		OpenAIModel:    v.GetString("openai_model"),

		DefaultSystemPrompt:  v.GetString("default_system_prompt"),
		WhatsAppSystemPrompt: v.GetString("whatsapp_system_prompt"),

		TwilioAccountSID:  v.GetString("twilio_account_sid"),
		TwilioAuthToken:   v.GetString("twilio_auth_token"),
		TwilioPhoneNumber: v.GetString("twilio_phone_number"),
		TwilioBaseURL:     v.GetString("twilio_base_url"),
		SESFromAddress:    v.GetString("ses_from_address"),

		IngestLargeFileBytes: v.GetInt64("ingest_large_file_bytes"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
	}
}

// Validate checks the settings that select backends and their prerequisites.
func (c Config) Validate() error {
	switch c.ConversationStore {
	case StoreMemory, StoreDynamoDB:
	case StoreS3:
		if c.ConversationsBucket == "" {
			return fmt.Errorf("CONVERSATIONS_BUCKET is required when CONVERSATION_STORE=%s", StoreS3)
		}
	case StorePostgres:
		if c.PostgresURI == "" {
			return fmt.Errorf("POSTGRES_URI is required when CONVERSATION_STORE=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("unknown CONVERSATION_STORE %q", c.ConversationStore)
	}

	switch c.LLMProvider {
	case ProviderBedrock:
	case ProviderOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=%s", ProviderOpenAI)
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	if c.LLMTemperature < 0 || c.LLMTemperature > 1 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0,1], got %v", c.LLMTemperature)
	}
	if c.LLMMaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive, got %d", c.LLMMaxTokens)
	}
	return nil
}

// TwilioEnabled reports whether SMS notifications can be sent.
func (c Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}
