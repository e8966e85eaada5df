package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, StoreMemory, cfg.ConversationStore)
	require.Equal(t, ProviderBedrock, cfg.LLMProvider)
	require.Equal(t, "amazon.nova-lite-v1:0", cfg.LLMModelID)
	require.InDelta(t, 0.7, cfg.LLMTemperature, 1e-9)
	require.Equal(t, 2048, cfg.LLMMaxTokens)
	require.Equal(t, "instituciones_snies", cfg.InstitutionsSniesTable)
	require.Equal(t, "uploads/", cfg.UploadsPrefix)
	require.True(t, cfg.AutoConfirmUsers)
	require.EqualValues(t, 30*1024*1024, cfg.IngestLargeFileBytes)
	require.False(t, cfg.TwilioEnabled())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("CONVERSATION_STORE", "S3")
	t.Setenv("CONVERSATIONS_BUCKET", "chat-bucket")
	t.Setenv("INSTITUTIONS_TABLE", "Inst")
	t.Setenv("LLM_TEMPERATURE", "0.2")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, StoreS3, cfg.ConversationStore)
	require.Equal(t, "chat-bucket", cfg.ConversationsBucket)
	require.Equal(t, "Inst", cfg.InstitutionsTable)
	require.InDelta(t, 0.2, cfg.LLMTemperature, 1e-9)
}

func TestLoadClientIDAlias(t *testing.T) {
	t.Setenv("CLIENT_ID", "abc123")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "abc123", cfg.UserPoolClientID)
}

func TestLoadConfigFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(p, []byte("programs_table: Programas\nllm_max_tokens: 512\n"), 0o644))
	t.Setenv("CONFIG_FILE", p)
	t.Setenv("LLM_MAX_TOKENS", "1024")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "Programas", cfg.ProgramsTable)
	require.Equal(t, 1024, cfg.LLMMaxTokens)
}

func TestValidate(t *testing.T) {
	base := Config{
		ConversationStore: StoreMemory,
		LLMProvider:       ProviderBedrock,
		LLMTemperature:    0.7,
		LLMMaxTokens:      2048,
	}
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"unknown store":        func(c *Config) { c.ConversationStore = "redis" },
		"s3 without bucket":    func(c *Config) { c.ConversationStore = StoreS3 },
		"postgres without uri": func(c *Config) { c.ConversationStore = StorePostgres },
		"unknown provider":     func(c *Config) { c.LLMProvider = "vertex" },
		"openai without key":   func(c *Config) { c.LLMProvider = ProviderOpenAI },
		"temperature too high": func(c *Config) { c.LLMTemperature = 1.5 },
		"zero max tokens":      func(c *Config) { c.LLMMaxTokens = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}
