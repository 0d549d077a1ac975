package main

import (
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watson-civil-chatbot/server/internal/core"
	errx "github.com/watson-civil-chatbot/server/internal/core/error"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SERPAPI_API_KEY", "serp-test")
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := loadConfig(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 8, cfg.Conversation.Tools.MaxCalls)
	assert.Equal(t, 24*time.Hour, cfg.Conversation.TTL)
	assert.Equal(t, "sqlite://fdot_database.db", cfg.Data.DatabaseURL)
	assert.Equal(t, 10*time.Millisecond, cfg.Chat.CharDelay)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, core.Development, cfg.env())
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("CONVERSATION_TOOL_MAX_CALLS", "3")
	t.Setenv("SQL_DATABASE_URL", "postgres://u:p@db/fdot")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ENVIRONMENT", "Production")

	cfg, err := loadConfig(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Conversation.Tools.MaxCalls)
	assert.Equal(t, "postgres://u:p@db/fdot", cfg.Data.DatabaseURL)
	assert.True(t, cfg.Redis.Enabled())
	assert.True(t, cfg.env().IsProduction())
}

func TestLoadConfigMissingCredentials(t *testing.T) {
	for _, key := range []string{"OPENAI_API_KEY", "SERPAPI_API_KEY"} {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "  ")

			_, err := loadConfig(noEnvFile(t))
			require.Error(t, err)
			assert.Equal(t, http.StatusInternalServerError, errx.StatusOf(err))
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestValidateGeminiNeedsKey(t *testing.T) {
	setRequired(t)
	t.Setenv("LLM_PROVIDER", "gemini")

	_, err := loadConfig(noEnvFile(t))
	assert.ErrorContains(t, err, "GEMINI_API_KEY")

	t.Setenv("GEMINI_API_KEY", "g")
	_, err = loadConfig(noEnvFile(t))
	assert.NoError(t, err)
}

func TestValidateUnknownProvider(t *testing.T) {
	setRequired(t)
	t.Setenv("LLM_PROVIDER", "llama")
	_, err := loadConfig(noEnvFile(t))
	assert.ErrorContains(t, err, "unsupported LLM_PROVIDER")
}

func TestCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["chat"])
	assert.True(t, names["ask"])
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("session"))
}
