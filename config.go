package main

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/watson-civil-chatbot/server/internal/agent/graph/nodes"
	"github.com/watson-civil-chatbot/server/internal/agent/model"
	"github.com/watson-civil-chatbot/server/internal/core"
	errx "github.com/watson-civil-chatbot/server/internal/core/error"
	logx "github.com/watson-civil-chatbot/server/pkg/logger"
	pkgredis "github.com/watson-civil-chatbot/server/pkg/redis"
)

// AppConfig defines all configurable parameters, sourced from environment
// variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	// LogFile receives logs while the chat UI owns the terminal.
	LogFile     string `envconfig:"LOG_FILE" default:"chatbot.log"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	LLM model.LLMConfig

	// Agent configs
	Conversation model.ConversationConfig
	Search       model.SearchConfig
	Data         model.DataConfig
	Chat         model.ChatConfig
}

// loadConfig reads .env (if present) and the process environment.
func loadConfig(envFile string) (AppConfig, error) {
	if err := godotenv.Load(envFile); err != nil {
		logx.Warn().Err(err).Str("file", envFile).Msg("Could not load .env file")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, errx.Config("failed to process environment config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks what struct tags cannot: blank credentials and
// provider-dependent keys.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.LLM.OpenAIAPIKey) == "" {
		return errx.Config("OPENAI_API_KEY is empty")
	}
	if strings.TrimSpace(c.Search.APIKey) == "" {
		return errx.Config("SERPAPI_API_KEY is empty")
	}
	switch strings.ToLower(strings.TrimSpace(c.LLM.Provider)) {
	case "", nodes.ProviderOpenAI:
	case nodes.ProviderGemini:
		if strings.TrimSpace(c.LLM.GeminiAPIKey) == "" {
			return errx.Config("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	default:
		return errx.Config("unsupported LLM_PROVIDER %q", c.LLM.Provider)
	}
	if c.Conversation.MaxTurns < 0 {
		return errx.Config("CONVERSATION_MAX_TURNS must not be negative")
	}
	if c.Conversation.Tools.MaxCalls <= 0 {
		return errx.Config("CONVERSATION_TOOL_MAX_CALLS must be positive")
	}
	return nil
}

func (c *AppConfig) env() core.Environment {
	return core.ParseEnvironment(c.Environment)
}
