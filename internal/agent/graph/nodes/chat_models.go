package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/watson-civil-chatbot/server/internal/agent/model"
	logx "github.com/watson-civil-chatbot/server/pkg/logger"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// NewChatModel creates the tool-free base chat model for the configured provider.
// Tools are bound per graph with WithTools, which returns a new instance and
// leaves the base model usable for plain completions.
func NewChatModel(ctx context.Context, cfg model.LLMConfig) (einomodel.ToolCallingChatModel, error) {
	temperature := cfg.Temperature
	var maxTokens *int
	if cfg.MaxTokens > 0 {
		mt := cfg.MaxTokens
		maxTokens = &mt
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: &temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			logx.Error().Err(err).Msg("Error creating OpenAI chat model")
			return nil, fmt.Errorf("error creating OpenAI chat model: %w", err)
		}
		return cm, nil

	case ProviderGemini:
		clientCfg := &genai.ClientConfig{
			APIKey:  cfg.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if cfg.BaseURL != "" {
			clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
		}
		client, err := genai.NewClient(ctx, clientCfg)
		if err != nil {
			logx.Error().Err(err).Msg("Error creating Gemini client")
			return nil, fmt.Errorf("error creating Gemini client: %w", err)
		}
		cm, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client:      client,
			Model:       cfg.Model,
			Temperature: &temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			logx.Error().Err(err).Msg("Error creating Gemini chat model")
			return nil, fmt.Errorf("error creating Gemini chat model: %w", err)
		}
		return cm, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
