package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/watson-civil-chatbot/server/internal/agent/model"
)

//go:embed template/system_prompt.txt
var coreSystemPrompt string

// SystemPromptConfig feeds the orchestrator system prompt.
type SystemPromptConfig struct {
	Title        string
	Tools        []model.ToolDescriptor
	MaxToolCalls int
}

// RenderSystem renders the orchestrator system prompt through an eino prompt
// template so prompt callbacks fire.
func RenderSystem(ctx context.Context, cfg SystemPromptConfig) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(coreSystemPrompt),
	)
	title := cfg.Title
	if title == "" {
		title = "Watson Civil Database Chatbot"
	}
	vars := map[string]any{
		"Title":        title,
		"Tools":        cfg.Tools,
		"MaxToolCalls": cfg.MaxToolCalls,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return msgs[0].Content, nil
}
