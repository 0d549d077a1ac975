package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/watson-civil-chatbot/server/pkg/logger"
	"github.com/watson-civil-chatbot/server/pkg/metrics"
)

// newModelHandler logs the context sent to the model and its reply, and
// exports token usage.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			if input == nil {
				return ctx
			}
			ev := logx.Debug().Str("node", info.Name).Int("messages", len(input.Messages)).Int("tools", len(input.Tools))
			if um := lastUserContent(input.Messages); um != "" {
				ev = ev.Str("user", truncate(um, 300))
			}
			ev.Msg("model start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			if output == nil {
				return ctx
			}
			modelName := "unknown"
			if output.Config != nil && output.Config.Model != "" {
				modelName = output.Config.Model
			}
			if u := output.TokenUsage; u != nil {
				metrics.LLMTokensTotal.WithLabelValues(modelName, "input").Add(float64(u.PromptTokens))
				metrics.LLMTokensTotal.WithLabelValues(modelName, "output").Add(float64(u.CompletionTokens))
			}
			ev := logx.Debug().Str("node", info.Name).Str("model", modelName)
			if m := output.Message; m != nil {
				ev = ev.Int("tool_calls", len(m.ToolCalls)).Str("assistant", truncate(strings.TrimSpace(m.Content), 300))
			}
			ev.Msg("model end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("node", info.Name).Msg("model call failed")
			return ctx
		},
	}
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
