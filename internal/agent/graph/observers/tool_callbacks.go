package observers

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/watson-civil-chatbot/server/pkg/logger"
	"github.com/watson-civil-chatbot/server/pkg/metrics"
)

type toolStartKey struct{}

// newToolHandler times every tool call and logs its arguments and output.
func newToolHandler() *callbackHelper.ToolCallbackHandler {
	return &callbackHelper.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *tool.CallbackInput) context.Context {
			ev := logx.Debug().Str("tool", info.Name)
			if input != nil {
				ev = ev.Str("arguments", truncate(input.ArgumentsInJSON, 500))
			}
			ev.Msg("tool start")
			return context.WithValue(ctx, toolStartKey{}, time.Now())
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *tool.CallbackOutput) context.Context {
			elapsed := observeDuration(ctx, info.Name)
			ev := logx.Debug().Str("tool", info.Name).Dur("elapsed", elapsed)
			if output != nil {
				ev = ev.Str("response", truncate(output.Response, 500))
			}
			ev.Msg("tool end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			observeDuration(ctx, info.Name)
			logx.Error().Err(err).Str("tool", info.Name).Msg("tool execution failed")
			return ctx
		},
	}
}

func observeDuration(ctx context.Context, name string) time.Duration {
	start, ok := ctx.Value(toolStartKey{}).(time.Time)
	if !ok {
		return 0
	}
	d := time.Since(start)
	metrics.ToolDuration.WithLabelValues(name).Observe(d.Seconds())
	return d
}
