package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/watson-civil-chatbot/server/internal/agent/graph/conversations"
	"github.com/watson-civil-chatbot/server/internal/agent/graph/prompts"
	"github.com/watson-civil-chatbot/server/internal/agent/graph/tools"
	"github.com/watson-civil-chatbot/server/internal/agent/model"
	"github.com/watson-civil-chatbot/server/internal/agent/session"
	"github.com/watson-civil-chatbot/server/internal/agent/trace"
	logx "github.com/watson-civil-chatbot/server/pkg/logger"
	"github.com/watson-civil-chatbot/server/pkg/metrics"
)

// LimitFallbackAnswer is used when the model spends its tool budget without
// producing any text.
const LimitFallbackAnswer = "I reached the tool call limit before I could finish. Please narrow the question and try again."

// NewInputConverterPreHandler creates the pre-handler for InputConverter node
func NewInputConverterPreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.AppState) (model.QueryInput, error) {
		s.SessionID = in.SessionID
		s.History = nil
		s.Trace = nil
		s.ToolCallCount = 0
		s.ToolCallLimitReached = false
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		return in, nil
	}
}

// InputConverterConfig is what the converter needs to build the first model context.
type InputConverterConfig struct {
	Messages     *conversations.MessagesManager
	Registry     *tools.Registry
	Title        string
	MaxToolCalls int
}

// NewInputConverterNode builds system prompt + history + prefixed query. Tool
// availability in the prompt reflects the session's gates at call time.
func NewInputConverterNode(cfg InputConverterConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		sess, _ := session.FromContext(ctx)

		systemPrompt, err := prompts.RenderSystem(ctx, prompts.SystemPromptConfig{
			Title:        cfg.Title,
			Tools:        cfg.Registry.Descriptors(sess),
			MaxToolCalls: normalizeMaxToolCalls(cfg.MaxToolCalls),
		})
		if err != nil {
			return nil, fmt.Errorf("render system prompt: %w", err)
		}

		prompt := input.Prompt
		if prompt == "" {
			prompt = input.Query
		}
		return cfg.Messages.BuildContext(sess, systemPrompt, input.Query, prompt), nil
	})
}

// NewChatModelPreHandler accumulates the conversation in state and appends a
// wrap-up notice once the tool budget is spent.
func NewChatModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		// Gemini OpenAI-compat may return tool results without tool_call_id
		if len(in) > 0 {
			last := in[len(in)-1]
			if last != nil && last.Role == schema.Tool && strings.TrimSpace(last.ToolCallID) == "" {
				for i := len(state.History) - 1; i >= 0; i-- {
					msg := state.History[i]
					if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
						continue
					}
					if id := msg.ToolCalls[0].ID; strings.TrimSpace(id) != "" {
						last.ToolCallID = id
					}
					break
				}
			}
		}

		state.History = append(state.History, in...)

		if checkAndMarkToolLimit(state, maxToolCalls) {
			state.History = append(state.History, schema.SystemMessage(fmt.Sprintf(
				"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
					"Please synthesize a helpful response using the information you've already gathered. "+
					"Acknowledge any limitations in your response if you couldn't complete all necessary tool calls.",
				normalizeMaxToolCalls(maxToolCalls),
			)))
		}

		logx.Debug().Str("session_id", state.SessionID).Int("messages", len(state.History)).Msg("AI thinking...")
		return state.History, nil
	}
}

// NewChatModelPostHandler accounts usage cost, fills missing tool-call IDs and
// records the reply in state.
func NewChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("chat model returned no message")
		}

		if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			usage := out.ResponseMeta.Usage
			inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			out.Extra["usage_cost"] = map[string]any{
				"currency":          "USD",
				"model":             modelName,
				"prompt_tokens":     usage.PromptTokens,
				"completion_tokens": usage.CompletionTokens,
				"total_tokens":      usage.TotalTokens,
				"input_cost":        inC,
				"output_cost":       outC,
				"total_cost":        totalC,
			}
			logx.Debug().
				Str("session_id", state.SessionID).
				Str("node", NodeChatModel).
				Str("model", modelName).
				Int("prompt_tokens", usage.PromptTokens).
				Int("completion_tokens", usage.CompletionTokens).
				Int("total_tokens", usage.TotalTokens).
				Float64("total_cost_usd", totalC).
				Msg("LLM usage")

			state.TotalCostUSD += totalC
			metrics.LLMCostUSD.WithLabelValues(modelName).Add(totalC)
		}

		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
		}

		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(out.ToolCalls)).Msg("Calling tools")
		} else {
			logx.Debug().Msg("AI response ready")
		}
		return out, nil
	}
}

// NewToolExecutorCondition routes to the tools node while the model asks for
// tools and budget remains, otherwise to the finalizer.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		}); err != nil {
			return "", err
		}

		if limitReached {
			logx.Debug().Msg("Tool limit reached - routing to finalizer")
			return NodeFinalizer, nil
		}
		if input != nil && len(input.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolExecutor")
			return NodeToolExecutor, nil
		}
		return NodeFinalizer, nil
	}
}

// NewToolExecutorPreHandler counts tool calls and records one trace entry per call.
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		for _, tc := range in.ToolCalls {
			state.Trace = append(state.Trace, trace.ToolInvocation(tc.Function.Name, tools.DecodeInput(tc.Function.Arguments)))
		}

		if incrementToolCallAndCheck(state, len(in.ToolCalls), maxToolCalls) {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", normalizeMaxToolCalls(maxToolCalls)).
				Str("session_id", state.SessionID).
				Msg("Tool call limit exceeded - finishing this batch")
		}
		return in, nil
	}
}

// NewFinalizerNode closes the trace with the final answer and emits the reply.
func NewFinalizerNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (*model.Reply, error) {
		reply := &model.Reply{}
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			answer := ""
			if msg != nil {
				answer = strings.TrimSpace(msg.Content)
			}
			if answer == "" && state.ToolCallLimitReached {
				answer = LimitFallbackAnswer
			}
			state.Trace = append(state.Trace, trace.FinalAnswer(answer))

			reply.Answer = answer
			reply.Trace = append([]trace.Entry(nil), state.Trace...)
			reply.TotalCostUSD = state.TotalCostUSD
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return reply, nil
	})
}
