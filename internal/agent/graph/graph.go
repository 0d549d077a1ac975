package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/watson-civil-chatbot/server/internal/agent/contextdoc"
	"github.com/watson-civil-chatbot/server/internal/agent/graph/conversations"
	"github.com/watson-civil-chatbot/server/internal/agent/graph/nodes"
	"github.com/watson-civil-chatbot/server/internal/agent/graph/observers"
	"github.com/watson-civil-chatbot/server/internal/agent/graph/tools"
	"github.com/watson-civil-chatbot/server/internal/agent/model"
	"github.com/watson-civil-chatbot/server/internal/agent/session"
	"github.com/watson-civil-chatbot/server/internal/agent/trace"
	errx "github.com/watson-civil-chatbot/server/internal/core/error"
	logx "github.com/watson-civil-chatbot/server/pkg/logger"
	"github.com/watson-civil-chatbot/server/pkg/metrics"
)

// Config holds everything needed to compose the orchestrator graph end-to-end.
type Config struct {
	// ChatModel is the base model; tools are bound to a copy of it.
	ChatModel    einomodel.ToolCallingChatModel
	ModelName    string
	Registry     *tools.Registry
	Conversation model.ConversationConfig
	Title        string
}

// Orchestrator routes one user query through the tool-calling graph and
// renders the answer with its chain-of-thought report.
type Orchestrator struct {
	runnable   compose.Runnable[model.QueryInput, *model.Reply]
	registry   *tools.Registry
	contextDoc string
}

// GraphBuilder handles the construction of the agent graph
type GraphBuilder struct {
	config *Config
	graph  *compose.Graph[model.QueryInput, *model.Reply]
}

// New builds and compiles the graph.
func New(ctx context.Context, cfg Config) (*Orchestrator, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("chat model is nil")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is nil")
	}

	b := &GraphBuilder{
		config: &cfg,
		graph: compose.NewGraph[model.QueryInput, *model.Reply](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := b.addNodes(ctx); err != nil {
		return nil, err
	}
	if err := b.addEdges(); err != nil {
		return nil, err
	}
	if err := b.addBranches(); err != nil {
		return nil, err
	}
	runnable, err := b.compile(ctx)
	if err != nil {
		return nil, err
	}

	logx.Debug().Strs("tools", cfg.Registry.Names()).Msg("Orchestrator graph built successfully")
	return &Orchestrator{
		runnable:   runnable,
		registry:   cfg.Registry,
		contextDoc: cfg.Conversation.ContextDoc,
	}, nil
}

// Handle answers query on behalf of sess. The returned text is the answer
// followed by the rendered trace and the tools used. Model or graph failures
// come back as an errx.AppError.
func (o *Orchestrator) Handle(ctx context.Context, sess *model.Session, query string) (string, error) {
	start := time.Now()
	defer func() { metrics.TurnDuration.Observe(time.Since(start).Seconds()) }()

	if sess == nil {
		sess = session.New()
	}
	ctx = session.NewContext(ctx, sess)

	reply, err := o.runnable.Invoke(ctx, model.QueryInput{
		SessionID: sess.ID,
		Query:     query,
		Prompt:    contextdoc.LoadAndPrefix(o.contextDoc, query),
	}, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		logx.Error().Err(err).Str("session_id", sess.ID).Msg("orchestrator turn failed")
		return "", errx.WrapModel(err)
	}
	if reply == nil {
		return "", errx.WrapModel(fmt.Errorf("graph returned no reply"))
	}

	logx.Info().
		Str("session_id", sess.ID).
		Strs("tools", trace.ToolNames(reply.Trace)).
		Float64("cost_usd", reply.TotalCostUSD).
		Dur("elapsed", time.Since(start)).
		Msg("turn complete")
	return trace.Report(reply.Answer, reply.Trace), nil
}

// RunTool dispatches one tool directly, bypassing the model. Gates still apply.
func (o *Orchestrator) RunTool(ctx context.Context, sess *model.Session, name, input string) tools.Result {
	return o.registry.Run(session.NewContext(ctx, sess), sess, name, input)
}

// Tools describes the registered tools as seen from sess.
func (o *Orchestrator) Tools(sess *model.Session) []model.ToolDescriptor {
	return o.registry.Descriptors(sess)
}

func (b *GraphBuilder) addNodes(ctx context.Context) error {
	cfg := b.config
	maxCalls := cfg.Conversation.Tools.MaxCalls

	einoTools := cfg.Registry.EinoTools()
	toolInfos := make([]*schema.ToolInfo, 0, len(einoTools))
	for _, t := range einoTools {
		info, err := t.Info(ctx)
		if err != nil {
			return fmt.Errorf("failed to get tool info: %w", err)
		}
		toolInfos = append(toolInfos, info)
	}

	chatModel, err := cfg.ChatModel.WithTools(toolInfos)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to chat model")
		return fmt.Errorf("failed to bind tools to chat model: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               einoTools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"available\":%q}", name, strings.Join(cfg.Registry.Names(), ", ")), nil
		},
		ToolArgumentsHandler: tools.NormalizeArguments,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	steps := []error{
		b.graph.AddLambdaNode(nodes.NodeInputConverter,
			nodes.NewInputConverterNode(nodes.InputConverterConfig{
				Messages:     conversations.NewMessagesManager(cfg.Conversation),
				Registry:     cfg.Registry,
				Title:        cfg.Title,
				MaxToolCalls: maxCalls,
			}),
			compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
		),
		b.graph.AddChatModelNode(nodes.NodeChatModel, chatModel,
			compose.WithStatePreHandler(nodes.NewChatModelPreHandler(maxCalls)),
			compose.WithStatePostHandler(nodes.NewChatModelPostHandler(cfg.ModelName)),
		),
		b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
			compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(maxCalls)),
		),
		b.graph.AddLambdaNode(nodes.NodeFinalizer, nodes.NewFinalizerNode()),
	}
	for _, err := range steps {
		if err != nil {
			return fmt.Errorf("error adding node: %w", err)
		}
	}
	return nil
}

func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeChatModel},
		{nodes.NodeToolExecutor, nodes.NodeChatModel},
		{nodes.NodeFinalizer, compose.END},
	}
	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

func (b *GraphBuilder) addBranches() error {
	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			nodes.NodeFinalizer:    true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}
	return nil
}

// compile limits total run steps so a looping model cannot spin forever.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *model.Reply], error) {
	maxSteps := 10 + b.config.Conversation.Tools.MaxCalls*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}
	return runnable, nil
}
