package graph

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watson-civil-chatbot/server/internal/agent/graph/nodes"
	"github.com/watson-civil-chatbot/server/internal/agent/graph/tools"
	"github.com/watson-civil-chatbot/server/internal/agent/model"
	errx "github.com/watson-civil-chatbot/server/internal/core/error"
	logx "github.com/watson-civil-chatbot/server/pkg/logger"
)

func TestMain(m *testing.M) {
	logx.Discard()
	os.Exit(m.Run())
}

// scriptedModel answers each Generate call with the next scripted reply.
// It records every input so tests can assert on the context it was given.
type scriptedModel struct {
	mu      sync.Mutex
	replies []func(in []*schema.Message) (*schema.Message, error)
	inputs  [][]*schema.Message
	tools   []*schema.ToolInfo
}

func (m *scriptedModel) Generate(_ context.Context, in []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, append([]*schema.Message(nil), in...))
	if len(m.replies) == 0 {
		return nil, errors.New("script exhausted")
	}
	next := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return next(in)
}

func (m *scriptedModel) Stream(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	m.mu.Lock()
	m.tools = tools
	m.mu.Unlock()
	return m, nil
}

func answer(text string) func([]*schema.Message) (*schema.Message, error) {
	return func([]*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage(text, nil), nil
	}
}

func call(id, name, args string) func([]*schema.Message) (*schema.Message, error) {
	return func([]*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("", []schema.ToolCall{{
			ID:       id,
			Function: schema.FunctionCall{Name: name, Arguments: args},
		}}), nil
	}
}

type stubTool struct {
	name   string
	result tools.Result
}

func (s stubTool) Name() string                             { return s.name }
func (s stubTool) Description() string                      { return s.name + " tool" }
func (s stubTool) Run(context.Context, string) tools.Result { return s.result }

func newOrchestrator(t *testing.T, m *scriptedModel, conv model.ConversationConfig) *Orchestrator {
	t.Helper()
	reg, err := tools.NewRegistry(tools.DefaultGateRules,
		stubTool{name: tools.ToolSQL, result: tools.OK("| n |\n| --- |\n| 3 |")},
		tools.NewChart(""),
		tools.Echo{},
	)
	require.NoError(t, err)
	if conv.MaxTurns == 0 {
		conv.MaxTurns = 6
	}
	if conv.Tools.MaxCalls == 0 {
		conv.Tools.MaxCalls = 8
	}
	o, err := New(context.Background(), Config{ChatModel: m, ModelName: "gpt-4o-mini", Registry: reg, Conversation: conv})
	require.NoError(t, err)
	return o
}

func TestHandleDirectAnswer(t *testing.T) {
	m := &scriptedModel{replies: []func([]*schema.Message) (*schema.Message, error){answer("Hello there.")}}
	o := newOrchestrator(t, m, model.ConversationConfig{})

	out, err := o.Handle(context.Background(), model.NewSession("s"), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there.\n\n---\n\n### Chain of Thought\n\n**Final Answer:** Hello there.\n\n**Tools used:** none", out)

	require.Len(t, m.tools, 3)
	require.Len(t, m.inputs, 1)
	assert.Equal(t, schema.System, m.inputs[0][0].Role)
	assert.Equal(t, "hi", m.inputs[0][len(m.inputs[0])-1].Content)
}

func TestHandleToolChainOpensGate(t *testing.T) {
	m := &scriptedModel{replies: []func([]*schema.Message) (*schema.Message, error){
		call("c1", tools.ToolSQL, `{"input":"count contracts per district"}`),
		call("c2", tools.ToolGraph, `{"input":"5, 10, 15"}`),
		answer("Here is the chart."),
	}}
	o := newOrchestrator(t, m, model.ConversationConfig{})
	s := model.NewSession("s")

	out, err := o.Handle(context.Background(), s, "chart contracts per district")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "Here is the chart.\n\n---\n\n### Chain of Thought\n\n"))
	assert.Contains(t, out, "- **Tool:** sql\n  **Input:** count contracts per district\n\n- **Tool:** graph\n  **Input:** 5, 10, 15\n\n**Final Answer:** Here is the chart.")
	assert.True(t, strings.HasSuffix(out, "\n\n**Tools used:** sql, graph"))
	assert.True(t, s.Succeeded(tools.ToolSQL))

	require.Len(t, m.inputs, 3)
	last := m.inputs[2][len(m.inputs[2])-1]
	assert.Equal(t, schema.Tool, last.Role)
	assert.Equal(t, "c2", last.ToolCallID)
	assert.True(t, strings.HasPrefix(last.Content, "data:image/png;base64,"))
}

func TestHandleGateClosedObservation(t *testing.T) {
	m := &scriptedModel{replies: []func([]*schema.Message) (*schema.Message, error){
		call("c1", tools.ToolGraph, `{"input":"5, 10, 15"}`),
		answer("I need data first."),
	}}
	o := newOrchestrator(t, m, model.ConversationConfig{})
	s := model.NewSession("s")

	_, err := o.Handle(context.Background(), s, "draw 5, 10, 15")
	require.NoError(t, err)

	require.Len(t, m.inputs, 2)
	last := m.inputs[1][len(m.inputs[1])-1]
	assert.Equal(t, tools.GateClosedMessage(tools.DefaultGateRules[0]), last.Content)
	assert.False(t, s.Succeeded(tools.ToolSQL))
}

func TestHandleToolLimit(t *testing.T) {
	m := &scriptedModel{replies: []func([]*schema.Message) (*schema.Message, error){
		call("", tools.ToolEcho, `{"input":"again"}`),
	}}
	conv := model.ConversationConfig{}
	conv.Tools.MaxCalls = 2
	o := newOrchestrator(t, m, conv)

	out, err := o.Handle(context.Background(), model.NewSession("s"), "loop")
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(out, "- **Tool:** echo"))
	assert.Contains(t, out, "**Final Answer:** "+nodes.LimitFallbackAnswer)
	assert.True(t, strings.HasSuffix(out, "**Tools used:** echo"))

	require.Len(t, m.inputs, 3)
	notice := m.inputs[2][len(m.inputs[2])-1]
	assert.Equal(t, schema.System, notice.Role)
	assert.Contains(t, notice.Content, "maximum tool call limit (2)")
}

func TestHandleUnknownTool(t *testing.T) {
	m := &scriptedModel{replies: []func([]*schema.Message) (*schema.Message, error){
		call("c1", "weather", `{"input":"tampa"}`),
		answer("I cannot check the weather."),
	}}
	o := newOrchestrator(t, m, model.ConversationConfig{})

	out, err := o.Handle(context.Background(), model.NewSession("s"), "weather?")
	require.NoError(t, err)
	assert.Contains(t, out, "**Tools used:** weather")

	last := m.inputs[1][len(m.inputs[1])-1]
	assert.Contains(t, last.Content, `"error":"unknown_tool"`)
}

func TestHandleModelFailure(t *testing.T) {
	m := &scriptedModel{replies: []func([]*schema.Message) (*schema.Message, error){
		func([]*schema.Message) (*schema.Message, error) { return nil, errors.New("connection refused") },
	}}
	o := newOrchestrator(t, m, model.ConversationConfig{})

	_, err := o.Handle(context.Background(), model.NewSession("s"), "hi")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, errx.StatusOf(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHandleContextDocAndHistory(t *testing.T) {
	doc := filepath.Join(t.TempDir(), "CONTEXT.md")
	require.NoError(t, os.WriteFile(doc, []byte("contracts live in table contracts"), 0o644))

	m := &scriptedModel{replies: []func([]*schema.Message) (*schema.Message, error){answer("ok")}}
	o := newOrchestrator(t, m, model.ConversationConfig{ContextDoc: doc})

	s := model.NewSession("s")
	s.Append("earlier question", true)
	s.Append("earlier answer", false)
	s.Append("new question", true)

	_, err := o.Handle(context.Background(), s, "new question")
	require.NoError(t, err)

	in := m.inputs[0]
	require.Len(t, in, 4)
	assert.Equal(t, "earlier question", in[1].Content)
	assert.Equal(t, "earlier answer", in[2].Content)
	assert.Equal(t, "Please refer to the following documentation before answering:\n\ncontracts live in table contracts\n\nUser Query:\nnew question", in[3].Content)
}

func TestSystemPromptReflectsGate(t *testing.T) {
	m := &scriptedModel{replies: []func([]*schema.Message) (*schema.Message, error){answer("ok")}}
	o := newOrchestrator(t, m, model.ConversationConfig{})
	s := model.NewSession("s")

	_, err := o.Handle(context.Background(), s, "q1")
	require.NoError(t, err)
	assert.Contains(t, m.inputs[0][0].Content, "- graph: ")
	assert.Contains(t, m.inputs[0][0].Content, "(locked until the sql tool has run successfully in this session)")

	require.False(t, o.RunTool(context.Background(), s, tools.ToolSQL, "q").Failed())

	_, err = o.Handle(context.Background(), s, "q2")
	require.NoError(t, err)
	assert.Contains(t, m.inputs[1][0].Content, "(available)")
}

func TestRunToolGate(t *testing.T) {
	o := newOrchestrator(t, &scriptedModel{}, model.ConversationConfig{})
	s := model.NewSession("s")

	res := o.RunTool(context.Background(), s, tools.ToolGraph, "5, 10, 15")
	assert.Equal(t, tools.KindGateClosed, res.Kind)
	assert.Equal(t, "The graph tool is unavailable until the sql tool has run successfully in this session.", res.Text())

	require.False(t, o.RunTool(context.Background(), s, tools.ToolSQL, "q").Failed())
	res = o.RunTool(context.Background(), s, tools.ToolGraph, "5, 10, 15")
	require.False(t, res.Failed(), res.Text())
	assert.True(t, strings.HasPrefix(res.Output, "data:image/png;base64,"))
}
