package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/watson-civil-chatbot/server/internal/agent/model"
	"github.com/watson-civil-chatbot/server/internal/agent/session"
	logx "github.com/watson-civil-chatbot/server/pkg/logger"
	"github.com/watson-civil-chatbot/server/pkg/metrics"
)

// Registry is the immutable, ordered tool set built once at startup.
type Registry struct {
	adapters []Adapter
	byName   map[string]Adapter
	gates    map[string]model.GateRule // keyed by the gated tool
	prereqs  map[string]bool
}

// NewRegistry validates names and gate rules.
func NewRegistry(rules []model.GateRule, adapters ...Adapter) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]Adapter, len(adapters)),
		gates:   make(map[string]model.GateRule, len(rules)),
		prereqs: make(map[string]bool, len(rules)),
	}
	for _, a := range adapters {
		if a == nil {
			return nil, fmt.Errorf("nil tool adapter")
		}
		name := a.Name()
		if name == "" {
			return nil, fmt.Errorf("tool adapter %T has empty name", a)
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		r.byName[name] = a
		r.adapters = append(r.adapters, a)
	}
	for _, rule := range rules {
		if _, ok := r.byName[rule.Tool]; !ok {
			return nil, fmt.Errorf("gate rule for unknown tool %q", rule.Tool)
		}
		if _, ok := r.byName[rule.Requires]; !ok {
			return nil, fmt.Errorf("gate rule for %q requires unknown tool %q", rule.Tool, rule.Requires)
		}
		r.gates[rule.Tool] = rule
		r.prereqs[rule.Requires] = true
	}
	return r, nil
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}

// Descriptors describes every tool as seen from session s.
func (r *Registry) Descriptors(s *model.Session) []model.ToolDescriptor {
	out := make([]model.ToolDescriptor, 0, len(r.adapters))
	for _, a := range r.adapters {
		d := model.ToolDescriptor{Name: a.Name(), Description: a.Description(), Enabled: true}
		if rule, gated := r.gates[a.Name()]; gated {
			d.Requires = rule.Requires
			d.Enabled = gateOpen(s, rule)
		}
		out = append(out, d)
	}
	return out
}

// Run executes name with input on behalf of session s, enforcing gates.
// A successful prerequisite run opens its gate for the rest of the session.
func (r *Registry) Run(ctx context.Context, s *model.Session, name, input string) Result {
	a, ok := r.byName[name]
	if !ok {
		return Fail(KindInvalidInput, "Error: unknown tool %q; available tools: %s", name, strings.Join(r.Names(), ", "))
	}

	if rule, gated := r.gates[name]; gated && !gateOpen(s, rule) {
		logx.Debug().Str("tool", name).Str("requires", rule.Requires).Msg("tool gate closed")
		metrics.ToolInvocations.WithLabelValues(name, KindGateClosed.String()).Inc()
		return Result{Kind: KindGateClosed, Err: fmt.Errorf("%s", GateClosedMessage(rule))}
	}

	start := time.Now()
	res := a.Run(ctx, input)
	metrics.ToolInvocations.WithLabelValues(name, res.Kind.String()).Inc()

	var ev *zerolog.Event
	if res.Failed() {
		ev = logx.Warn().Str("error", res.Text())
	} else {
		ev = logx.Debug()
	}
	ev.Str("tool", name).Str("outcome", res.Kind.String()).Dur("elapsed", time.Since(start)).Msg("tool run")

	if !res.Failed() && s != nil && r.prereqs[name] {
		s.MarkSucceeded(name)
	}
	return res
}

// EinoTools exposes every adapter as an eino InvokableTool taking {"input": string}.
// The session is taken from the invocation context.
func (r *Registry) EinoTools() []tool.BaseTool {
	out := make([]tool.BaseTool, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, &invokable{registry: r, name: a.Name(), desc: a.Description()})
	}
	return out
}

type invokable struct {
	registry *Registry
	name     string
	desc     string
}

func (t *invokable) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.name,
		Desc: t.desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"input": {
				Type:     schema.String,
				Desc:     "The full input for the tool as plain text.",
				Required: true,
			},
		}),
	}, nil
}

func (t *invokable) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	s, _ := session.FromContext(ctx)
	return t.registry.Run(ctx, s, t.name, DecodeInput(argumentsInJSON)).Text(), nil
}

// DecodeInput extracts the "input" argument from a tool-call payload. Payloads
// that are not a JSON object are used verbatim.
func DecodeInput(argumentsInJSON string) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(argumentsInJSON), &m); err != nil {
		var str string
		if json.Unmarshal([]byte(argumentsInJSON), &str) == nil {
			return strings.TrimSpace(str)
		}
		return strings.TrimSpace(argumentsInJSON)
	}
	v, ok := m["input"]
	if !ok {
		// models sometimes pick their own key; take the only value there is
		if len(m) != 1 {
			return strings.TrimSpace(argumentsInJSON)
		}
		for _, only := range m {
			v = only
		}
	}
	switch vv := v.(type) {
	case string:
		return strings.TrimSpace(vv)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(vv))
	}
}

// NormalizeArguments rewrites any tool-call payload to {"input": "..."}; it
// never fails so a malformed call still reaches the tool.
func NormalizeArguments(_ context.Context, _ string, arguments string) (string, error) {
	b, err := json.Marshal(map[string]string{"input": DecodeInput(arguments)})
	if err != nil {
		return arguments, nil
	}
	return string(b), nil
}
