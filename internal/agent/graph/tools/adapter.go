package tools

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Tool names known to the registry.
const (
	ToolSearch    = "search"
	ToolSQL       = "sql"
	ToolDataframe = "dataframe"
	ToolGraph     = "graph"
	ToolEcho      = "echo"
	ToolExpert    = "expert"
)

// Adapter is a single callable capability exposed to the reasoning engine.
// Run never returns a Go error: failures are carried in the Result.
type Adapter interface {
	Name() string
	Description() string
	Run(ctx context.Context, input string) Result
}

// Completer answers a single system+user prompt. Data-aware tools use it for
// SQL generation and analysis planning.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ModelCompleter adapts an eino chat model without bound tools to Completer.
type ModelCompleter struct {
	Model einomodel.BaseChatModel
}

func (c ModelCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	if c.Model == nil {
		return "", fmt.Errorf("chat model is nil")
	}
	out, err := c.Model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	})
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", fmt.Errorf("chat model returned no message")
	}
	return strings.TrimSpace(out.Content), nil
}
