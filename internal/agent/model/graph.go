package model

import (
	"github.com/cloudwego/eino/schema"

	"github.com/watson-civil-chatbot/server/internal/agent/trace"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - Registered as Graph Local State via compose.WithGenLocalState, so a new
//     value exists for every Invoke.
//   - All reads/writes happen inside Eino state handlers or compose.ProcessState,
//     which serialise access.
//   - Cross-call state (history, gates) lives in Session, not here.
type AppState struct {
	SessionID            string
	History              []*schema.Message // mutated only inside Eino state handlers
	Trace                []trace.Entry     // tool invocations then the final answer
	ToolCallCount        int
	ToolCallLimitReached bool
	ToolCallIDSeq        int // local sequence to synthesize tool_call_id when provider omits

	// Accumulated total LLM cost (USD) across model invocations for this query
	TotalCostUSD float64
}

// QueryInput is the graph input for one user turn.
type QueryInput struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	// Prompt is Query with the context document prepended; empty means Query.
	Prompt string `json:"prompt,omitempty"`
}

// Reply is the graph output: the final answer and the captured trace.
type Reply struct {
	Answer       string
	Trace        []trace.Entry
	TotalCostUSD float64
}
