package nodes

import (
	"github.com/watson-civil-chatbot/server/internal/agent/model"
)

// Graph node keys.
const (
	NodeInputConverter = "InputConverter"
	NodeChatModel      = "ChatModel"
	NodeToolExecutor   = "ToolExecutor"
	NodeFinalizer      = "Finalizer"
)

const DefaultMaxToolCalls = 8

// ===== Small helpers to keep handlers simple/readable =====
// normalizeMaxToolCalls returns a sane default when the provided value is invalid.
func normalizeMaxToolCalls(n int) int {
	if n <= 0 {
		return DefaultMaxToolCalls
	}
	return n
}

// checkAndMarkToolLimit marks the state once the call budget is spent.
// Returns true only on the call that marks it.
func checkAndMarkToolLimit(state *model.AppState, max int) bool {
	max = normalizeMaxToolCalls(max)
	if !state.ToolCallLimitReached && state.ToolCallCount >= max {
		state.ToolCallLimitReached = true
		return true
	}
	return false
}

// incrementToolCallAndCheck adds n calls and reports whether the budget is now
// exceeded. Marking is left to checkAndMarkToolLimit so the wrap-up notice is
// always sent once.
func incrementToolCallAndCheck(state *model.AppState, n, max int) bool {
	max = normalizeMaxToolCalls(max)
	state.ToolCallCount += n
	return state.ToolCallCount > max
}
