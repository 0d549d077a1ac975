package tools

import "context"

// Echo returns its input; it stands in for a subordinate agent while
// prototyping new routes.
type Echo struct{}

func (Echo) Name() string { return ToolEcho }

func (Echo) Description() string {
	return "A simple agent that echoes back the provided input."
}

func (Echo) Run(_ context.Context, input string) Result {
	return OK("echo processed: " + input)
}
