package model

// ToolDescriptor is the view of a registered tool handed to the reasoning engine.
type ToolDescriptor struct {
	Name        string
	Description string
	// Enabled is derived from the session's gate state.
	Enabled bool
	// Requires names the prerequisite tool when the tool is gated.
	Requires string
}

// GateRule forbids Tool until Requires has succeeded once in the session.
type GateRule struct {
	Tool     string
	Requires string
}
